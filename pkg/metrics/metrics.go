// Package metrics exposes Prometheus collectors for the message flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"time"
)

const (
	OutcomeConsumed     = "consumed"
	OutcomeRetried      = "retried"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeFailed       = "failed"
)

var (
	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_messages_total",
			Help: "Messages handled per queue, by outcome",
		},
		[]string{"queue", "outcome"},
	)

	handleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_message_handle_seconds",
			Help:    "Time spent handling one delivery",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue"},
	)

	publishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_publish_total",
			Help: "Messages published per queue, by result",
		},
		[]string{"queue", "result"},
	)
)

func MessageOutcome(queue, outcome string) {
	messagesTotal.WithLabelValues(queue, outcome).Inc()
}

func ObserveHandle(queue string, start time.Time) {
	handleDuration.WithLabelValues(queue).Observe(time.Since(start).Seconds())
}

func Published(queue string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	publishTotal.WithLabelValues(queue, result).Inc()
}
