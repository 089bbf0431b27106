package handler

import (
	"context"
	"fmt"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"media-orchestrator/config"
	"media-orchestrator/constant"
	"media-orchestrator/pkg/metrics"
	"media-orchestrator/pkg/rabbitmq"
	"media-orchestrator/service"
)

type ServiceDependencies struct {
	MediaService service.MediaService
	Publisher    rabbitmq.Publisher
	Queues       config.Queues
}

// route names where a failed message of one channel goes next.
type route struct {
	retry      string
	deadLetter string
}

func (d ServiceDependencies) uploadRoute() route {
	return route{retry: d.Queues.UploadRetry, deadLetter: d.Queues.UploadDLQ}
}

func (d ServiceDependencies) completionRoute() route {
	return route{retry: d.Queues.UnboxingCompletedRetry, deadLetter: d.Queues.UnboxingCompletedDLQ}
}

// retryCount reads the attempt counter of msg. A header that cannot be read
// is logged and counted as the first attempt.
func retryCount(ctx context.Context, msg amqp.Delivery) int {
	n, err := rabbitmq.RetryCount(msg.Headers)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Interface("header", msg.Headers[constant.RetryCountHeader]).Msg("unreadable retry header, treating as first attempt")
	}
	return n
}

func exhausted(count int) bool {
	return count > constant.MaxRetries
}

// routeFailure sends msg to the retry queue with the counter bumped when err
// is recoverable, and to the dead-letter queue with the counter unchanged
// otherwise.
func routeFailure(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies, r route, count int, err error) error {
	if service.IsRecoverable(err) {
		zerolog.Ctx(ctx).Warn().Err(err).Int("retry_count", count+1).Msg("recoverable failure, scheduling retry")
		return republish(ctx, msg, deps, r.retry, count+1, metrics.OutcomeRetried)
	}
	zerolog.Ctx(ctx).Error().Err(err).Int("retry_count", count).Msg("non-recoverable failure, dead-lettering")
	return deadLetter(ctx, msg, deps, r, count)
}

func deadLetter(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies, r route, count int) error {
	return republish(ctx, msg, deps, r.deadLetter, count, metrics.OutcomeDeadLettered)
}

// republish forwards the original body unchanged. An error here leaves the
// delivery unacknowledged so the broker hands it out again.
func republish(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies, queue string, count int, outcome string) error {
	out := rabbitmq.FromDelivery(msg, rabbitmq.WithRetryCount(msg.Headers, count))
	if err := deps.Publisher.Publish(ctx, queue, out); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("target", queue).Msg("failed to route message")
		return fmt.Errorf("route message to %s: %w", queue, err)
	}
	metrics.MessageOutcome(msg.RoutingKey, outcome)
	return nil
}

func consumed(msg amqp.Delivery) {
	metrics.MessageOutcome(msg.RoutingKey, metrics.OutcomeConsumed)
}

// DeadLetterHandler logs messages that reached a dead-letter queue. They are
// acknowledged and never forwarded again.
func DeadLetterHandler(ctx context.Context, msg amqp.Delivery, _ ServiceDependencies) error {
	count, _ := rabbitmq.RetryCount(msg.Headers)
	zerolog.Ctx(ctx).Error().
		Str("queue", msg.RoutingKey).
		Int("retry_count", count).
		Bytes("body", msg.Body).
		Msg("received dead-lettered message")
	consumed(msg)
	return nil
}
