package rabbitmq

import (
	"context"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"media-orchestrator/pkg/metrics"
	"sync"
	"time"
)

type Consumer[T any] interface {
	Consume(ctx context.Context, dependencies T) error
}

// HandlerFunc processes one delivery. A nil error acks it; an error nacks it
// back onto the queue so it is redelivered.
type HandlerFunc[T any] func(ctx context.Context, msg amqp.Delivery, dependencies T) error

type consumer[T any] struct {
	conn       *amqp.Connection
	queue      QueueSpec
	handler    HandlerFunc[T]
	numWorkers int
}

func (c consumer[T]) Consume(ctx context.Context, dependencies T) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	queueName := c.queue.Name
	logger := zerolog.Ctx(ctx).With().Str("queue", queueName).Logger()

	if err = DeclareQueue(ch, c.queue); err != nil {
		logger.Error().Err(err).Msg("failed to declare queue")
		return err
	}

	err = ch.Qos(c.numWorkers, 0, false)
	if err != nil {
		logger.Error().Err(err).Msg("failed to set QoS")
		return err
	}

	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		logger.Error().Err(err).Msg("failed to consume queue")
		return err
	}

	logger.Info().Int("workers", c.numWorkers).Msg("consumer started")

	// In-flight messages are never cancelled mid-handler; shutdown only stops
	// the intake and waits for the workers to drain.
	handlerCtx := context.WithoutCancel(ctx)

	jobs := make(chan amqp.Delivery, c.numWorkers)
	var wg sync.WaitGroup
	for i := 1; i <= c.numWorkers; i++ {
		wg.Add(1)
		go func(workerId int) {
			defer wg.Done()
			for msg := range jobs {
				start := time.Now()
				if err := c.handler(handlerCtx, msg, dependencies); err != nil {
					logger.Error().Err(err).Int("worker_id", workerId).Msg("failed to handle message, requeueing")
					metrics.MessageOutcome(queueName, metrics.OutcomeFailed)
					if nackErr := msg.Nack(false, true); nackErr != nil {
						logger.Error().Err(nackErr).Msg("failed to nack message")
					}
				} else if ackErr := msg.Ack(false); ackErr != nil {
					logger.Error().Err(ackErr).Msg("failed to acknowledge message")
				}
				metrics.ObserveHandle(queueName, start)
			}
		}(i)
	}

	for {
		select {
		case delivery, ok := <-deliveries:
			if !ok {
				close(jobs)
				wg.Wait()
				return nil
			}

			jobs <- delivery
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ctx.Err()
		}
	}
}

func NewConsumer[T any](
	conn *amqp.Connection,
	queue QueueSpec,
	numWorkers int,
	handler HandlerFunc[T],
) Consumer[T] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &consumer[T]{
		conn:       conn,
		queue:      queue,
		handler:    handler,
		numWorkers: numWorkers,
	}
}
