package handler

import (
	"context"
	"encoding/json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"media-orchestrator/dto"
	"media-orchestrator/pkg/validation"
)

// UnboxingCompletedHandler applies a worker's completion report. Failures
// follow the same retry budget as upload notifications; a version conflict
// is retried.
func UnboxingCompletedHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	r := deps.completionRoute()
	count := retryCount(ctx, msg)
	logger := zerolog.Ctx(ctx).With().Str("queue", msg.RoutingKey).Int("retry_count", count).Logger()
	ctx = logger.WithContext(ctx)

	if exhausted(count) {
		logger.Error().Msg("dropping unboxing completion, max retries exceeded")
		return deadLetter(ctx, msg, deps, r, count)
	}

	var event dto.CompletedEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		logger.Error().Err(err).Msg("failed to unmarshal unboxing completed event")
		return deadLetter(ctx, msg, deps, r, count)
	}
	if err := validation.ValidateStruct(event); err != nil {
		logger.Error().Err(err).Interface("fields", validation.Fields(err)).Msg("invalid unboxing completed event")
		return deadLetter(ctx, msg, deps, r, count)
	}

	ctx = logger.With().Str("job_id", event.JobId.String()).Logger().WithContext(ctx)
	zerolog.Ctx(ctx).Info().
		Int("videos", len(event.Videos)).
		Int("audio", len(event.Audio)).
		Int("subtitles", len(event.Subtitles)).
		Msg("received unboxing completed event")

	if _, err := deps.MediaService.OnUnboxingComplete(ctx, event); err != nil {
		return routeFailure(ctx, msg, deps, r, count, err)
	}

	consumed(msg)
	return nil
}
