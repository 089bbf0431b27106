package handler

import (
	"context"
	"encoding/json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"media-orchestrator/dto"
	"media-orchestrator/entities"
	"media-orchestrator/pkg/validation"
)

// UploadHandler onboards the file named by an upload notification. It serves
// both the notification queue and its retry queue.
func UploadHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	r := deps.uploadRoute()
	count := retryCount(ctx, msg)
	logger := zerolog.Ctx(ctx).With().Str("queue", msg.RoutingKey).Int("retry_count", count).Logger()
	ctx = logger.WithContext(ctx)

	if exhausted(count) {
		logger.Error().Msg("dropping raw file onboarding, max retries exceeded")
		return deadLetter(ctx, msg, deps, r, count)
	}

	var event dto.UploadEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		logger.Error().Err(err).Msg("failed to unmarshal upload event")
		return deadLetter(ctx, msg, deps, r, count)
	}
	if err := validation.ValidateStruct(event); err != nil {
		logger.Error().Err(err).Msg("invalid upload event")
		return deadLetter(ctx, msg, deps, r, count)
	}

	logger.Info().Str("full_key", event.FullKey).Msg("received upload event")

	objectKey, err := event.ObjectKey()
	if err != nil {
		logger.Error().Err(err).Msg("upload event has no object key")
		return deadLetter(ctx, msg, deps, r, count)
	}

	key, err := entities.ParseMediaKey(objectKey)
	if err != nil {
		logger.Error().Err(err).Msg("cannot decode media key")
		return deadLetter(ctx, msg, deps, r, count)
	}

	ctx = logger.With().Str("key", key.String()).Logger().WithContext(ctx)
	if _, err := deps.MediaService.Onboard(ctx, key); err != nil {
		return routeFailure(ctx, msg, deps, r, count, err)
	}

	consumed(msg)
	return nil
}
