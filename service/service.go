package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"media-orchestrator/config"
	"media-orchestrator/dto"
	"media-orchestrator/entities"
	"media-orchestrator/pkg/rabbitmq"
	"media-orchestrator/repository"
	"time"
)

type MediaService interface {
	Onboard(ctx context.Context, key entities.MediaKey) (entities.Media, error)
	OnUnboxingComplete(ctx context.Context, event dto.CompletedEvent) (entities.Media, error)
	FindAll(ctx context.Context, page, size int) (entities.Page[entities.Media], error)
}

type service struct {
	repo      repository.Repository
	publisher rabbitmq.Publisher
	queues    config.Queues
	now       func() time.Time
	newID     func() uuid.UUID
}

type Option func(*service)

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(s *service) { s.newID = newID }
}

// Onboard registers a freshly uploaded file and asks the worker to unbox it.
// The media row, the job row and the publish succeed or fail together as far
// as the store is concerned; the event may still be delivered when the commit
// fails afterwards.
func (s *service) Onboard(ctx context.Context, key entities.MediaKey) (entities.Media, error) {
	const op = "onboard"
	logger := zerolog.Ctx(ctx).With().Str("key", key.String()).Logger()

	var onboarded entities.Media
	err := s.repo.Transaction(ctx, func(ctx context.Context) error {
		media, err := s.repo.InsertMedia(ctx, entities.NewMedia(key))
		if err != nil {
			return storeError(op, key.String(), "could not save raw media", err)
		}
		logger.Debug().Msg("saved new raw media")

		next, job, event, err := media.BeginUnboxingJob(s.newID(), s.now().UTC())
		if err != nil {
			return nonRecoverable(op, key.String(), "raw media already unboxed", err)
		}

		if _, err := s.repo.InsertJob(ctx, job); err != nil {
			return storeError(op, key.String(), "could not save unboxing job", err)
		}

		msg, err := rabbitmq.NewJSONMessage(event, nil)
		if err != nil {
			return publishError(op, key.String(), err)
		}
		if err := s.publisher.Publish(ctx, s.queues.BeginUnboxing, msg); err != nil {
			return publishError(op, key.String(), err)
		}

		logger.Debug().Str("job_id", job.ID.String()).Str("source", event.Source).Msg("triggered unboxing job")
		onboarded = next
		return nil
	})
	if err != nil {
		return entities.Media{}, asMediaError(op, key.String(), err)
	}

	logger.Info().Msg("raw media onboarded")
	return onboarded, nil
}

// OnUnboxingComplete records the tracks the worker extracted and marks the
// media unboxed.
func (s *service) OnUnboxingComplete(ctx context.Context, event dto.CompletedEvent) (entities.Media, error) {
	const op = "complete unboxing"
	jobKey := event.JobId.String()
	logger := zerolog.Ctx(ctx).With().Str("job_id", jobKey).Logger()

	var completed entities.Media
	err := s.repo.Transaction(ctx, func(ctx context.Context) error {
		job, err := s.repo.FindJobByID(ctx, event.JobId)
		if err != nil {
			return storeError(op, jobKey, "could not load unboxing job", err)
		}

		media, err := s.repo.FindMediaByID(ctx, job.MediaKey.ID)
		if err != nil {
			return storeError(op, jobKey, "could not load raw media", err)
		}
		if media.PendingJob != nil && media.PendingJob.ID != job.ID {
			return nonRecoverable(op, jobKey, fmt.Sprintf("media %s is waiting on job %s", media.Key, media.PendingJob.ID), ErrUnexpectedJob)
		}

		next, finishedJob, err := media.CompleteUnboxing(s.now().UTC(), event.ToUnboxedFiles())
		if err != nil {
			return nonRecoverable(op, jobKey, "cannot complete unboxing", err)
		}

		updated, err := s.repo.UpdateMedia(ctx, next)
		if err != nil {
			return storeError(op, jobKey, "could not update raw media", err)
		}
		if _, err := s.repo.UpdateJob(ctx, finishedJob); err != nil {
			return storeError(op, jobKey, "could not update unboxing job", err)
		}

		completed = updated
		return nil
	})
	if err != nil {
		return entities.Media{}, asMediaError(op, jobKey, err)
	}

	logger.Info().Str("key", completed.Key.String()).Int64("version", completed.Version).Msg("raw media unboxed")
	return completed, nil
}

func (s *service) FindAll(ctx context.Context, page, size int) (entities.Page[entities.Media], error) {
	result, err := s.repo.FindAllMedia(ctx, page, size)
	if err != nil {
		return entities.Page[entities.Media]{}, fmt.Errorf("find all raw media: %w", err)
	}
	return result, nil
}

// asMediaError classifies failures raised by the unit of work itself, such as
// a failed commit.
func asMediaError(op, key string, err error) error {
	var mediaErr *MediaError
	if errors.As(err, &mediaErr) {
		return err
	}
	return storeError(op, key, "unit of work failed", err)
}

func NewService(repo repository.Repository, publisher rabbitmq.Publisher, queues config.Queues, opts ...Option) MediaService {
	s := &service{
		repo:      repo,
		publisher: publisher,
		queues:    queues,
		now:       time.Now,
		newID:     uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
