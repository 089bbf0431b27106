package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"media-orchestrator/constant"
	"media-orchestrator/dto"
	"media-orchestrator/entities"
	"media-orchestrator/storage"
	"path"
	"time"
)

var (
	ErrInvalidUpload         = errors.New("invalid upload request")
	ErrPresignedURLFailed    = errors.New("presigned url generation failed")
	defaultUploadURLValidity = 30 * time.Minute
)

type UploadService interface {
	GeneratePresignedURL(ctx context.Context, req dto.UploadRequest) (dto.PresignedUploadURL, error)
}

type uploadService struct {
	storage  storage.Storage
	validity time.Duration
	now      func() time.Time
	newID    func() uuid.UUID
}

// GeneratePresignedURL returns a link the client can PUT the file to. The
// object lands under the uploaded prefix, where its bucket notification
// starts onboarding.
func (s *uploadService) GeneratePresignedURL(ctx context.Context, req dto.UploadRequest) (dto.PresignedUploadURL, error) {
	key := entities.MediaKey{ID: s.newID(), Name: req.Filename}
	if _, err := entities.ParseMediaKey(key.String()); err != nil {
		return dto.PresignedUploadURL{}, fmt.Errorf("%w: filename %q: %w", ErrInvalidUpload, req.Filename, err)
	}

	objectName := path.Join(constant.UploadedPrefix, key.String())
	u, err := s.storage.PresignedUploadURL(ctx, objectName, s.validity)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("bucket", s.storage.Bucket()).Str("key", key.String()).Msg("presigned url generation failed")
		return dto.PresignedUploadURL{}, errors.Join(ErrPresignedURLFailed, err)
	}

	expiresAt := s.now().UTC().Add(s.validity)
	zerolog.Ctx(ctx).Debug().Str("bucket", s.storage.Bucket()).Str("key", key.String()).Time("expires_at", expiresAt).Msg("generated presigned url")

	return dto.PresignedUploadURL{
		URL:       u.String(),
		ExpiresAt: expiresAt,
		Key:       key.String(),
	}, nil
}

func NewUploadService(storage storage.Storage, validity time.Duration, opts ...Option) UploadService {
	if validity <= 0 {
		validity = defaultUploadURLValidity
	}
	base := &service{now: time.Now, newID: uuid.New}
	for _, opt := range opts {
		opt(base)
	}
	return &uploadService{
		storage:  storage,
		validity: validity,
		now:      base.now,
		newID:    base.newID,
	}
}
