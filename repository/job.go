package repository

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"media-orchestrator/constant"
	"media-orchestrator/entities"
	"time"
)

type UnboxingJobRepository interface {
	InsertJob(ctx context.Context, job entities.UnboxingJob) (entities.UnboxingJob, error)
	UpdateJob(ctx context.Context, job entities.UnboxingJob) (entities.UnboxingJob, error)
	FindJobByID(ctx context.Context, id uuid.UUID) (entities.UnboxingJob, error)
}

type unboxingJobRow struct {
	ID           uuid.UUID `gorm:"primaryKey"`
	RawMediaID   uuid.UUID
	RawMediaName string
	Status       string
	StartedAt    time.Time
	CompletedAt  *time.Time
	Version      int64
	UnboxedFiles datatypes.JSON
}

func (unboxingJobRow) TableName() string {
	return "unboxing_job"
}

// parseStatus rejects a status column this build does not know.
func parseStatus(raw string) (constant.JobStatus, error) {
	status := constant.JobStatus(raw)
	if !status.Valid() {
		return "", fmt.Errorf("read unboxing job: %w: unknown status %q", ErrInvalidInput, raw)
	}
	return status, nil
}

func (row unboxingJobRow) toEntity() (entities.UnboxingJob, error) {
	status, err := parseStatus(row.Status)
	if err != nil {
		return entities.UnboxingJob{}, err
	}
	files, err := decodeFiles(row.UnboxedFiles)
	if err != nil {
		return entities.UnboxingJob{}, err
	}
	return entities.UnboxingJob{
		ID:           row.ID,
		MediaKey:     entities.MediaKey{ID: row.RawMediaID, Name: row.RawMediaName},
		Status:       status,
		StartedAt:    row.StartedAt,
		CompletedAt:  row.CompletedAt,
		Version:      row.Version,
		UnboxedFiles: files,
	}, nil
}

func (r *repo) InsertJob(ctx context.Context, job entities.UnboxingJob) (entities.UnboxingJob, error) {
	files, err := encodeFiles(job.UnboxedFiles)
	if err != nil {
		return entities.UnboxingJob{}, err
	}

	err = r.getDB(ctx).Exec(
		`INSERT INTO unboxing_job (id, raw_media_id, raw_media_name, status, started_at, completed_at, version, unboxed_files)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?::jsonb)`,
		job.ID, job.MediaKey.ID, job.MediaKey.Name, job.Status.String(),
		job.StartedAt, job.CompletedAt, job.Version, files,
	).Error
	if err != nil {
		return entities.UnboxingJob{}, classify("insert unboxing job", err)
	}
	return job, nil
}

func (r *repo) UpdateJob(ctx context.Context, job entities.UnboxingJob) (entities.UnboxingJob, error) {
	files, err := encodeFiles(job.UnboxedFiles)
	if err != nil {
		return entities.UnboxingJob{}, err
	}

	next := job
	next.Version = job.Version + 1

	result := r.getDB(ctx).Exec(
		`UPDATE unboxing_job SET status = ?, started_at = ?, completed_at = ?, version = ?, unboxed_files = ?::jsonb
		WHERE id = ? AND version = ?`,
		next.Status.String(), next.StartedAt, next.CompletedAt, next.Version, files,
		next.ID, job.Version,
	)
	if result.Error != nil {
		return entities.UnboxingJob{}, classify("update unboxing job", result.Error)
	}
	if result.RowsAffected == 0 {
		return entities.UnboxingJob{}, &ConflictError{
			Entity:           "UnboxingJob",
			Key:              job.ID,
			ExpectedVersion:  job.Version,
			AttemptedVersion: next.Version,
		}
	}
	return next, nil
}

func (r *repo) FindJobByID(ctx context.Context, id uuid.UUID) (entities.UnboxingJob, error) {
	var row unboxingJobRow
	if err := r.getDB(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return entities.UnboxingJob{}, classify("find unboxing job", err)
	}
	return row.toEntity()
}
