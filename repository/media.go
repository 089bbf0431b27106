package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"media-orchestrator/constant"
	"media-orchestrator/entities"
	"time"
)

type MediaRepository interface {
	InsertMedia(ctx context.Context, media entities.Media) (entities.Media, error)
	UpdateMedia(ctx context.Context, media entities.Media) (entities.Media, error)
	FindMediaByID(ctx context.Context, id uuid.UUID) (entities.Media, error)
	FindAllMedia(ctx context.Context, page, size int) (entities.Page[entities.Media], error)
}

const mediaTable = "raw_media"

// mediaRow is a raw_media row joined with its STARTED job, if one exists.
type mediaRow struct {
	ID              uuid.UUID
	Name            string
	Unboxed         bool
	Version         int64
	JobID           *uuid.UUID
	JobStatus       *string
	JobStartedAt    *time.Time
	JobCompletedAt  *time.Time
	JobVersion      *int64
	JobUnboxedFiles datatypes.JSON
}

const mediaColumns = `m.id AS id, m.name AS name, m.unboxed AS unboxed, m.version AS version,
	uj.id AS job_id, uj.status AS job_status, uj.started_at AS job_started_at,
	uj.completed_at AS job_completed_at, uj.version AS job_version,
	uj.unboxed_files AS job_unboxed_files`

func (row mediaRow) toEntity() (entities.Media, error) {
	key := entities.MediaKey{ID: row.ID, Name: row.Name}
	media := entities.Media{Key: key, Unboxed: row.Unboxed, Version: row.Version}
	if row.JobID == nil {
		return media, nil
	}

	var rawStatus string
	if row.JobStatus != nil {
		rawStatus = *row.JobStatus
	}
	status, err := parseStatus(rawStatus)
	if err != nil {
		return entities.Media{}, err
	}

	job := entities.UnboxingJob{
		ID:          *row.JobID,
		MediaKey:    key,
		Status:      status,
		CompletedAt: row.JobCompletedAt,
	}
	if row.JobStartedAt != nil {
		job.StartedAt = *row.JobStartedAt
	}
	if row.JobVersion != nil {
		job.Version = *row.JobVersion
	}
	files, err := decodeFiles(row.JobUnboxedFiles)
	if err != nil {
		return entities.Media{}, err
	}
	job.UnboxedFiles = files
	media.PendingJob = &job
	return media, nil
}

func (r *repo) InsertMedia(ctx context.Context, media entities.Media) (entities.Media, error) {
	err := r.getDB(ctx).Exec(
		`INSERT INTO raw_media (id, name, unboxed, version) VALUES (?, ?, ?, 0)`,
		media.Key.ID, media.Key.Name, media.Unboxed,
	).Error
	if err != nil {
		return entities.Media{}, classify("insert raw media", err)
	}
	media.Version = 0
	return media, nil
}

func (r *repo) UpdateMedia(ctx context.Context, media entities.Media) (entities.Media, error) {
	next := media
	next.Version = media.Version + 1

	result := r.getDB(ctx).Exec(
		`UPDATE raw_media SET name = ?, unboxed = ?, version = ? WHERE id = ? AND version = ?`,
		next.Key.Name, next.Unboxed, next.Version, next.Key.ID, media.Version,
	)
	if result.Error != nil {
		return entities.Media{}, classify("update raw media", result.Error)
	}
	if result.RowsAffected == 0 {
		return entities.Media{}, &ConflictError{
			Entity:           "RawMedia",
			Key:              media.Key.ID,
			ExpectedVersion:  media.Version,
			AttemptedVersion: next.Version,
		}
	}
	return next, nil
}

func (r *repo) selectMedia(ctx context.Context) *gorm.DB {
	return r.getDB(ctx).
		Table(mediaTable+" AS m").
		Select(mediaColumns).
		Joins("LEFT JOIN unboxing_job uj ON m.id = uj.raw_media_id AND uj.status = ?", constant.JobStatusStarted.String())
}

func (r *repo) FindMediaByID(ctx context.Context, id uuid.UUID) (entities.Media, error) {
	var rows []mediaRow
	err := r.selectMedia(ctx).Where("m.id = ?", id).Limit(1).Scan(&rows).Error
	if err != nil {
		return entities.Media{}, classify("find raw media", err)
	}
	if len(rows) == 0 {
		return entities.Media{}, fmt.Errorf("find raw media %s: %w", id, ErrNotFound)
	}
	return rows[0].toEntity()
}

func (r *repo) FindAllMedia(ctx context.Context, page, size int) (entities.Page[entities.Media], error) {
	var total int64
	if err := r.getDB(ctx).Table(mediaTable).Count(&total).Error; err != nil {
		return entities.Page[entities.Media]{}, classify("count raw media", err)
	}

	var rows []mediaRow
	err := r.selectMedia(ctx).
		Order("m.id").
		Limit(size).
		Offset(page * size).
		Scan(&rows).Error
	if err != nil {
		return entities.Page[entities.Media]{}, classify("list raw media", err)
	}

	items := make([]entities.Media, 0, len(rows))
	for _, row := range rows {
		media, err := row.toEntity()
		if err != nil {
			return entities.Page[entities.Media]{}, err
		}
		items = append(items, media)
	}

	return entities.Page[entities.Media]{
		Items:      items,
		Page:       page,
		Size:       size,
		TotalItems: total,
	}, nil
}

func encodeFiles(files *entities.UnboxedFiles) (datatypes.JSON, error) {
	if files == nil {
		return nil, nil
	}
	raw, err := json.Marshal(files)
	if err != nil {
		return nil, fmt.Errorf("encode unboxed files: %w: %w", ErrInvalidInput, err)
	}
	return datatypes.JSON(raw), nil
}

func decodeFiles(raw datatypes.JSON) (*entities.UnboxedFiles, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var files entities.UnboxedFiles
	if err := json.Unmarshal(raw, &files); err != nil {
		return nil, fmt.Errorf("decode unboxed files: %w", err)
	}
	return &files, nil
}
