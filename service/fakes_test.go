package service

import (
	"context"
	"database/sql"
	"fmt"
	"github.com/google/uuid"
	"media-orchestrator/constant"
	"media-orchestrator/entities"
	"media-orchestrator/pkg/rabbitmq"
	"media-orchestrator/repository"
	"sort"
	"sync"
)

// memoryRepo is a versioned store kept in maps. Transaction snapshots both
// maps and restores them when the callback fails.
type memoryRepo struct {
	mu    sync.Mutex
	media map[uuid.UUID]entities.Media
	jobs  map[uuid.UUID]entities.UnboxingJob

	insertMediaErr error
	insertJobErr   error
	updateJobErr   error
	findJobErr     error
	// beforeUpdateMedia runs right before the version check of UpdateMedia.
	beforeUpdateMedia func(r *memoryRepo)
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		media: map[uuid.UUID]entities.Media{},
		jobs:  map[uuid.UUID]entities.UnboxingJob{},
	}
}

func (r *memoryRepo) Transaction(ctx context.Context, callback func(ctx context.Context) error, _ ...*sql.TxOptions) error {
	r.mu.Lock()
	mediaSnapshot := make(map[uuid.UUID]entities.Media, len(r.media))
	for k, v := range r.media {
		mediaSnapshot[k] = v
	}
	jobSnapshot := make(map[uuid.UUID]entities.UnboxingJob, len(r.jobs))
	for k, v := range r.jobs {
		jobSnapshot[k] = v
	}
	r.mu.Unlock()

	if err := callback(ctx); err != nil {
		r.mu.Lock()
		r.media, r.jobs = mediaSnapshot, jobSnapshot
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *memoryRepo) InsertMedia(_ context.Context, media entities.Media) (entities.Media, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertMediaErr != nil {
		return entities.Media{}, r.insertMediaErr
	}
	if _, ok := r.media[media.Key.ID]; ok {
		return entities.Media{}, fmt.Errorf("insert raw media: %w: duplicate key", repository.ErrInvalidInput)
	}
	media.Version = 0
	media.PendingJob = nil
	r.media[media.Key.ID] = media
	return media, nil
}

func (r *memoryRepo) UpdateMedia(_ context.Context, media entities.Media) (entities.Media, error) {
	if r.beforeUpdateMedia != nil {
		r.beforeUpdateMedia(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.media[media.Key.ID]
	if !ok || stored.Version != media.Version {
		return entities.Media{}, &repository.ConflictError{Entity: "RawMedia", Key: media.Key.ID, ExpectedVersion: media.Version, AttemptedVersion: media.Version + 1}
	}
	media.Version++
	stored = media
	stored.PendingJob = nil
	r.media[media.Key.ID] = stored
	return media, nil
}

func (r *memoryRepo) FindMediaByID(_ context.Context, id uuid.UUID) (entities.Media, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	media, ok := r.media[id]
	if !ok {
		return entities.Media{}, repository.ErrNotFound
	}
	return r.withPendingJob(media), nil
}

func (r *memoryRepo) withPendingJob(media entities.Media) entities.Media {
	for _, job := range r.jobs {
		if job.MediaKey.ID == media.Key.ID && job.Status == constant.JobStatusStarted {
			j := job
			media.PendingJob = &j
		}
	}
	return media
}

func (r *memoryRepo) FindAllMedia(_ context.Context, page, size int) (entities.Page[entities.Media], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]entities.Media, 0, len(r.media))
	for _, m := range r.media {
		all = append(all, r.withPendingJob(m))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Key.ID.String() < all[j].Key.ID.String() })

	start := min(page*size, len(all))
	end := min(start+size, len(all))
	return entities.Page[entities.Media]{Items: all[start:end], Page: page, Size: size, TotalItems: int64(len(all))}, nil
}

func (r *memoryRepo) InsertJob(_ context.Context, job entities.UnboxingJob) (entities.UnboxingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertJobErr != nil {
		return entities.UnboxingJob{}, r.insertJobErr
	}
	r.jobs[job.ID] = job
	return job, nil
}

func (r *memoryRepo) UpdateJob(_ context.Context, job entities.UnboxingJob) (entities.UnboxingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateJobErr != nil {
		return entities.UnboxingJob{}, r.updateJobErr
	}
	stored, ok := r.jobs[job.ID]
	if !ok || stored.Version != job.Version {
		return entities.UnboxingJob{}, &repository.ConflictError{Entity: "UnboxingJob", Key: job.ID, ExpectedVersion: job.Version, AttemptedVersion: job.Version + 1}
	}
	job.Version++
	r.jobs[job.ID] = job
	return job, nil
}

func (r *memoryRepo) FindJobByID(_ context.Context, id uuid.UUID) (entities.UnboxingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findJobErr != nil {
		return entities.UnboxingJob{}, r.findJobErr
	}
	job, ok := r.jobs[id]
	if !ok {
		return entities.UnboxingJob{}, fmt.Errorf("find unboxing job: %w", repository.ErrNotFound)
	}
	return job, nil
}

type published struct {
	queue string
	msg   rabbitmq.Message
}

type recordingPublisher struct {
	mu   sync.Mutex
	err  error
	sent []published
}

func (p *recordingPublisher) Publish(_ context.Context, queue string, msg rabbitmq.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{queue: queue, msg: msg})
	return nil
}
