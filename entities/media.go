package entities

import (
	"fmt"
	"github.com/google/uuid"
	"media-orchestrator/constant"
	"time"
)

// Media is a snapshot of an uploaded source file. Transition methods never
// mutate the receiver; they return the next snapshots. Versions are bumped by
// the store, not here.
type Media struct {
	Key        MediaKey     `json:"key"`
	Unboxed    bool         `json:"unboxed"`
	Version    int64        `json:"version"`
	PendingJob *UnboxingJob `json:"pending_job,omitempty"`
}

func NewMedia(key MediaKey) Media {
	return Media{Key: key}
}

// BeginEvent is sent to the unboxing worker.
type BeginEvent struct {
	JobID  uuid.UUID `json:"jobId"`
	Source string    `json:"source"`
	Out    string    `json:"out"`
}

// SourcePath is where the uploaded container lives, relative to the storage root.
func (m Media) SourcePath() string {
	return fmt.Sprintf("%s/%s/%s", constant.RawBucket, constant.UploadedPrefix, m.Key)
}

// UnboxedPrefix is where the worker writes extracted tracks.
func (m Media) UnboxedPrefix() string {
	return fmt.Sprintf("%s/%s/%s", constant.RawBucket, constant.UnboxedPrefix, m.Key)
}

func (m Media) BeginUnboxingJob(jobID uuid.UUID, now time.Time) (Media, UnboxingJob, BeginEvent, error) {
	if m.Unboxed {
		return m, UnboxingJob{}, BeginEvent{}, ErrAlreadyUnboxed
	}

	job := NewStartedJob(m.Key, jobID, now)
	next := m
	next.PendingJob = &job

	event := BeginEvent{
		JobID:  jobID,
		Source: fmt.Sprintf("%s://%s", constant.StorageScheme, m.SourcePath()),
		Out:    fmt.Sprintf("%s://%s", constant.StorageScheme, m.UnboxedPrefix()),
	}

	return next, job, event, nil
}

func (m Media) CompleteUnboxing(now time.Time, files UnboxedFiles) (Media, UnboxingJob, error) {
	if m.Unboxed {
		return m, UnboxingJob{}, ErrAlreadyUnboxed
	}
	if m.PendingJob == nil {
		return m, UnboxingJob{}, ErrNoPendingJob
	}
	if m.PendingJob.Status != constant.JobStatusStarted {
		return m, UnboxingJob{}, ErrJobNotStarted
	}

	job := *m.PendingJob
	completedAt := now
	job.Status = constant.JobStatusCompleted
	job.CompletedAt = &completedAt
	job.UnboxedFiles = &files

	next := m
	next.Unboxed = true
	next.PendingJob = nil

	return next, job, nil
}

// Page is one slice of a listing.
type Page[T any] struct {
	Items      []T
	Page       int
	Size       int
	TotalItems int64
}
