package entities

import (
	"github.com/google/uuid"
	"media-orchestrator/constant"
	"time"
)

type UnboxingJob struct {
	ID           uuid.UUID          `json:"id"`
	MediaKey     MediaKey           `json:"media_key"`
	Status       constant.JobStatus `json:"status"`
	StartedAt    time.Time          `json:"started_at"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
	Version      int64              `json:"version"`
	UnboxedFiles *UnboxedFiles      `json:"unboxed_files,omitempty"`
}

// NewStartedJob returns a fresh job for key, not yet persisted.
func NewStartedJob(key MediaKey, id uuid.UUID, now time.Time) UnboxingJob {
	return UnboxingJob{
		ID:        id,
		MediaKey:  key,
		Status:    constant.JobStatusStarted,
		StartedAt: now,
		Version:   0,
	}
}

// UnboxedFiles lists the tracks extracted from a container. Only set on
// completed jobs.
type UnboxedFiles struct {
	Videos    []Video     `json:"videos"`
	Audio     []Audio     `json:"audio"`
	Subtitles []Subtitles `json:"subtitles"`
}

type Video struct {
	Filename string `json:"filename"`
	Codec    string `json:"codec"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type Audio struct {
	Filename string `json:"filename"`
	Codec    string `json:"codec"`
	Lang     string `json:"lang"`
}

type Subtitles struct {
	Filename string `json:"filename"`
	Codec    string `json:"codec"`
	Lang     string `json:"lang"`
}
