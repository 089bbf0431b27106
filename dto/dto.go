package dto

import (
	"fmt"
	"github.com/google/uuid"
	"media-orchestrator/entities"
	"strings"
	"time"
)

// UploadEvent is the bucket notification published by the object store when
// a file lands. Key includes the bucket and any prefixes.
type UploadEvent struct {
	Type    string `json:"EventName"`
	FullKey string `json:"Key" validate:"required"`
}

// ObjectKey is the last path segment of FullKey.
func (e UploadEvent) ObjectKey() (string, error) {
	idx := strings.LastIndex(e.FullKey, "/")
	if idx == -1 || idx == len(e.FullKey)-1 {
		return "", fmt.Errorf("invalid object key supplied, expected separator /, received: %s", e.FullKey)
	}
	return e.FullKey[idx+1:], nil
}

type VideoDto struct {
	Filename string `json:"filename" validate:"required"`
	Codec    string `json:"codec"`
	Width    int    `json:"width" validate:"gte=0"`
	Height   int    `json:"height" validate:"gte=0"`
}

type AudioDto struct {
	Filename string `json:"filename" validate:"required"`
	Codec    string `json:"codec"`
	Lang     string `json:"lang"`
}

type SubtitlesDto struct {
	Filename string `json:"filename" validate:"required"`
	Codec    string `json:"codec"`
	Lang     string `json:"lang"`
}

// CompletedEvent is emitted by the unboxing worker once a job finishes.
type CompletedEvent struct {
	JobId        uuid.UUID      `json:"jobId" validate:"required"`
	Videos       []VideoDto     `json:"videos" validate:"dive"`
	Audio        []AudioDto     `json:"audio" validate:"dive"`
	Subtitles    []SubtitlesDto `json:"subtitles" validate:"dive"`
	OutputPrefix string         `json:"outputPrefix"`
}

func (e CompletedEvent) ToUnboxedFiles() entities.UnboxedFiles {
	files := entities.UnboxedFiles{
		Videos:    make([]entities.Video, 0, len(e.Videos)),
		Audio:     make([]entities.Audio, 0, len(e.Audio)),
		Subtitles: make([]entities.Subtitles, 0, len(e.Subtitles)),
	}
	for _, v := range e.Videos {
		files.Videos = append(files.Videos, entities.Video{Filename: v.Filename, Codec: v.Codec, Width: v.Width, Height: v.Height})
	}
	for _, a := range e.Audio {
		files.Audio = append(files.Audio, entities.Audio{Filename: a.Filename, Codec: a.Codec, Lang: a.Lang})
	}
	for _, s := range e.Subtitles {
		files.Subtitles = append(files.Subtitles, entities.Subtitles{Filename: s.Filename, Codec: s.Codec, Lang: s.Lang})
	}
	return files
}

type RawMediaDto struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Unboxed bool      `json:"unboxed"`
}

func RawMediaFrom(media entities.Media) RawMediaDto {
	return RawMediaDto{ID: media.Key.ID, Name: media.Key.Name, Unboxed: media.Unboxed}
}

type PageDto[T any] struct {
	Items        []T   `json:"items"`
	Page         int   `json:"page"`
	ItemsPerPage int   `json:"itemsPerPage"`
	TotalItems   int64 `json:"totalItems"`
}

func PageOf[S any, T any](page entities.Page[S], mapper func(S) T) PageDto[T] {
	items := make([]T, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, mapper(item))
	}
	return PageDto[T]{
		Items:        items,
		Page:         page.Page,
		ItemsPerPage: page.Size,
		TotalItems:   page.TotalItems,
	}
}

type PageQuery struct {
	Page int `form:"page,default=0" validate:"gte=0"`
	Size int `form:"size,default=25" validate:"gte=1,lte=100"`
}

type UploadRequest struct {
	Filename      string `json:"filename" validate:"required"`
	ContentLength int64  `json:"contentLength" validate:"gte=1"`
	ContentType   string `json:"contentType" validate:"required,startswith=video/"`
}

type PresignedUploadURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
	Key       string    `json:"key"`
}

type ApiError struct {
	Timestamp time.Time         `json:"timestamp"`
	Status    int               `json:"status"`
	Error     string            `json:"error"`
	Path      string            `json:"path"`
	Fields    map[string]string `json:"fields,omitempty"`
}
