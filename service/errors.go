package service

import (
	"errors"
	"fmt"
	"media-orchestrator/pkg/rabbitmq"
	"media-orchestrator/repository"
)

var (
	ErrNonRetryable = errors.New("non-retryable error")
	// ErrUnexpectedJob is returned when a completion names a job other than
	// the one the media is waiting on.
	ErrUnexpectedJob = errors.New("job is not the pending job of its media")
)

// MediaError is the outcome of a failed orchestration step. Callers only need
// Recoverable to decide between retrying and dead-lettering.
type MediaError struct {
	Op          string
	Key         string
	Reason      string
	Recoverable bool
	Err         error
}

func (e *MediaError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.Key, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MediaError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if !e.Recoverable {
		errs = append(errs, ErrNonRetryable)
	}
	return errs
}

// IsRecoverable reports whether retrying the operation that produced err may
// succeed. Errors that carry no classification count as recoverable.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var mediaErr *MediaError
	if errors.As(err, &mediaErr) {
		return mediaErr.Recoverable
	}
	return !errors.Is(err, ErrNonRetryable)
}

func nonRecoverable(op, key, reason string, err error) *MediaError {
	return &MediaError{Op: op, Key: key, Reason: reason, Recoverable: false, Err: err}
}

// storeError treats rejected input as permanent and anything else the store
// reports, version conflicts included, as transient.
func storeError(op, key, reason string, err error) *MediaError {
	return &MediaError{
		Op:          op,
		Key:         key,
		Reason:      reason,
		Recoverable: !errors.Is(err, repository.ErrInvalidInput),
		Err:         err,
	}
}

func publishError(op, key string, err error) *MediaError {
	if errors.Is(err, rabbitmq.ErrPublishConfig) {
		return &MediaError{Op: op, Key: key, Reason: "cannot publish due to misconfiguration", Recoverable: false, Err: err}
	}
	return &MediaError{Op: op, Key: key, Reason: "could not publish event", Recoverable: true, Err: err}
}
