package repository

import (
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrInvalidInput marks writes the database refused because of the data
	// itself. Repeating them cannot succeed.
	ErrInvalidInput = errors.New("invalid input")
)

// ConflictError is returned when an update targets a version that is no
// longer current. Nothing was written.
type ConflictError struct {
	Entity           string
	Key              uuid.UUID
	ExpectedVersion  int64
	AttemptedVersion int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("optimistic locking failure on %s %s: expected version %d, attempted to write %d",
		e.Entity, e.Key, e.ExpectedVersion, e.AttemptedVersion)
}

// SQLSTATE classes: 22 data exception, 23 integrity constraint violation,
// 42 syntax error or access rule violation.
var invalidInputClasses = map[pq.ErrorClass]struct{}{
	"22": {},
	"23": {},
	"42": {},
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if _, ok := invalidInputClasses[pqErr.Code.Class()]; ok {
			return fmt.Errorf("%s: %w: %w", op, ErrInvalidInput, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
