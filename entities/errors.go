package entities

import "errors"

var (
	ErrAlreadyUnboxed = errors.New("media already unboxed")
	ErrNoPendingJob   = errors.New("media does not have associated pending job")
	ErrJobNotStarted  = errors.New("job is not marked as started")
)
