package store

import (
	"errors"
	"fmt"
)

var (
	ErrOwnerNotFound   = errors.New("no jobs found for owner")
	ErrNoActiveJobs    = errors.New("owner has no active jobs")
	ErrInvalidPosition = errors.New("invalid active job position")
	ErrJobNotFound     = errors.New("job not found")
	ErrUnavailable     = errors.New("job store unavailable")
)

// CorruptError reports a job file that exists but cannot be decoded.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("job file %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}
