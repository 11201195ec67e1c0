package store

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidName is returned when a job name fails validation. Nothing
	// is written to the filesystem in that case.
	ErrInvalidName = errors.New("invalid job name")

	// ErrBusy is returned when the advisory lock for a job is already held
	// by another live process.
	ErrBusy = errors.New("job is already running")

	// ErrUnknownJob is returned when an operation references a job for
	// which no artifacts exist.
	ErrUnknownJob = errors.New("job not found")

	// ErrCorruptArtifact is returned when an artifact exists but cannot be
	// parsed, which indicates an environment problem rather than a job
	// outcome.
	ErrCorruptArtifact = errors.New("corrupt job artifact")
)

// NameError wraps one of the sentinel errors above with the offending job
// name so CLI output can point at the right job in multi-job operations.
type NameError struct {
	Name string
	Err  error
}

func (e *NameError) Error() string {
	return fmt.Sprintf("job '%s': %s", e.Name, e.Err)
}

func (e *NameError) Unwrap() error {
	return e.Err
}
