package store

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Record is the machine-readable job metadata persisted to <job>.json once
// the worker finishes. It reflects the attempt that determined the final
// outcome; Started is from the very first attempt so the duration covers
// retries.
type Record struct {
	Job      string    `json:"job"`
	Cmd      []string  `json:"cmd"`
	PID      int       `json:"pid"`
	Started  time.Time `json:"started"`
	Ended    time.Time `json:"ended"`
	ExitCode int       `json:"exit_code"`
	Attempt  int       `json:"attempt"`
	Signal   int       `json:"signal,omitempty"`
}

// WriteRecord serializes r to the metadata artifact as an atomic replace.
func (p Paths) WriteRecord(r *Record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}

	return WriteFileAtomic(p.Meta, append(data, '\n'))
}

// ReadRecord loads the metadata artifact. A missing file maps to
// ErrUnknownJob, an unparsable one to ErrCorruptArtifact.
func (p Paths) ReadRecord() (*Record, error) {
	data, err := os.ReadFile(p.Meta)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NameError{Name: p.Name, Err: ErrUnknownJob}
		}

		return nil, err
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &NameError{Name: p.Name, Err: ErrCorruptArtifact}
	}

	return &r, nil
}

// WriteExitCode writes the exit marker. The marker is written last among
// content files, so its appearance guarantees the merged log is complete.
func (p Paths) WriteExitCode(code int) error {
	return WriteFileAtomic(p.Exit, []byte(strconv.Itoa(code)+"\n"))
}

// ReadExitCode parses the exit marker. Returns ok=false when the marker
// does not exist yet, i.e. the job is still running.
func (p Paths) ReadExitCode() (code int, ok bool, err error) {
	data, err := os.ReadFile(p.Exit)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}

		return 0, false, err
	}

	code, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false, &NameError{Name: p.Name, Err: ErrCorruptArtifact}
	}

	return code, true, nil
}

// WriteSignal records the signal number that terminated the job. Only
// written on platforms where processes die by signal.
func (p Paths) WriteSignal(sig int) error {
	return WriteFileAtomic(p.Signal, []byte(strconv.Itoa(sig)+"\n"))
}
