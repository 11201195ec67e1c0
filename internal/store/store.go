package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const (
	// maxNameLength bounds job names so artifact filenames stay well clear
	// of filesystem name limits even with rotation suffixes appended.
	maxNameLength = 100

	// maxPathLength is checked up front so callers get a clear error
	// instead of an obscure I/O failure half-way through execution.
	maxPathLength = 4096

	// EnvDir overrides the default jobs directory.
	EnvDir = "PEND_DIR"
)

// Store is a jobs directory. The zero value is not usable; construct with
// New so the directory is known to exist.
type Store struct {
	Dir string
}

// DefaultDir returns the jobs directory to use when the caller does not
// override it: $PEND_DIR if set, else a "pend" directory under the system
// temporary location.
func DefaultDir() string {
	if dir := os.Getenv(EnvDir); dir != "" {
		return dir
	}

	return filepath.Join(os.TempDir(), "pend")
}

// New creates a Store rooted at dir, creating the directory if necessary.
func New(dir string) (Store, error) {
	if dir == "" {
		dir = DefaultDir()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Store{}, fmt.Errorf("create jobs directory: %w", err)
	}

	return Store{Dir: dir}, nil
}

// ValidateName checks a job name against the naming rules: non-empty, at
// most 100 characters, no path separators or traversal sequences, no
// leading dot, and only letters, digits, '-', '_' and '.' in the ASCII
// range. Violations are reported as ErrInvalidName before any filesystem
// use.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}

	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf(
			"%w: name must not contain path separators",
			ErrInvalidName,
		)
	}

	if len([]rune(name)) > maxNameLength {
		return fmt.Errorf(
			"%w: name must not exceed %d characters",
			ErrInvalidName,
			maxNameLength,
		)
	}

	if strings.HasPrefix(name, ".") || strings.Contains(name, "..") {
		return fmt.Errorf(
			"%w: name must not start with a dot or contain repeated dots",
			ErrInvalidName,
		)
	}

	for _, r := range name {
		if r < unicode.MaxASCII {
			validASCII := r == '-' || r == '_' || r == '.' ||
				(r >= '0' && r <= '9') ||
				(r >= 'a' && r <= 'z') ||
				(r >= 'A' && r <= 'Z')

			if !validASCII {
				return fmt.Errorf(
					"%w: name contains invalid character %q",
					ErrInvalidName,
					r,
				)
			}

			continue
		}

		// Non-ASCII is allowed as long as it's printable.
		if unicode.IsControl(r) {
			return fmt.Errorf(
				"%w: name contains control character",
				ErrInvalidName,
			)
		}
	}

	return nil
}

// Paths holds the artifact file locations for one job.
type Paths struct {
	Name   string
	Out    string
	Err    string
	Log    string
	Exit   string
	Meta   string
	Signal string
	Lock   string
}

// Paths validates the job name and derives its artifact locations.
func (s Store) Paths(name string) (Paths, error) {
	if err := ValidateName(name); err != nil {
		return Paths{}, err
	}

	p := Paths{
		Name:   name,
		Out:    filepath.Join(s.Dir, name+".out"),
		Err:    filepath.Join(s.Dir, name+".err"),
		Log:    filepath.Join(s.Dir, name+".log"),
		Exit:   filepath.Join(s.Dir, name+".exit"),
		Meta:   filepath.Join(s.Dir, name+".json"),
		Signal: filepath.Join(s.Dir, name+".signal"),
		Lock:   filepath.Join(s.Dir, name+".lock"),
	}

	for _, path := range p.all() {
		if len(path) >= maxPathLength {
			return Paths{}, fmt.Errorf(
				"%w: artifact path exceeds OS limit (%d >= %d): %s",
				ErrInvalidName,
				len(path),
				maxPathLength,
				path,
			)
		}
	}

	return p, nil
}

func (p Paths) all() []string {
	return []string{p.Out, p.Err, p.Log, p.Exit, p.Meta, p.Signal, p.Lock}
}

// ContentFiles returns the artifact paths excluding the lock file,
// including any rotated log backups present on disk.
func (p Paths) ContentFiles() []string {
	files := []string{p.Out, p.Err, p.Log, p.Exit, p.Meta, p.Signal}

	return append(files, p.RotatedLogs()...)
}

// RotatedLogs returns existing numbered backups of the merged log, e.g.
// job.log.1, job.log.2.
func (p Paths) RotatedLogs() []string {
	matches, err := filepath.Glob(p.Log + ".*")
	if err != nil {
		return nil
	}

	return matches
}

// AnyExist reports whether any artifact of the job exists. The lock file
// counts: its presence means a launch is in progress even before the worker
// has emitted any output files, which closes a short window in which a wait
// issued immediately after a launch would report the job as unknown.
func (p Paths) AnyExist() bool {
	for _, path := range p.all() {
		if _, err := os.Lstat(path); err == nil {
			return true
		}
	}

	return false
}

// RemoveContent deletes all content artifacts of the job, ignoring files
// that don't exist. The lock file is left alone. Used by a new launch to
// clear a previous run's leftovers once the lock is held.
func (p Paths) RemoveContent() error {
	var lastErr error

	for _, path := range p.ContentFiles() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			lastErr = err
		}
	}

	return lastErr
}

// WriteFileAtomic makes data visible at path as a single operation by
// writing to a uniquely named temporary file in the same directory and
// renaming it into place. A reader racing the writer sees either the old
// content or the new, never a partial file. This matters for the exit
// marker and the metadata record specifically.
func WriteFileAtomic(path string, data []byte) error {
	tmp := fmt.Sprintf("%s.tmp-%s", path, uuid.NewString())

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)

		return err
	}

	return nil
}

// FileLen returns the size of the file at path, or 0 if it does not exist.
func FileLen(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}

	return info.Size()
}
