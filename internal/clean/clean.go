// Package clean deletes artifacts of finished jobs. It is read-only with
// respect to running jobs: a job whose advisory lock is held is refused.
package clean

import (
	"fmt"
	"os"

	"github.com/nixpig/pend/internal/store"
)

// Job removes every artifact of the named job, rotated logs and lock file
// included. Returns ErrUnknownJob when nothing exists for the name and
// ErrBusy when the job is still running.
func Job(st store.Store, name string) error {
	paths, err := st.Paths(name)
	if err != nil {
		return err
	}

	if !paths.AnyExist() {
		return &store.NameError{Name: name, Err: store.ErrUnknownJob}
	}

	if paths.LockHeld() {
		return &store.NameError{Name: name, Err: store.ErrBusy}
	}

	if err := paths.RemoveContent(); err != nil {
		return fmt.Errorf("remove artifacts of '%s': %w", name, err)
	}

	// The lock is advisory and not held, so deleting its file is safe.
	if err := os.Remove(paths.Lock); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

// All cleans every finished job in the directory. Running jobs are left
// alone; their names are returned so the caller can report them.
func All(st store.Store) (skipped []string, err error) {
	names, err := store.ListJobs(st)
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		if err := Job(st, name); err != nil {
			if paths, perr := st.Paths(name); perr == nil && paths.LockHeld() {
				skipped = append(skipped, name)

				continue
			}

			return skipped, err
		}
	}

	return skipped, nil
}
