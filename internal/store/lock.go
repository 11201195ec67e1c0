package store

import (
	"fmt"
	"os"

	"github.com/gofrs/flock"
)

// Lock is a held advisory lock over a job's lock file. It is cooperative:
// every writer to a job's artifacts must acquire it first, and the OS
// releases it when the holding process exits, crash included.
type Lock struct {
	fl       *flock.Flock
	released bool
}

// AcquireLock takes the advisory lock for the job without blocking.
// Returns ErrBusy when another live process already holds it.
func (p Paths) AcquireLock() (*Lock, error) {
	fl := flock.New(p.Lock)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock '%s': %w", p.Lock, err)
	}

	if !locked {
		return nil, &NameError{Name: p.Name, Err: ErrBusy}
	}

	return &Lock{fl: fl}, nil
}

// LockHeld reports whether some other process currently holds the job's
// advisory lock. A missing lock file means not held.
func (p Paths) LockHeld() bool {
	if _, err := os.Lstat(p.Lock); err != nil {
		return false
	}

	fl := flock.New(p.Lock)

	locked, err := fl.TryLock()
	if err != nil || !locked {
		return true
	}

	fl.Unlock()

	return false
}

// Release drops the lock. Safe to call more than once; only the first call
// has effect, so it can sit in a defer while the worker also releases
// explicitly on the success path.
func (l *Lock) Release() error {
	if l.released {
		return nil
	}

	l.released = true

	return l.fl.Unlock()
}

// ReleaseAndRemove drops the lock and deletes the lock file so a lingering
// zero-length .lock does not make a finished job look in-flight.
func (l *Lock) ReleaseAndRemove() error {
	path := l.fl.Path()

	if err := l.Release(); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}
