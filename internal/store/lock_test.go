package store_test

import (
	"errors"
	"os"
	"testing"

	"github.com/nixpig/pend/internal/store"
)

func TestAdvisoryLock(t *testing.T) {
	t.Parallel()

	t.Run("Test lock round-trip", func(t *testing.T) {
		t.Parallel()

		st := newTestStore(t)

		paths, err := st.Paths("locked")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		first, err := paths.AcquireLock()
		if err != nil {
			t.Fatalf("expected first acquire to succeed: got '%v'", err)
		}

		if _, err := paths.AcquireLock(); !errors.Is(err, store.ErrBusy) {
			t.Errorf("expected ErrBusy for second acquire: got '%v'", err)
		}

		if !paths.LockHeld() {
			t.Error("expected LockHeld to report held")
		}

		if err := first.Release(); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if paths.LockHeld() {
			t.Error("expected LockHeld to report not held after release")
		}

		third, err := paths.AcquireLock()
		if err != nil {
			t.Fatalf("expected acquire after release to succeed: got '%v'", err)
		}

		third.Release()
	})

	t.Run("Test release is idempotent", func(t *testing.T) {
		t.Parallel()

		st := newTestStore(t)

		paths, err := st.Paths("once")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		lock, err := paths.AcquireLock()
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if err := lock.Release(); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if err := lock.Release(); err != nil {
			t.Errorf("expected repeated release to be a no-op: got '%v'", err)
		}
	})

	t.Run("Test release and remove deletes lock file", func(t *testing.T) {
		t.Parallel()

		st := newTestStore(t)

		paths, err := st.Paths("gone")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		lock, err := paths.AcquireLock()
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if err := lock.ReleaseAndRemove(); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if _, err := os.Lstat(paths.Lock); !os.IsNotExist(err) {
			t.Errorf("expected lock file to be removed: got '%v'", err)
		}
	})

	t.Run("Test lock held with no holder", func(t *testing.T) {
		t.Parallel()

		st := newTestStore(t)

		paths, err := st.Paths("stale")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		// A leftover lock file without a live holder, e.g. after a crash,
		// must not block a new launch.
		if err := os.WriteFile(paths.Lock, nil, 0o644); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if paths.LockHeld() {
			t.Error("expected stale lock file to report not held")
		}

		lock, err := paths.AcquireLock()
		if err != nil {
			t.Fatalf("expected acquire over stale lock file: got '%v'", err)
		}

		lock.Release()
	})
}
