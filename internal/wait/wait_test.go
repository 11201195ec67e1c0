package wait_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/nixpig/pend/internal/store"
	"github.com/nixpig/pend/internal/wait"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	return st
}

// finishJob lays down the artifacts of a completed job the way the worker
// does, log first, exit marker last.
func finishJob(t *testing.T, st store.Store, name, logContent string, exitCode int) {
	t.Helper()

	paths, err := st.Paths(name)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	if err := os.WriteFile(paths.Log, []byte(logContent), 0o644); err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	now := time.Now().UTC()

	if err := paths.WriteRecord(&store.Record{
		Job:      name,
		Cmd:      []string{"true"},
		PID:      1234,
		Started:  now.Add(-2 * time.Second),
		Ended:    now,
		ExitCode: exitCode,
		Attempt:  1,
	}); err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	if err := paths.WriteExitCode(exitCode); err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}
}

func waitFor(
	t *testing.T,
	st store.Store,
	names []string,
	timeout time.Duration,
) (int, string, error) {
	t.Helper()

	ctx := context.Background()

	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var buf bytes.Buffer

	engine := &wait.Engine{Store: st, Out: &buf}

	code, err := engine.Wait(ctx, names)

	return code, buf.String(), err
}

func TestWait(t *testing.T) {
	color.NoColor = true

	t.Run("Test unknown job", func(t *testing.T) {
		st := newTestStore(t)

		_, _, err := waitFor(t, st, []string{"ghost"}, time.Second)
		if !errors.Is(err, store.ErrUnknownJob) {
			t.Errorf("expected ErrUnknownJob: got '%v'", err)
		}
	})

	t.Run("Test replay of finished job", func(t *testing.T) {
		st := newTestStore(t)

		finishJob(t, st, "done", "line one\nline two\n", 0)

		code, output, err := waitFor(t, st, []string{"done"}, 5*time.Second)
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if code != 0 {
			t.Errorf("expected aggregate code: got '%d', want '0'", code)
		}

		if !strings.HasPrefix(output, "line one\nline two\n") {
			t.Errorf("expected log replay first: got '%q'", output)
		}

		if !strings.Contains(output, "✓ done (2 s) – exit 0") {
			t.Errorf("expected summary line: got '%q'", output)
		}
	})

	t.Run("Test aggregate code follows argument order", func(t *testing.T) {
		st := newTestStore(t)

		finishJob(t, st, "ok", "fine\n", 0)
		finishJob(t, st, "bad", "broke\n", 3)
		finishJob(t, st, "worse", "broke more\n", 9)

		scenarios := map[string]struct {
			names []string
			want  int
		}{
			"All succeed":             {names: []string{"ok"}, want: 0},
			"Failure after success":   {names: []string{"ok", "bad"}, want: 3},
			"First failure wins":      {names: []string{"bad", "worse"}, want: 3},
			"Order decides, not code": {names: []string{"worse", "bad"}, want: 9},
		}

		for scenario, config := range scenarios {
			t.Run(scenario, func(t *testing.T) {
				code, _, err := waitFor(t, st, config.names, 5*time.Second)
				if err != nil {
					t.Fatalf("expected not to receive error: got '%v'", err)
				}

				if code != config.want {
					t.Errorf(
						"expected aggregate code: got '%d', want '%d'",
						code,
						config.want,
					)
				}
			})
		}
	})

	t.Run("Test streaming of a job finishing concurrently", func(t *testing.T) {
		st := newTestStore(t)

		paths, err := st.Paths("late")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		// Simulate a running job: the lock artifact exists, output and
		// the exit marker arrive while the waiter is already blocked.
		if err := os.WriteFile(paths.Lock, nil, 0o644); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		go func() {
			time.Sleep(200 * time.Millisecond)
			os.WriteFile(paths.Log, []byte("early output\n"), 0o644)

			time.Sleep(200 * time.Millisecond)

			f, _ := os.OpenFile(paths.Log, os.O_WRONLY|os.O_APPEND, 0o644)
			f.WriteString("late output\n")
			f.Close()

			paths.WriteExitCode(0)
		}()

		code, output, err := waitFor(t, st, []string{"late"}, 15*time.Second)
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if code != 0 {
			t.Errorf("expected aggregate code: got '%d', want '0'", code)
		}

		if !strings.Contains(output, "early output\n") ||
			!strings.Contains(output, "late output\n") {
			t.Errorf("expected all streamed output: got '%q'", output)
		}
	})

	t.Run("Test deadline does not mutate artifacts", func(t *testing.T) {
		st := newTestStore(t)

		paths, err := st.Paths("stuck")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if err := os.WriteFile(paths.Log, []byte("partial\n"), 0o644); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		_, _, err = waitFor(t, st, []string{"stuck"}, 300*time.Millisecond)
		if !errors.Is(err, wait.ErrDeadline) {
			t.Errorf("expected ErrDeadline: got '%v'", err)
		}

		data, err := os.ReadFile(paths.Log)
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if string(data) != "partial\n" {
			t.Errorf("expected log untouched: got '%q'", data)
		}
	})

	t.Run("Test no names supplied", func(t *testing.T) {
		st := newTestStore(t)

		if _, _, err := waitFor(t, st, nil, time.Second); err == nil {
			t.Error("expected error for empty name list")
		}
	})
}
