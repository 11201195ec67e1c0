package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nixpig/pend/internal/store"
	"github.com/nixpig/pend/internal/worker"
)

func execute(t *testing.T, c *cli, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer

	command := c.rootCmd()
	command.SetOut(&buf)
	command.SetErr(&buf)
	command.SetArgs(args)

	err := command.ExecuteContext(context.Background())

	return buf.String(), err
}

func TestCLI(t *testing.T) {
	t.Run("Test job flags map to worker options", func(t *testing.T) {
		t.Parallel()

		flags := &jobFlags{
			timeoutSecs: 90,
			retries:     2,
			maxLogSize:  4096,
		}

		opts := flags.options()

		if opts.Timeout != 90*time.Second {
			t.Errorf("expected timeout: got '%v', want '90s'", opts.Timeout)
		}

		if opts.Retries != 2 {
			t.Errorf("expected retries: got '%d', want '2'", opts.Retries)
		}

		if opts.MaxLogSize != 4096 {
			t.Errorf("expected max log size: got '%d', want '4096'", opts.MaxLogSize)
		}
	})

	t.Run("Test do rejects invalid job name", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()

		_, err := execute(
			t,
			newCLI(),
			"--dir", dir,
			"do", "../escape", "echo", "hi",
		)

		if !errors.Is(err, store.ErrInvalidName) {
			t.Errorf("expected ErrInvalidName: got '%v'", err)
		}

		entries, rerr := os.ReadDir(dir)
		if rerr != nil {
			t.Fatalf("expected not to receive error: got '%v'", rerr)
		}

		if len(entries) != 0 {
			t.Errorf("expected no artifacts written: got %d entries", len(entries))
		}
	})

	t.Run("Test do rejects unknown program", func(t *testing.T) {
		t.Parallel()

		_, err := execute(
			t,
			newCLI(),
			"--dir", t.TempDir(),
			"do", "job", "definitely-not-a-real-program-xyz",
		)

		if err == nil {
			t.Error("expected spawn failure to surface from do")
		}
	})

	t.Run("Test wait surfaces unknown job", func(t *testing.T) {
		t.Parallel()

		_, err := execute(
			t,
			newCLI(),
			"--dir", t.TempDir(),
			"wait", "ghost",
		)

		if !errors.Is(err, store.ErrUnknownJob) {
			t.Errorf("expected ErrUnknownJob: got '%v'", err)
		}
	})

	t.Run("Test wait carries aggregate exit code", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()

		st, err := store.New(dir)
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		paths, err := st.Paths("failed")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if err := os.WriteFile(paths.Log, []byte("boom\n"), 0o644); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if err := paths.WriteExitCode(3); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		c := newCLI()

		output, err := execute(t, c, "--dir", dir, "--no-color", "wait", "failed")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if c.exitCode != 3 {
			t.Errorf("expected exit code: got '%d', want '3'", c.exitCode)
		}

		if !strings.Contains(output, "boom") {
			t.Errorf("expected replayed output: got '%q'", output)
		}
	})

	t.Run("Test list renders the jobs table", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()

		st, err := store.New(dir)
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		paths, err := st.Paths("done")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if err := paths.WriteExitCode(0); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		output, err := execute(t, newCLI(), "--dir", dir, "list")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if !strings.Contains(output, "done") || !strings.Contains(output, "exit 0") {
			t.Errorf("expected job row: got '%q'", output)
		}
	})

	t.Run("Test clean requires names or --all", func(t *testing.T) {
		t.Parallel()

		if _, err := execute(t, newCLI(), "--dir", t.TempDir(), "clean"); err == nil {
			t.Error("expected error when neither names nor --all given")
		}
	})

	t.Run("Test worker options from environment", func(t *testing.T) {
		t.Setenv(worker.EnvTimeout, "30")
		t.Setenv(worker.EnvRetries, "4")
		t.Setenv(worker.EnvMaxLogSize, "1024")

		opts := worker.OptionsFromEnv()

		if opts.Timeout != 30*time.Second || opts.Retries != 4 || opts.MaxLogSize != 1024 {
			t.Errorf("expected options from env: got '%+v'", opts)
		}
	})

	t.Run("Test default dir honors environment", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "custom")

		t.Setenv(store.EnvDir, dir)

		if got := store.DefaultDir(); got != dir {
			t.Errorf("expected default dir: got '%s', want '%s'", got, dir)
		}
	})
}
