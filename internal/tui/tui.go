// Package tui renders a listing of all jobs in the directory, either
// one-shot or live-refreshing. It only reads job state; all its
// information comes from the artifact files.
package tui

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/nixpig/pend/internal/store"
	"github.com/nixpig/pend/internal/worker"
)

// clearScreen moves the cursor home and clears the terminal.
const clearScreen = "\x1b[H\x1b[2J"

// Render writes a table of all jobs and their current status.
func Render(out io.Writer, st store.Store) error {
	names, err := store.ListJobs(st)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "JOB\tSTATUS\tATTEMPT\tPID\t\n")

	for _, name := range names {
		paths, err := st.Paths(name)
		if err != nil {
			// Stray file with an unusable name; not one of ours.
			continue
		}

		status := jobStatus(paths)

		attempt, pid := "-", "-"

		if record, err := paths.ReadRecord(); err == nil {
			attempt = fmt.Sprintf("%d", record.Attempt)
			pid = fmt.Sprintf("%d", record.PID)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", name, status, attempt, pid)
	}

	return w.Flush()
}

// Watch re-renders the listing at the given interval until ctx is
// cancelled, Ctrl-C typically.
func Watch(ctx context.Context, out io.Writer, st store.Store, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		fmt.Fprint(out, clearScreen)
		fmt.Fprintln(out, "press Ctrl-C to quit")
		fmt.Fprintln(out)

		if err := Render(out, st); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func jobStatus(paths store.Paths) string {
	code, ok, err := paths.ReadExitCode()
	if err == nil && ok {
		return fmt.Sprintf("exit %d", code)
	}

	if paths.LockHeld() {
		return "running"
	}

	// No exit marker and no live lock holder: either the worker is still
	// between launch and lock, or it died without finishing.
	if record, rerr := paths.ReadRecord(); rerr == nil && record.PID > 0 {
		if worker.ProcessAlive(record.PID) {
			return "running"
		}
	}

	return "pending"
}
