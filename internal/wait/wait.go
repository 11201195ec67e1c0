// Package wait blocks on one or more jobs' completion and replays their
// merged logs. Multi-job output is interleaved live, tagged with a stable
// color per job; once everything is complete a summary line per job is
// printed and the aggregate exit code is computed.
package wait

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/nixpig/pend/internal/store"
	"github.com/nixpig/pend/internal/watcher"
)

// ErrDeadline is returned when a caller-supplied deadline elapses before
// every requested job completes. Waiting never mutates job artifacts, so
// hitting the deadline leaves all on-disk state untouched.
var ErrDeadline = errors.New("timed out waiting for jobs")

// palette yields a stable color per position in the argument list.
var palette = []color.Attribute{
	color.FgRed,
	color.FgGreen,
	color.FgYellow,
	color.FgBlue,
	color.FgMagenta,
	color.FgCyan,
}

// Engine replays jobs from a Store to an output writer.
type Engine struct {
	Store store.Store

	// Out receives the replayed logs and summary lines. Defaults to
	// os.Stdout when nil.
	Out io.Writer
}

// jobTail tracks one waited job: how much of its merged log has been
// replayed and whether its exit marker has appeared.
type jobTail struct {
	paths    store.Paths
	offset   int64
	exitCode int
	finished bool
	color    *color.Color
}

// Wait blocks until every named job completes, streaming new log content
// as it arrives. It returns the aggregate exit code: the code of the first
// job, in the order the caller listed them, that did not succeed; zero
// when all succeed. The order is the caller's argument order, not
// completion order, so the result is deterministic under concurrent
// completion.
func (e *Engine) Wait(ctx context.Context, names []string) (int, error) {
	if len(names) == 0 {
		return 0, errors.New("no job names supplied")
	}

	out := e.Out
	if out == nil {
		out = os.Stdout
	}

	useColor := len(names) > 1

	tails := make([]*jobTail, 0, len(names))

	for i, name := range names {
		paths, err := e.Store.Paths(name)
		if err != nil {
			return 0, err
		}

		// A job with no artifacts at all would keep the waiter blocked
		// forever; surface it as a usage error up front. The lock file
		// counts as an artifact: a freshly launched job may not have
		// produced output files yet.
		if !paths.AnyExist() {
			return 0, &store.NameError{Name: name, Err: store.ErrUnknownJob}
		}

		tail := &jobTail{paths: paths}
		if useColor {
			tail.color = color.New(palette[i%len(palette)])
		}

		tails = append(tails, tail)
	}

	w := watcher.New(e.Store.Dir)
	defer w.Close()

	for {
		remaining := 0
		progress := false

		for _, tail := range tails {
			p, err := tail.poll(out)
			if err != nil {
				return 0, err
			}

			progress = progress || p

			if !tail.finished {
				remaining++
			}
		}

		if remaining == 0 {
			break
		}

		if progress {
			w.MarkProgress()
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return 0, ErrDeadline
			}

			return 0, ctx.Err()
		case <-w.Changes():
		}
	}

	// Final drain: output written between the last poll and the exit
	// marker appearing is already on disk by the marker contract.
	for _, tail := range tails {
		if _, err := tail.poll(out); err != nil {
			return 0, err
		}
	}

	for _, tail := range tails {
		tail.summarize(out)
	}

	for _, tail := range tails {
		if tail.exitCode != 0 {
			return tail.exitCode, nil
		}
	}

	return 0, nil
}

// poll replays any new bytes of the merged log and checks for the exit
// marker. Reports whether new information became available.
func (t *jobTail) poll(out io.Writer) (bool, error) {
	progress, err := t.replayNew(out)
	if err != nil {
		return false, err
	}

	if !t.finished {
		code, ok, err := t.paths.ReadExitCode()
		if err != nil {
			return progress, err
		}

		if ok {
			t.exitCode = code
			t.finished = true
			progress = true
		}
	}

	return progress, nil
}

func (t *jobTail) replayNew(out io.Writer) (bool, error) {
	size := store.FileLen(t.paths.Log)
	if size <= t.offset {
		return false, nil
	}

	file, err := os.Open(t.paths.Log)
	if err != nil {
		return false, err
	}
	defer file.Close()

	if _, err := file.Seek(t.offset, io.SeekStart); err != nil {
		return false, err
	}

	buf := make([]byte, size-t.offset)

	n, err := io.ReadFull(file, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return false, err
	}

	t.offset += int64(n)

	if n == 0 {
		return false, nil
	}

	if t.color != nil {
		t.color.Fprint(out, string(buf[:n]))
	} else {
		out.Write(buf[:n])
	}

	return true, nil
}

// summarize prints the terminal status line for the job, with the duration
// taken from the metadata record when it is readable.
func (t *jobTail) summarize(out io.Writer) {
	var secs int64

	if record, err := t.paths.ReadRecord(); err == nil {
		if d := record.Ended.Sub(record.Started); d > 0 {
			secs = int64(d.Seconds())
		}
	}

	symbol := "✓"
	if t.exitCode != 0 {
		symbol = "✗"
	}

	fmt.Fprintf(
		out,
		"%s %s (%d s) – exit %d\n",
		symbol,
		t.paths.Name,
		secs,
		t.exitCode,
	)
}
