package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/nixpig/pend/internal/store"
)

// spawnFailureExitCode is recorded when the command cannot be launched at
// all (not found, permission denied), matching shell convention.
const spawnFailureExitCode = 127

// lockGraceWindow is how long the detached worker keeps retrying the
// advisory lock. The front door that spawned it may still be holding the
// lock for a moment while it returns.
const lockGraceWindow = 2 * time.Second

// Options carries the runtime configuration of one job execution.
type Options struct {
	// Timeout is the wall-clock bound per attempt. Zero means unbounded.
	Timeout time.Duration

	// Retries is how many additional attempts a failing command gets.
	Retries int

	// MaxLogSize bounds the merged log; when exceeded the log rotates to
	// a numbered backup. Zero means unbounded.
	MaxLogSize int64
}

// attemptResult is the outcome of a single execution attempt.
type attemptResult struct {
	state    AttemptState
	exitCode int
	signal   int
	pid      int
	started  time.Time
	ended    time.Time
}

// Run executes the job to completion inside the detached worker process:
// acquires the advisory lock, runs the command with retries, and persists
// all artifacts. The write ordering on the way out is the crash-safety
// contract: merged log flushed and closed, then exit marker, then metadata,
// then signal marker, then the lock is released. A waiter that observes the
// exit marker therefore never reads a truncated log.
func Run(
	st store.Store,
	name string,
	argv []string,
	opts Options,
	logger *slog.Logger,
) error {
	paths, err := st.Paths(name)
	if err != nil {
		return err
	}

	if len(argv) == 0 {
		return errors.New("command cannot be empty")
	}

	lock, err := acquireWithGrace(paths)
	if err != nil {
		return err
	}
	defer lock.Release()

	var (
		res          attemptResult
		firstStarted time.Time
		attempt      int
	)

	for attempt = 1; ; attempt++ {
		res, err = runAttempt(paths, argv, opts, attempt > 1)
		if err != nil {
			// The command never started. Retries apply to a started-but-
			// failing process, not to spawn failure, so record the outcome
			// and stop; a waiter must still see a terminal marker.
			logger.Error("spawn failed", "job", name, "err", err)

			paths.WriteExitCode(spawnFailureExitCode)
			paths.WriteRecord(&store.Record{
				Job:      name,
				Cmd:      argv,
				Started:  time.Now().UTC(),
				Ended:    time.Now().UTC(),
				ExitCode: spawnFailureExitCode,
				Attempt:  attempt,
			})
			lock.ReleaseAndRemove()

			return err
		}

		if attempt == 1 {
			firstStarted = res.started
		}

		logger.Info(
			"attempt finished",
			"job", name,
			"attempt", attempt,
			"state", res.state,
			"exit_code", res.exitCode,
		)

		if res.state == AttemptStateSucceeded || attempt > opts.Retries {
			break
		}
	}

	if err := paths.WriteExitCode(res.exitCode); err != nil {
		return fmt.Errorf("write exit marker: %w", err)
	}

	record := &store.Record{
		Job:      name,
		Cmd:      argv,
		PID:      res.pid,
		Started:  firstStarted,
		Ended:    res.ended,
		ExitCode: res.exitCode,
		Attempt:  attempt,
		Signal:   res.signal,
	}

	if err := paths.WriteRecord(record); err != nil {
		return fmt.Errorf("write job record: %w", err)
	}

	if res.signal > 0 {
		if err := paths.WriteSignal(res.signal); err != nil {
			return fmt.Errorf("write signal marker: %w", err)
		}
	}

	return lock.ReleaseAndRemove()
}

func acquireWithGrace(paths store.Paths) (*store.Lock, error) {
	deadline := time.Now().Add(lockGraceWindow)

	for {
		lock, err := paths.AcquireLock()
		if err == nil {
			return lock, nil
		}

		if !errors.Is(err, store.ErrBusy) || time.Now().After(deadline) {
			return nil, err
		}

		time.Sleep(50 * time.Millisecond)
	}
}

// runAttempt executes the command once. The raw stream captures are
// truncated each attempt so they reflect only the attempt that produced
// the final result; the merged log appends across attempts with a retry
// separator so a waiter replays every attempt's output.
func runAttempt(
	paths store.Paths,
	argv []string,
	opts Options,
	appendLog bool,
) (attemptResult, error) {
	res := attemptResult{state: AttemptStateSpawning}

	outFile, err := os.Create(paths.Out)
	if err != nil {
		return res, fmt.Errorf("create stdout capture: %w", err)
	}

	errFile, err := os.Create(paths.Err)
	if err != nil {
		outFile.Close()

		return res, fmt.Errorf("create stderr capture: %w", err)
	}

	m, err := newMerger(paths.Log, opts.MaxLogSize, appendLog)
	if err != nil {
		outFile.Close()
		errFile.Close()

		return res, err
	}

	cmd := exec.Command(argv[0], argv[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return res, fmt.Errorf("pipe stdout: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return res, fmt.Errorf("pipe stderr: %w", err)
	}

	res.started = time.Now().UTC()

	if err := cmd.Start(); err != nil {
		outFile.Close()
		errFile.Close()
		m.wait()

		return res, fmt.Errorf("start process: %w", err)
	}

	res.state = AttemptStateRunning
	res.pid = cmd.Process.Pid

	m.drain(stdout, outFile)
	m.drain(stderr, errFile)

	// Race child exit against the deadline. Draining finishes first in
	// either case: a killed child closes its pipes, which unblocks the
	// readers, and Wait must not be called before reading completes.
	exited := make(chan error, 1)

	go func() {
		mergeErr := m.wait()

		waitErr := cmd.Wait()
		if waitErr == nil {
			waitErr = mergeErr
		}

		exited <- waitErr
	}()

	timedOut := false

	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()

		select {
		case err = <-exited:
		case <-timer.C:
			timedOut = true

			terminate(cmd)

			err = <-exited
		}
	} else {
		err = <-exited
	}

	res.ended = time.Now().UTC()

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return res, err
	}

	res.exitCode, res.signal = exitDetails(cmd.ProcessState)

	switch {
	case timedOut:
		res.state = AttemptStateTimedOut
	case res.signal > 0:
		res.state = AttemptStateKilled
	case res.exitCode == 0:
		res.state = AttemptStateSucceeded
	default:
		res.state = AttemptStateFailed
	}

	return res, nil
}
