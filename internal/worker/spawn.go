package worker

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/nixpig/pend/internal/store"
)

// SubcommandName is the hidden CLI subcommand the detached worker process
// is started with. Users never invoke it directly.
const SubcommandName = "worker"

// Runtime configuration travels to the detached worker process through
// environment variables so the hidden subcommand's argument surface stays
// stable.
const (
	EnvTimeout    = "PEND_TIMEOUT"
	EnvRetries    = "PEND_RETRIES"
	EnvMaxLogSize = "PEND_MAX_LOG_SIZE"
	EnvDebug      = "PEND_DEBUG"
)

// Launch is the front door for starting a job: it validates the name and
// command, refuses duplicates via the advisory lock, clears a previous
// run's artifacts, and spawns the detached worker process. It returns as
// soon as the worker is launched; the job's own outcome is not reflected
// in Launch's error.
func Launch(st store.Store, name string, argv []string, opts Options) error {
	paths, err := st.Paths(name)
	if err != nil {
		return err
	}

	if len(argv) == 0 {
		return fmt.Errorf("%w: command cannot be empty", store.ErrInvalidName)
	}

	// Resolve the program up front so "command not found" surfaces here
	// instead of silently inside the detached worker.
	if _, err := exec.LookPath(argv[0]); err != nil {
		return fmt.Errorf("spawn '%s': %w", argv[0], err)
	}

	lock, err := paths.AcquireLock()
	if err != nil {
		return err
	}
	defer lock.Release()

	// Holding the lock guarantees no worker for this name is running, so
	// any existing artifacts are from a previous finished run and can be
	// cleared for a clean slate.
	if err := paths.RemoveContent(); err != nil {
		return fmt.Errorf("clear previous artifacts: %w", err)
	}

	return spawnDetached(st, name, argv, opts)
}

// spawnDetached re-executes this binary with the hidden worker subcommand,
// detached from the controlling terminal so it survives the parent's exit.
func spawnDetached(
	st store.Store,
	name string,
	argv []string,
	opts Options,
) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate own executable: %w", err)
	}

	args := append([]string{SubcommandName, name, "--"}, argv...)

	cmd := exec.Command(exe, args...)
	cmd.SysProcAttr = detachAttr()

	env := append(os.Environ(), store.EnvDir+"="+st.Dir)

	if opts.Timeout > 0 {
		secs := int64(opts.Timeout / time.Second)
		env = append(env, fmt.Sprintf("%s=%d", EnvTimeout, secs))
	}

	if opts.Retries > 0 {
		env = append(env, fmt.Sprintf("%s=%d", EnvRetries, opts.Retries))
	}

	if opts.MaxLogSize > 0 {
		env = append(env, fmt.Sprintf("%s=%d", EnvMaxLogSize, opts.MaxLogSize))
	}

	cmd.Env = env

	// Stdin/stdout/stderr stay disconnected (the null device) so the
	// worker's own streams never mix with the invoking shell.
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn worker process: %w", err)
	}

	// Not reaped by us; the worker outlives this process.
	return cmd.Process.Release()
}

// OptionsFromEnv reassembles Options inside the detached worker process.
func OptionsFromEnv() Options {
	var opts Options

	if secs, err := strconv.ParseInt(os.Getenv(EnvTimeout), 10, 64); err == nil {
		opts.Timeout = time.Duration(secs) * time.Second
	}

	if n, err := strconv.Atoi(os.Getenv(EnvRetries)); err == nil && n >= 0 {
		opts.Retries = n
	}

	if n, err := strconv.ParseInt(os.Getenv(EnvMaxLogSize), 10, 64); err == nil && n > 0 {
		opts.MaxLogSize = n
	}

	return opts
}
