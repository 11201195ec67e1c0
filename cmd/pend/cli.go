package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nixpig/pend/internal/clean"
	"github.com/nixpig/pend/internal/store"
	"github.com/nixpig/pend/internal/tui"
	"github.com/nixpig/pend/internal/wait"
	"github.com/nixpig/pend/internal/worker"
)

// TODO: Inject version at build time.
const version = "0.1.0"

type config struct {
	dir     string
	noColor bool
}

type cli struct {
	store store.Store

	// exitCode carries the aggregate code computed by `wait` out to
	// main, since the job outcomes it reflects are not errors of the
	// CLI itself.
	exitCode int
}

func newCLI() *cli {
	return &cli{}
}

func (c *cli) rootCmd() *cobra.Command {
	cfg := &config{}

	command := &cobra.Command{
		Use:          "pend",
		Short:        "do now, wait later – a tiny background-job runner",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dir := cfg.dir
			if dir == "" {
				dir = store.DefaultDir()
			}

			st, err := store.New(dir)
			if err != nil {
				return err
			}

			c.store = st

			if cfg.noColor {
				color.NoColor = true
			}

			return nil
		},
	}

	command.AddCommand(
		c.doCmd(),
		c.waitCmd(),
		c.cleanCmd(),
		c.listCmd(),
		c.workerCmd(),
	)

	command.CompletionOptions.HiddenDefaultCmd = true

	command.PersistentFlags().StringVar(
		&cfg.dir,
		"dir",
		"",
		"Jobs directory (default $PEND_DIR or a temp location)",
	)

	command.PersistentFlags().BoolVar(
		&cfg.noColor,
		"no-color",
		false,
		"Disable ANSI colors in multi-job output (NO_COLOR also honored)",
	)

	return command
}

// addJobFlags registers the runtime options shared by the `do` surface.
func addJobFlags(flags *pflag.FlagSet, opts *jobFlags) {
	flags.Uint64Var(
		&opts.timeoutSecs,
		"timeout",
		0,
		"Wall-clock timeout per attempt, in seconds (0 = unbounded)",
	)

	flags.IntVar(
		&opts.retries,
		"retries",
		0,
		"Number of additional attempts when the command fails",
	)

	flags.Int64Var(
		&opts.maxLogSize,
		"max-log-size",
		0,
		"Rotate the merged log beyond this many bytes (0 = unbounded)",
	)
}

type jobFlags struct {
	timeoutSecs uint64
	retries     int
	maxLogSize  int64
}

func (f *jobFlags) options() worker.Options {
	return worker.Options{
		Timeout:    time.Duration(f.timeoutSecs) * time.Second,
		Retries:    f.retries,
		MaxLogSize: f.maxLogSize,
	}
}

func (c *cli) doCmd() *cobra.Command {
	opts := &jobFlags{}

	command := &cobra.Command{
		Use:     "do [flags] JOB_NAME PROGRAM [ARGS]",
		Short:   "Start a job in the background",
		Example: "  pend do --timeout 60 build make -j4",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return worker.Launch(c.store, args[0], args[1:], opts.options())
		},
	}

	// Stop parsing flags at the first positional arg so flags belonging
	// to the program being run are passed as-is, e.g. `-j4` is an
	// argument to `make`, not to `pend do`.
	command.Flags().SetInterspersed(false)

	addJobFlags(command.Flags(), opts)

	return command
}

func (c *cli) waitCmd() *cobra.Command {
	var timeoutSecs uint64

	command := &cobra.Command{
		Use:     "wait [flags] JOB_NAME...",
		Short:   "Block on one or more jobs and replay their output",
		Example: "  pend wait build tests",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if timeoutSecs > 0 {
				var cancel context.CancelFunc

				ctx, cancel = context.WithTimeout(
					ctx,
					time.Duration(timeoutSecs)*time.Second,
				)
				defer cancel()
			}

			engine := &wait.Engine{
				Store: c.store,
				Out:   cmd.OutOrStdout(),
			}

			code, err := engine.Wait(ctx, args)
			if err != nil {
				return err
			}

			c.exitCode = code

			return nil
		},
	}

	command.Flags().Uint64Var(
		&timeoutSecs,
		"timeout",
		0,
		"Give up waiting after this many seconds (0 = wait forever)",
	)

	return command
}

func (c *cli) cleanCmd() *cobra.Command {
	var all bool

	command := &cobra.Command{
		Use:     "clean [flags] [JOB_NAME...]",
		Short:   "Delete artifacts of finished jobs",
		Example: "  pend clean build\n  pend clean --all",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				skipped, err := clean.All(c.store)
				if err != nil {
					return err
				}

				for _, name := range skipped {
					fmt.Fprintf(
						cmd.ErrOrStderr(),
						"skipping '%s': still running\n",
						name,
					)
				}

				return nil
			}

			if len(args) == 0 {
				return fmt.Errorf("specify job names or --all")
			}

			for _, name := range args {
				if err := clean.Job(c.store, name); err != nil {
					return err
				}
			}

			return nil
		},
	}

	command.Flags().BoolVar(&all, "all", false, "Clean every finished job")

	return command
}

func (c *cli) listCmd() *cobra.Command {
	var (
		watch        bool
		intervalSecs uint64
	)

	command := &cobra.Command{
		Use:     "list [flags]",
		Short:   "Show all jobs and their status",
		Example: "  pend list --watch",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !watch {
				return tui.Render(cmd.OutOrStdout(), c.store)
			}

			return tui.Watch(
				cmd.Context(),
				cmd.OutOrStdout(),
				c.store,
				time.Duration(intervalSecs)*time.Second,
			)
		},
	}

	command.Flags().BoolVar(&watch, "watch", false, "Refresh continuously")
	command.Flags().Uint64Var(
		&intervalSecs,
		"interval",
		1,
		"Refresh interval in seconds, with --watch",
	)

	return command
}

// workerCmd is the hidden entry point executed by the detached worker
// process that `do` spawns. Users never call it directly.
func (c *cli) workerCmd() *cobra.Command {
	command := &cobra.Command{
		Use:    worker.SubcommandName + " JOB_NAME PROGRAM [ARGS]",
		Hidden: true,
		Args:   cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return worker.Run(
				c.store,
				args[0],
				args[1:],
				worker.OptionsFromEnv(),
				workerLogger(c.store),
			)
		},
	}

	command.Flags().SetInterspersed(false)

	return command
}

// workerLogger returns a debug logger for the detached worker. The worker
// has no terminal, so by default everything is discarded; setting
// PEND_DEBUG appends a trace to a file in the jobs directory.
func workerLogger(st store.Store) *slog.Logger {
	if os.Getenv(worker.EnvDebug) == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	// The .debug extension is not a recognized artifact kind, so the
	// trace file never shows up as a job in listings.
	file, err := os.OpenFile(
		filepath.Join(st.Dir, "pend.debug"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0o644,
	)
	if err != nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return slog.New(slog.NewTextHandler(file, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}
