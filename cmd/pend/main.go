// Command pend is a background-job runner: it launches commands detached
// from the invoking shell, records their output and exit state to disk,
// and lets any later process block on completion and replay the output.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		os.Interrupt,
	)
	defer cancel()

	c := newCLI()

	if err := c.rootCmd().ExecuteContext(ctx); err != nil {
		return 1
	}

	return c.exitCode
}
