// Package worker executes one job's command as a detached child process
// and persists its artifacts.
//
// Launch is the front door called by the CLI: it validates, locks, and
// spawns a detached copy of this binary running the hidden worker
// subcommand. Run is what that detached process executes: the attempt
// loop with timeout enforcement and retries, with stdout and stderr
// drained concurrently and merged into a single chronologically ordered
// log by a single writer goroutine.
package worker
