//go:build unix

package worker

import (
	"os"
	"os/exec"
	"syscall"
)

// detachAttr configures the worker process to run in its own session so it
// survives the invoking shell exiting and does not receive its Ctrl-C.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// terminate forcibly kills the child process after a timeout. The readers
// draining its pipes unblock on the resulting EOF.
func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}

	return cmd.Process.Kill()
}

// exitDetails extracts the exit code and, if the process died by signal,
// the signal number. Signal deaths map to 128+signal, matching shell
// convention.
func exitDetails(ps *os.ProcessState) (code int, signal int) {
	ws, ok := ps.Sys().(syscall.WaitStatus)
	if ok && ws.Signaled() {
		sig := int(ws.Signal())

		return 128 + sig, sig
	}

	return ps.ExitCode(), 0
}

// ProcessAlive reports whether the process with the given pid exists.
// Signal 0 performs error checking only; nothing is delivered.
func ProcessAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
