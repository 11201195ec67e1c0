//go:build windows

package worker

import (
	"os"
	"os/exec"
	"syscall"
)

// detachAttr puts the worker in its own process group so Ctrl-C in the
// invoking console does not propagate to it.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}

	return cmd.Process.Kill()
}

// exitDetails returns the exit code only; Windows has no signal deaths, so
// the signal marker is never written on this platform.
func exitDetails(ps *os.ProcessState) (code int, signal int) {
	return ps.ExitCode(), 0
}

// ProcessAlive reports whether the process with the given pid exists.
// FindProcess only succeeds for live processes on Windows.
func ProcessAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	proc.Release()

	return true
}
