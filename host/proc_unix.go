//go:build !windows

package host

import (
	"os"
	"os/exec"
	"syscall"
)

// setDetachedProcess puts the cell in its own session so a signal sent
// to the host's process group does not also reach it directly;
// signal fan-out to cells goes through sendSIGTERM/sendSIGUSR1
// explicitly instead. Mirrors the teacher pack's
// cmd/dev-console/proc_unix.go.
func setDetachedProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func sendSIGTERM(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}

func sendSIGUSR1(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGUSR1)
}
