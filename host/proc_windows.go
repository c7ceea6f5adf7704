//go:build windows

package host

import (
	"os"
	"os/exec"
)

// The fabric's SHM transport has no Windows implementation (see
// shm/mmap_windows.go); these stubs exist only so the host package
// still builds on Windows for tooling purposes. Supervisor.spawn will
// fail at shm.Create before any of these matter.
func setDetachedProcess(cmd *exec.Cmd) {}

func processAlive(pid int) bool {
	_, err := os.FindProcess(pid)
	return err == nil
}

func sendSIGTERM(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}

func sendSIGUSR1(pid int) error { return nil }
