//go:build windows
// +build windows

// The SHM ring transport's memfd/mmap path is POSIX-specific (no
// memfd_create or mmap(2) equivalent is wired on Windows in this
// build); cells on Windows are out of scope for this fabric today, the
// same boundary the reactor and NUMA packages in this codebase's
// lineage draw (iocp_reactor.go / numa_windows.go implement their own
// concerns but still stop short of a full port where no portable
// syscall exists).
package shm

import "fmt"

func createAnonymous(name string, size int64) (fd int, path string, err error) {
	return -1, "", fmt.Errorf("shm: anonymous segments are not supported on windows")
}

func mmapFd(fd int, size int64) ([]byte, error) {
	return nil, fmt.Errorf("shm: mmap is not supported on windows")
}

func munmap(mem []byte) error {
	return fmt.Errorf("shm: munmap is not supported on windows")
}

func openByPath(path string) (fd int, err error) {
	return -1, fmt.Errorf("shm: open by path is not supported on windows")
}
