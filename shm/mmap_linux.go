//go:build linux
// +build linux

package shm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// createAnonymous allocates an anonymous, shareable memory-backed file
// via memfd_create and sizes it to size bytes. The returned path is a
// /proc/self/fd/<n> reference usable only by this process; cells
// instead receive the fd number itself through process inheritance
// (the ticket's Path field carries that /proc path for clarity in logs
// and diagnostics, not as the attach mechanism).
func createAnonymous(name string, size int64) (fd int, path string, err error) {
	fd, err = unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return -1, "", fmt.Errorf("shm: memfd_create: %w", err)
	}
	if err = unix.Ftruncate(fd, size); err != nil {
		unix.Close(fd)
		return -1, "", fmt.Errorf("shm: ftruncate: %w", err)
	}
	return fd, fmt.Sprintf("/proc/self/fd/%d", fd), nil
}

func mmapFd(fd int, size int64) ([]byte, error) {
	mem, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap: %w", err)
	}
	return mem, nil
}

func munmap(mem []byte) error {
	return unix.Munmap(mem)
}
