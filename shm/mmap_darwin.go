//go:build darwin
// +build darwin

package shm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// createAnonymous has no memfd_create equivalent on Darwin, so it
// backs the segment with a file in the platform's shared-memory-like
// temp directory and immediately unlinks the directory entry while
// keeping the fd open, giving the same "anonymous once attached"
// property memfd provides on Linux.
func createAnonymous(name string, size int64) (fd int, path string, err error) {
	f, err := os.CreateTemp("", "dodeca-shm-"+name+"-*")
	if err != nil {
		return -1, "", fmt.Errorf("shm: create temp: %w", err)
	}
	path = f.Name()
	if err = f.Truncate(size); err != nil {
		f.Close()
		os.Remove(path)
		return -1, "", fmt.Errorf("shm: truncate: %w", err)
	}
	return int(f.Fd()), path, nil
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
