//go:build linux || darwin
// +build linux darwin

package shm

import (
	"fmt"
	"os"
)

// openByPath opens an existing segment file by path for a cell
// attaching via its ticket. On Linux the path is typically
// /proc/<host-pid>/fd/<n> when the fd was inherited across fork/exec;
// on Darwin it is the temp-file path createAnonymous produced.
func openByPath(path string) (fd int, err error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return -1, fmt.Errorf("shm: open %s: %w", path, err)
	}
	return int(f.Fd()), nil
}
