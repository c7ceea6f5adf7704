//go:build linux
// +build linux

// Doorbell backed by the Linux futex syscall. golang.org/x/sys/unix has
// no portable futex wrapper, so we invoke the syscall directly — the
// same direct-unix.Syscall idiom used elsewhere in this codebase's
// lineage for syscalls without a package-level helper (userfaultfd).
package shm

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	futexWait = 0
	futexWake = 1
)

// futexDoorbell implements Doorbell using FUTEX_WAIT/FUTEX_WAKE on the
// doorbell word embedded in the shared segment.
type futexDoorbell struct{}

// NewDoorbell returns the platform doorbell implementation.
func NewDoorbell() Doorbell { return futexDoorbell{} }

func (futexDoorbell) Wake(mem []byte, off int64) {
	addU32(mem, off, 1)
	addr := unsafe.Pointer(&mem[off])
	// Wake up to MaxInt32 waiters; there is normally exactly one.
	unix.Syscall(unix.SYS_FUTEX, uintptr(addr), futexWake, ^uintptr(0)>>1)
}

func (futexDoorbell) Wait(mem []byte, off int64, timeoutMs int) {
	addr := unsafe.Pointer(&mem[off])
	val := loadU32(mem, off)
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * int64(1_000_000))
		ts = &t
	}
	// FUTEX_WAIT blocks only if the word still equals val, so a Wake
	// that raced ahead of us is not missed.
	unix.Syscall6(unix.SYS_FUTEX, uintptr(addr), futexWait, uintptr(val), uintptr(unsafe.Pointer(ts)), 0, 0)
}
