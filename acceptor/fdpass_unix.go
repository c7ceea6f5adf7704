//go:build linux || darwin

// File descriptor passing over SCM_RIGHTS, the mechanism spec.md §4.9
// relies on to hand a listening or accepted socket's file descriptor
// from one process to another without ever closing the accept. No
// third-party library in the pack wraps SCM_RIGHTS (the nabbar-golib
// Unix socket server doc describes the same mechanism only in prose);
// golang.org/x/sys/unix is the lowest-level real dependency that
// exposes it, matching the teacher's own direct `unix.Syscall` use in
// shm/doorbell_linux.go for futex.
package acceptor

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// sendFD sends one file descriptor plus a small metadata payload (the
// remote address string, for the acceptor->host handoff) over a Unix
// domain socket connection, as one sendmsg(2) call carrying an
// SCM_RIGHTS control message.
func sendFD(conn *net.UnixConn, fd int, meta []byte) error {
	rights := unix.UnixRights(fd)
	n, oobn, err := conn.WriteMsgUnix(meta, rights, nil)
	if err != nil {
		return fmt.Errorf("acceptor: sendmsg: %w", err)
	}
	if n != len(meta) || oobn != len(rights) {
		return fmt.Errorf("acceptor: sendmsg: short write (n=%d oobn=%d)", n, oobn)
	}
	return nil
}

// recvFD reads one message from conn and extracts the first file
// descriptor carried in an SCM_RIGHTS control message, along with
// whatever ordinary bytes accompanied it.
func recvFD(conn *net.UnixConn) (fd int, meta []byte, err error) {
	buf := make([]byte, 256)
	oob := make([]byte, unix.CmsgSpace(4))

	n, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return -1, nil, fmt.Errorf("acceptor: recvmsg: %w", err)
	}
	scms, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return -1, nil, fmt.Errorf("acceptor: parse control message: %w", err)
	}
	if len(scms) == 0 {
		return -1, nil, fmt.Errorf("acceptor: recvmsg: no control message")
	}
	fds, err := unix.ParseUnixRights(&scms[0])
	if err != nil {
		return -1, nil, fmt.Errorf("acceptor: parse unix rights: %w", err)
	}
	if len(fds) == 0 {
		return -1, nil, fmt.Errorf("acceptor: recvmsg: no fd in control message")
	}
	for _, extra := range fds[1:] {
		unix.Close(extra)
	}
	return fds[0], buf[:n], nil
}
