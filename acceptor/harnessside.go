package acceptor

import (
	"fmt"
	"net"
)

// SendListener connects to the acceptor's one-shot harness socket and
// hands off ln's underlying file descriptor. Call this from whatever
// process first owns the listening socket (the deployment harness, or
// a host process shedding the socket across its own restart).
func SendListener(harnessSocketPath string, ln *net.TCPListener) error {
	conn, err := net.Dial("unix", harnessSocketPath)
	if err != nil {
		return fmt.Errorf("acceptor: dial harness socket %s: %w", harnessSocketPath, err)
	}
	defer conn.Close()
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return fmt.Errorf("acceptor: dial %s did not yield a unix conn", harnessSocketPath)
	}

	file, err := ln.File()
	if err != nil {
		return fmt.Errorf("acceptor: dup listener fd: %w", err)
	}
	defer file.Close()

	return sendFD(uc, int(file.Fd()), nil)
}
