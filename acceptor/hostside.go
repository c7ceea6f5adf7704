package acceptor

import (
	"fmt"
	"net"
	"os"
)

// DialHost connects to the acceptor's host-facing Unix socket. The
// host calls this once at startup and again on every reconnect after
// a restart; the acceptor treats the newest connection as current.
func DialHost(hostSocketPath string) (*net.UnixConn, error) {
	conn, err := net.Dial("unix", hostSocketPath)
	if err != nil {
		return nil, err
	}
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("acceptor: dial %s did not yield a unix conn", hostSocketPath)
	}
	return uc, nil
}

// ReceiveForwardedConn reads one forwarded browser connection off conn
// (as sent by Acceptor.forwardOne), acks it, and returns it as a usable
// net.Conn plus the remote address the acceptor observed.
func ReceiveForwardedConn(conn *net.UnixConn) (net.Conn, string, error) {
	fd, meta, err := recvFD(conn)
	if err != nil {
		return nil, "", err
	}
	file := os.NewFile(uintptr(fd), "dodeca-accepted")
	netConn, err := net.FileConn(file)
	file.Close()
	if err != nil {
		return nil, "", fmt.Errorf("acceptor: FileConn: %w", err)
	}
	if _, err := conn.Write([]byte{1}); err != nil {
		netConn.Close()
		return nil, "", fmt.Errorf("acceptor: ack write: %w", err)
	}
	return netConn, string(meta), nil
}
