//go:build windows

package acceptor

import (
	"errors"
	"net"
)

var errNoFDPassing = errors.New("acceptor: SCM_RIGHTS fd passing is not supported on windows")

func sendFD(conn *net.UnixConn, fd int, meta []byte) error {
	return errNoFDPassing
}

func recvFD(conn *net.UnixConn) (fd int, meta []byte, err error) {
	return -1, nil, errNoFDPassing
}
