// Package acceptor implements spec.md §4.9's external FD-passing
// acceptor: a small standalone process that owns the listening TCP
// socket so browser connections survive a host restart. It receives
// that listening socket's FD once from the harness (or a
// previous host) over a one-shot Unix socket, then forwards every
// newly accepted browser connection's FD to whichever host process is
// currently connected on a second, long-lived Unix socket, queuing FDs
// bounded when no host is attached. The accept-loop and atomic
// running/draining state shape is grounded on the nabbar-golib Unix
// socket server doc (other_examples), generalized from "serve one
// handler" to "forward one fd".
package acceptor

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config is the acceptor's boot ticket.
type Config struct {
	// HarnessSocketPath is the one-shot Unix socket the harness (or a
	// previous host) connects to exactly once, to hand off the
	// listening TCP socket's FD.
	HarnessSocketPath string
	// HostSocketPath is the well-known Unix socket the acceptor binds
	// and the host connects to, possibly reconnecting across restarts.
	HostSocketPath string
	// QueueDepth bounds how many accepted-but-not-yet-forwarded
	// connections the acceptor holds while no host is attached.
	QueueDepth int
}

type queuedConn struct {
	file       *os.File
	remoteAddr string
}

// Acceptor runs the harness handoff, the host-facing Unix socket, and
// the browser-facing TCP accept loop.
type Acceptor struct {
	cfg    Config
	logger *log.Logger

	queue chan queuedConn

	hostMu   sync.Mutex
	hostConn *net.UnixConn

	running int32
}

func New(cfg Config, logger *log.Logger) *Acceptor {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 64
	}
	return &Acceptor{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan queuedConn, cfg.QueueDepth),
	}
}

// Run receives the listening socket from the harness, then runs the
// host-socket acceptor and the browser TCP accept/forward loops until
// ctx is done.
func (a *Acceptor) Run(ctx context.Context) error {
	atomic.StoreInt32(&a.running, 1)
	defer atomic.StoreInt32(&a.running, 0)

	listener, err := a.receiveListener()
	if err != nil {
		return fmt.Errorf("acceptor: receive listening socket: %w", err)
	}
	defer listener.Close()

	hostListener, err := net.Listen("unix", a.cfg.HostSocketPath)
	if err != nil {
		return fmt.Errorf("acceptor: bind host socket %s: %w", a.cfg.HostSocketPath, err)
	}
	defer hostListener.Close()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); a.acceptHostConns(ctx, hostListener) }()
	go func() { defer wg.Done(); a.acceptBrowserConns(ctx, listener) }()
	go func() { defer wg.Done(); a.forwardLoop(ctx) }()

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// receiveListener accepts exactly one connection on the harness socket,
// extracts the handed-off listening socket FD, and wraps it as a
// net.Listener.
func (a *Acceptor) receiveListener() (net.Listener, error) {
	ln, err := net.Listen("unix", a.cfg.HarnessSocketPath)
	if err != nil {
		return nil, err
	}
	defer ln.Close()

	conn, err := ln.Accept()
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("acceptor: harness socket yielded non-unix conn")
	}

	fd, _, err := recvFD(uc)
	if err != nil {
		return nil, err
	}
	file := os.NewFile(uintptr(fd), "dodeca-listener")
	listener, err := net.FileListener(file)
	file.Close()
	if err != nil {
		return nil, fmt.Errorf("acceptor: FileListener: %w", err)
	}
	return listener, nil
}

// acceptHostConns accepts connections on the host-facing Unix socket,
// replacing the current host connection on every new connect so a
// restarted host simply reconnects and resumes receiving FDs.
func (a *Acceptor) acceptHostConns(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Printf("acceptor: host socket accept error: %v", err)
			continue
		}
		uc, ok := conn.(*net.UnixConn)
		if !ok {
			conn.Close()
			continue
		}
		a.hostMu.Lock()
		if a.hostConn != nil {
			a.hostConn.Close()
		}
		a.hostConn = uc
		a.hostMu.Unlock()
		a.logger.Printf("acceptor: host connected")
	}
}

// acceptBrowserConns runs the TCP accept loop, converting each accepted
// connection to a dup'd FD and queuing it for forwarding. A full queue
// naturally back-pressures the accept loop — held sockets in the OS
// backlog, never a reset — matching the never-see-a-reset contract.
func (a *Acceptor) acceptBrowserConns(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Printf("acceptor: browser accept error: %v", err)
			continue
		}
		tcpConn, ok := conn.(*net.TCPConn)
		if !ok {
			conn.Close()
			continue
		}
		remote := conn.RemoteAddr().String()
		file, err := tcpConn.File()
		tcpConn.Close()
		if err != nil {
			a.logger.Printf("acceptor: dup fd for %s: %v", remote, err)
			continue
		}
		select {
		case a.queue <- queuedConn{file: file, remoteAddr: remote}:
		case <-ctx.Done():
			file.Close()
			return
		}
	}
}

const forwardAckTimeout = 2 * time.Second

// forwardLoop drains the queue, forwarding each FD to whichever host
// connection is currently attached and waiting for its 1-byte ack. If
// no host is attached, or the send/ack fails, the connection is
// requeued (dropped if the queue is full and ctx is live) rather than
// closed, since a transient host gap must not reset the browser.
func (a *Acceptor) forwardLoop(ctx context.Context) {
	for {
		var qc queuedConn
		select {
		case qc = <-a.queue:
		case <-ctx.Done():
			return
		}

		if !a.forwardOne(qc) {
			select {
			case a.queue <- qc:
			default:
				a.logger.Printf("acceptor: dropping connection from %s, queue full after forward failure", qc.remoteAddr)
				qc.file.Close()
			}
			time.Sleep(50 * time.Millisecond)
		}
	}
}

func (a *Acceptor) forwardOne(qc queuedConn) bool {
	a.hostMu.Lock()
	hostConn := a.hostConn
	a.hostMu.Unlock()
	if hostConn == nil {
		return false
	}

	if err := sendFD(hostConn, int(qc.file.Fd()), []byte(qc.remoteAddr)); err != nil {
		a.logger.Printf("acceptor: forward fd for %s failed: %v", qc.remoteAddr, err)
		a.hostMu.Lock()
		if a.hostConn == hostConn {
			a.hostConn = nil
		}
		a.hostMu.Unlock()
		return false
	}

	ack := make([]byte, 1)
	hostConn.SetReadDeadline(time.Now().Add(forwardAckTimeout))
	_, err := hostConn.Read(ack)
	hostConn.SetReadDeadline(time.Time{})
	if err != nil {
		a.logger.Printf("acceptor: ack read for %s failed: %v", qc.remoteAddr, err)
		return false
	}
	qc.file.Close()
	return true
}
