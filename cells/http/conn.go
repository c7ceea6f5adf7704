// Package httpcell implements the HTTP front-end shim of spec.md
// §4.11: the "dumb" cell that turns one tunnel into one HTTP
// connection, serving requests by calling back into the host's
// ContentService over the same bidirectional session, plus a devtools
// WebSocket endpoint that opens a second tunnel for the devtools
// protocol. Framing here is genuinely net/http's own — the cell
// contains no build knowledge, matching the Non-goal boundary.
package httpcell

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/dodeca-dev/dodeca/rpc"
)

// tunnelConn adapts one rpc.Tunnel (a Tx/Rx pair over a channel-id) to
// net.Conn, so the standard library's net/http server can drive it
// exactly as it would a real TCP connection. Grounded on the teacher's
// protocol.WebSocketConn (protocol/wsconn.go), which performs the same
// kind of adaptation — a framed transport wrapped to look like a plain
// byte stream — generalized from WS frames to tunnel chunks.
type tunnelConn struct {
	tx *rpc.Tx
	rx *rpc.Rx

	pending []byte
}

func newTunnelConn(tun *rpc.Tunnel) *tunnelConn {
	return &tunnelConn{tx: tun.Tx, rx: tun.Rx}
}

func (c *tunnelConn) Read(p []byte) (int, error) {
	if len(c.pending) == 0 {
		chunk, err := c.rx.Read()
		if err != nil {
			return 0, err
		}
		c.pending = chunk
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *tunnelConn) Write(p []byte) (int, error) { return c.tx.Write(p) }

func (c *tunnelConn) Close() error {
	err := c.tx.CloseWrite()
	if closeErr := c.tx.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (c *tunnelConn) LocalAddr() net.Addr  { return tunnelAddr{} }
func (c *tunnelConn) RemoteAddr() net.Addr { return tunnelAddr{} }

// Deadlines are not meaningful over a tunnel whose back-pressure comes
// from the SHM ring's free list rather than socket buffers; net/http
// calls these but tolerates a no-op implementation.
func (c *tunnelConn) SetDeadline(time.Time) error      { return nil }
func (c *tunnelConn) SetReadDeadline(time.Time) error  { return nil }
func (c *tunnelConn) SetWriteDeadline(time.Time) error { return nil }

type tunnelAddr struct{}

func (tunnelAddr) Network() string { return "dodeca-tunnel" }
func (tunnelAddr) String() string  { return "tunnel" }

// singleConnListener is a net.Listener that yields exactly one
// pre-existing net.Conn to its first Accept call, then blocks until
// closed. It exists so net/http's Serve(listener) can drive a single
// tunnel-backed connection using the standard library's own HTTP
// state machine rather than a hand-rolled one.
type singleConnListener struct {
	conn   net.Conn
	taken  bool
	closed chan struct{}
}

func newSingleConnListener(conn net.Conn) *singleConnListener {
	return &singleConnListener{conn: conn, closed: make(chan struct{})}
}

func (l *singleConnListener) Accept() (net.Conn, error) {
	if !l.taken {
		l.taken = true
		return l.conn, nil
	}
	<-l.closed
	return nil, errListenerClosed
}

var errListenerClosed = errors.New("httpcell: listener closed")

func (l *singleConnListener) Close() error {
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
	return nil
}

func (l *singleConnListener) Addr() net.Addr { return tunnelAddr{} }

var _ io.Closer = (*singleConnListener)(nil)
