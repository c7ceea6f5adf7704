package httpcell

import (
	"context"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/dodeca-dev/dodeca/rpc"
	"github.com/dodeca-dev/dodeca/services/devtools"
	hostsvc "github.com/dodeca-dev/dodeca/services/host"
	"github.com/dodeca-dev/dodeca/services/tcptunnel"
)

// devtoolsPath is the single fixed endpoint the HTTP cell recognizes
// without consulting the host: every other path resolves through
// ContentFetch. The devtools protocol itself is served host-side, per
// services/devtools.
const devtoolsPath = "/__dodeca/devtools"

// Cell is the HTTP front-end cell's tcptunnel.Server implementation:
// one Open call per accepted browser connection, each served by a
// fresh net/http.Server instance driving a single tunnel-backed
// net.Conn.
type Cell struct {
	session  *rpc.Session
	host     *hostsvc.Client
	devtools *devtools.Client
	logger   *log.Logger
	mux      *http.ServeMux
}

// New builds the HTTP cell's server-side state. session is the cell's
// own attached session (cell.Runtime.Session()), used both to accept
// the per-connection tunnel and to call back into the host.
func New(session *rpc.Session, logger *log.Logger) *Cell {
	if logger == nil {
		logger = log.Default()
	}
	c := &Cell{
		session:  session,
		host:     hostsvc.NewClient(session),
		devtools: devtools.NewClient(session),
		logger:   logger,
	}
	mux := http.NewServeMux()
	mux.Handle("/", &contentHandler{host: c.host, logger: logger})
	mux.HandleFunc(devtoolsPath, c.serveDevtools)
	c.mux = mux
	return c
}

var _ tcptunnel.Server = (*Cell)(nil)

// Open accepts the tunnel the host already opened for one browser
// connection and serves it as an HTTP connection on its own
// goroutine, returning immediately so the RPC call never blocks on the
// connection's lifetime.
func (c *Cell) Open(ctx context.Context, req tcptunnel.TunnelHandle, handle *rpc.Tunnel) (tcptunnel.OpenAck, error) {
	go c.serveConn(handle, req.RemoteAddr)
	return tcptunnel.OpenAck{Accepted: true}, nil
}

func (c *Cell) serveConn(tun *rpc.Tunnel, remoteAddr string) {
	conn := newTunnelConn(tun)
	listener := newSingleConnListener(conn)
	srv := &http.Server{
		Handler:           c.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		c.logger.Printf("httpcell: serve %s: %v", remoteAddr, err)
	}
}

// serveDevtools hijacks the underlying tunnel-backed connection,
// opens a second tunnel to the host's devtools protocol handler, and
// pumps bytes between them for the life of the WebSocket connection.
// The HTTP cell itself never parses the devtools protocol — it is
// purely a relay, same posture as ContentFetch's body streaming.
func (c *Cell) serveDevtools(w http.ResponseWriter, r *http.Request) {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijack unsupported", http.StatusInternalServerError)
		return
	}
	browserConn, buf, err := hijacker.Hijack()
	if err != nil {
		c.logger.Printf("httpcell: devtools hijack: %v", err)
		return
	}
	defer browserConn.Close()

	tun, ack, err := c.devtools.Attach(r.Context())
	if err != nil || !ack.Accepted {
		c.logger.Printf("httpcell: devtools attach: %v", err)
		return
	}
	hostConn := newTunnelConn(tun)
	defer hostConn.Close()

	done := make(chan struct{}, 2)
	go func() { io.Copy(hostConn, buf); done <- struct{}{} }()
	go func() { io.Copy(browserConn, hostConn); done <- struct{}{} }()
	<-done
}
