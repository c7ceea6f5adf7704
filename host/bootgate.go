package host

import (
	"context"
	"fmt"
	"log"
	"net"
)

// BootGate holds accepted TCP connections open until the boot state
// machine reaches Ready or Fatal, so a browser never observes
// "connection refused" or "connection reset" during a host restart —
// the contract spec.md §4.9 calls "the" invariant the rest of the
// system relies on.
type BootGate struct {
	boot   *BootStateManager
	logger *log.Logger
}

func NewBootGate(boot *BootStateManager, logger *log.Logger) *BootGate {
	if logger == nil {
		logger = log.Default()
	}
	return &BootGate{boot: boot, logger: logger}
}

// Handle blocks conn until the boot state is Ready or Fatal, then
// invokes onReady (normal HTTP session handling) or writes a 500 and
// closes, per spec.md §4.9. It is intended to run on its own goroutine
// per accepted connection.
func (g *BootGate) Handle(ctx context.Context, conn net.Conn, onReady func(net.Conn, uint64)) {
	state := g.boot.Current()
	for {
		if gen, ok := state.IsReady(); ok {
			onReady(conn, gen)
			return
		}
		if _, ok := state.IsFatal(); ok {
			writeFatal500(conn)
			conn.Close()
			return
		}
		state = g.boot.AwaitChange(state, ctx.Done())
		select {
		case <-ctx.Done():
			conn.Close()
			return
		default:
		}
	}
}

func writeFatal500(conn net.Conn) {
	const body = "Dodeca failed to start.\n"
	resp := fmt.Sprintf("HTTP/1.1 500 Internal Server Error\r\n"+
		"Content-Type: text/plain\r\n"+
		"Content-Length: %d\r\n"+
		"Connection: close\r\n\r\n%s", len(body), body)
	conn.Write([]byte(resp))
}
