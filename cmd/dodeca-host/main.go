// Command dodeca-host is the host process of spec.md's cell fabric:
// it supervises the cell binaries, runs the boot state machine and
// boot gate over the TCP listener, and pumps every accepted browser
// connection into the HTTP cell over a tunnel. Flag parsing and
// signal-driven graceful shutdown are grounded on the teacher's
// examples/stest/server/main.go launcher.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dodeca-dev/dodeca/control"
	"github.com/dodeca-dev/dodeca/host"
	"github.com/dodeca-dev/dodeca/services"
	"github.com/dodeca-dev/dodeca/services/tcptunnel"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	contentRoot := flag.String("content-root", "./dist", "built static site directory served to browsers")
	httpCellPath := flag.String("http-cell", "./cell-http", "path to the cell-http binary")
	templateCellPath := flag.String("template-cell", "./cell-template", "path to the cell-template binary")
	htmlCellPath := flag.String("html-cell", "./cell-html", "path to the cell-html binary")
	flag.Parse()

	logger := log.New(os.Stderr, "[dodeca-host] ", log.LstdFlags|log.Lmicroseconds)

	probes := control.NewDebugProbes()
	resolver := host.NewContentResolver(*contentRoot, logger)
	sup := host.NewSupervisor(logger, host.DefaultSegmentParams(), resolver, probes)
	gate := host.NewBootGate(sup.BootState(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go bootSequence(ctx, sup, logger, host.CellSpec{Name: "template", Path: *templateCellPath, ServiceIDs: []uint16{services.TemplateServiceID}}, host.CellSpec{Name: "html", Path: *htmlCellPath, ServiceIDs: []uint16{services.HTMLServiceID}}, host.CellSpec{Name: "http", Path: *httpCellPath, ServiceIDs: []uint16{services.TcpTunnelServiceID}})

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Fatalf("listen %s: %v", *addr, err)
	}
	logger.Printf("listening on %s, serving %s", *addr, *contentRoot)

	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	go func() {
		for sig := range signalCh {
			if sig == syscall.SIGUSR1 {
				host.ForwardSIGUSR1(probes, logger)
				continue
			}
			logger.Println("shutdown signal received")
			cancel()
			listener.Close()
			return
		}
	}()

	acceptLoop(ctx, listener, gate, sup, logger, host.CellSpec{Name: "http", Path: *httpCellPath, ServiceIDs: []uint16{services.TcpTunnelServiceID}})

	sup.Shutdown()
	logger.Println("host shutdown complete")
}

// bootSequence ensures every declared cell is spawned and ready, then
// advances the boot state machine to Ready. Any spawn failure marks
// the boot state Fatal via Supervisor.spawn's own retry-exhaustion
// path, which BootGate observes and answers with HTTP 500.
func bootSequence(ctx context.Context, sup *host.Supervisor, logger *log.Logger, specs ...host.CellSpec) {
	sup.BootState().AdvancePhase(host.PhaseWaitingCellsReady)
	for _, spec := range specs {
		if _, err := sup.Ensure(ctx, spec); err != nil {
			logger.Printf("host: boot failed ensuring cell %s: %v", spec.Name, err)
			return
		}
	}
	if !sup.BootState().MarkReady(1) {
		logger.Printf("host: boot sequence could not mark ready")
	}
}

// acceptLoop runs the TCP accept loop, handing every connection to the
// boot gate; once boot is Ready it opens a tunnel to the HTTP cell and
// pumps bytes in both directions for the life of the connection.
func acceptLoop(ctx context.Context, listener net.Listener, gate *host.BootGate, sup *host.Supervisor, logger *log.Logger, httpCellSpec host.CellSpec) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Printf("accept error: %v", err)
			continue
		}
		go gate.Handle(ctx, conn, func(conn net.Conn, generation uint64) {
			serveBrowserConn(ctx, conn, sup, logger, httpCellSpec)
		})
	}
}

func serveBrowserConn(ctx context.Context, conn net.Conn, sup *host.Supervisor, logger *log.Logger, spec host.CellSpec) {
	defer conn.Close()

	session, err := sup.Ensure(ctx, spec)
	if err != nil {
		logger.Printf("host: ensure http cell: %v", err)
		return
	}

	client := tcptunnel.NewClient(session)
	openCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	tun, ack, err := client.Open(openCtx, conn.RemoteAddr().String())
	cancel()
	if err != nil || !ack.Accepted {
		logger.Printf("host: tcptunnel open failed for %s: %v", conn.RemoteAddr(), err)
		fmt.Fprint(conn, "HTTP/1.1 502 Bad Gateway\r\nConnection: close\r\n\r\n")
		return
	}

	done := make(chan struct{}, 2)
	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				if _, werr := tun.Tx.Write(buf[:n]); werr != nil {
					break
				}
			}
			if err != nil {
				break
			}
		}
		tun.Tx.CloseWrite()
		done <- struct{}{}
	}()
	go func() {
		for {
			chunk, err := tun.Rx.Read()
			if len(chunk) > 0 {
				if _, werr := conn.Write(chunk); werr != nil {
					break
				}
			}
			if err != nil {
				if err != io.EOF {
					logger.Printf("host: tunnel read for %s: %v", conn.RemoteAddr(), err)
				}
				break
			}
		}
		done <- struct{}{}
	}()
	<-done
}
