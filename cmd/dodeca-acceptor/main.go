// Command dodeca-acceptor is the external FD-passing acceptor of
// spec.md §4.9: it owns the browser-facing listening socket so
// in-flight connections survive a dodeca-host restart, handed off
// once from this binary's own bootstrap listen call via the harness
// Unix socket.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dodeca-dev/dodeca/acceptor"
)

func main() {
	listenAddr := flag.String("listen", ":8080", "browser-facing TCP listen address")
	harnessSocket := flag.String("fd-socket", "/tmp/dodeca-harness.sock", "one-shot Unix socket used to hand off the listening socket")
	hostSocket := flag.String("acceptor-socket", "/tmp/dodeca-host.sock", "Unix socket dodeca-host connects to for forwarded connections")
	queueDepth := flag.Int("queue-depth", 64, "max accepted connections queued while no host is attached")
	flag.Parse()

	logger := log.New(os.Stderr, "[dodeca-acceptor] ", log.LstdFlags|log.Lmicroseconds)

	os.Remove(*harnessSocket)
	os.Remove(*hostSocket)

	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		logger.Fatalf("listen %s: %v", *listenAddr, err)
	}

	a := acceptor.New(acceptor.Config{
		HarnessSocketPath: *harnessSocket,
		HostSocketPath:    *hostSocket,
		QueueDepth:        *queueDepth,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalCh
		logger.Println("shutdown signal received")
		cancel()
	}()

	// Hand off this process's own listening socket to itself over the
	// harness socket, matching the same handoff a deployment harness
	// would perform across an acceptor restart.
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		logger.Fatalf("listener is not a *net.TCPListener")
	}
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for {
			err := acceptor.SendListener(*harnessSocket, tcpLn)
			if err == nil {
				tcpLn.Close()
				return
			}
			if time.Now().After(deadline) {
				logger.Printf("acceptor: self handoff failed: %v", err)
				return
			}
			time.Sleep(20 * time.Millisecond)
		}
	}()

	logger.Printf("listening on %s, forwarding accepted connections via %s", *listenAddr, *hostSocket)
	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatalf("acceptor run: %v", err)
	}
	os.Remove(*harnessSocket)
	os.Remove(*hostSocket)
	logger.Println("acceptor shutdown complete")
}
