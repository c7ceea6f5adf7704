// Command cell-http is the HTTP front-end cell of spec.md §4.11: it
// registers TcpTunnelService, accepting one tunnel per browser
// connection from the host and serving it with net/http, resolving
// every request through the host's ContentService.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dodeca-dev/dodeca/cell"
	httpcell "github.com/dodeca-dev/dodeca/cells/http"
	"github.com/dodeca-dev/dodeca/services"
	"github.com/dodeca-dev/dodeca/services/tcptunnel"
)

func main() {
	logger := log.New(os.Stderr, "[cell-http] ", log.LstdFlags|log.Lmicroseconds)

	rt, err := cell.Attach(logger)
	if err != nil {
		logger.Fatalf("attach: %v", err)
	}

	httpCell := httpcell.New(rt.Session(), logger)
	rt.Register(services.TcpTunnelServiceID, tcptunnel.NewHandler(httpCell, rt.Session()))

	stopProbe := cell.InstallSIGUSR1Handler(logger, func() any {
		return map[string]any{"cell": "http"}
	})
	defer stopProbe()

	ctx, cancel := context.WithCancel(context.Background())
	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalCh
		logger.Println("shutdown signal received")
		cancel()
	}()

	if err := rt.Run(ctx, os.Getpid(), []uint16{services.TcpTunnelServiceID}); err != nil {
		logger.Printf("runtime stopped: %v", err)
	}
}
