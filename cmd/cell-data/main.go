// Command cell-data is the structured-data cell: it registers
// DataService and answers Query calls. Query evaluation against an
// actual front-matter/collection index is an external collaborator's
// concern (spec Non-goal); this binary wires only the RPC shape,
// grounded on the teacher's one-call-setup launcher style
// (examples/stest/server/main.go).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/dodeca-dev/dodeca/cell"
	"github.com/dodeca-dev/dodeca/services"
	"github.com/dodeca-dev/dodeca/services/data"
)

type stubDataServer struct {
	queries int64
}

func (s *stubDataServer) Query(ctx context.Context, req data.QueryRequest) (data.QueryResult, error) {
	atomic.AddInt64(&s.queries, 1)
	return data.QueryResult{Rows: nil}, nil
}

func main() {
	logger := log.New(os.Stderr, "[cell-data] ", log.LstdFlags|log.Lmicroseconds)

	rt, err := cell.Attach(logger)
	if err != nil {
		logger.Fatalf("attach: %v", err)
	}

	srv := &stubDataServer{}
	rt.Register(services.DataServiceID, data.NewHandler(srv))

	stopProbe := cell.InstallSIGUSR1Handler(logger, func() any {
		return map[string]any{"queries": atomic.LoadInt64(&srv.queries)}
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

	if err := rt.Run(ctx, os.Getpid(), []uint16{services.DataServiceID}); err != nil {
		logger.Printf("runtime stopped: %v", err)
	}
}
