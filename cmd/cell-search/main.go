// Command cell-search is the search-indexing cell: it registers
// SearchService, accepts the document corpus over the tunnel the
// caller opened, drains it to EOF, and answers with an index. Index
// format and ranking internals are an external collaborator's concern
// (spec Non-goal); this binary wires only the RPC and tunnel shape,
// grounded on the teacher's one-call-setup launcher style
// (examples/stest/server/main.go).
package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/dodeca-dev/dodeca/cell"
	"github.com/dodeca-dev/dodeca/rpc"
	"github.com/dodeca-dev/dodeca/services"
	"github.com/dodeca-dev/dodeca/services/search"
)

type stubSearchServer struct {
	indexed      int64
	bytesDrained int64
}

func (s *stubSearchServer) Index(ctx context.Context, req search.IndexRequest, corpus *rpc.Rx) (search.IndexResult, error) {
	atomic.AddInt64(&s.indexed, 1)
	for {
		chunk, err := corpus.Read()
		atomic.AddInt64(&s.bytesDrained, int64(len(chunk)))
		if err == io.EOF {
			break
		}
		if err != nil {
			return search.IndexResult{}, err
		}
	}
	return search.IndexResult{IndexBytes: nil}, nil
}

func main() {
	logger := log.New(os.Stderr, "[cell-search] ", log.LstdFlags|log.Lmicroseconds)

	rt, err := cell.Attach(logger)
	if err != nil {
		logger.Fatalf("attach: %v", err)
	}

	srv := &stubSearchServer{}
	rt.Register(services.SearchServiceID, search.NewHandler(srv, rt.Session()))

	stopProbe := cell.InstallSIGUSR1Handler(logger, func() any {
		return map[string]any{
			"indexed":      atomic.LoadInt64(&srv.indexed),
			"bytesDrained": atomic.LoadInt64(&srv.bytesDrained),
		}
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

	if err := rt.Run(ctx, os.Getpid(), []uint16{services.SearchServiceID}); err != nil {
		logger.Printf("runtime stopped: %v", err)
	}
}
