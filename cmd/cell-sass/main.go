// Command cell-sass is the stylesheet-compilation cell: it registers
// SASSService and answers Compile calls. Compiler internals are an
// external collaborator's concern (spec Non-goal); this binary wires
// only the RPC shape, grounded on the teacher's one-call-setup
// launcher style (examples/stest/server/main.go).
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
	"github.com/dodeca-dev/dodeca/services/sass"
)

type stubSASSServer struct {
	compiled int64
}

func (s *stubSASSServer) Compile(ctx context.Context, req sass.CompileRequest) (sass.CompileResult, error) {
	atomic.AddInt64(&s.compiled, 1)
	return sass.CompileResult{CSS: nil, SrcMap: nil}, nil
}

func main() {
	logger := log.New(os.Stderr, "[cell-sass] ", log.LstdFlags|log.Lmicroseconds)

	rt, err := cell.Attach(logger)
	if err != nil {
		logger.Fatalf("attach: %v", err)
	}

	srv := &stubSASSServer{}
	rt.Register(services.SASSServiceID, sass.NewHandler(srv))

	stopProbe := cell.InstallSIGUSR1Handler(logger, func() any {
		return map[string]any{"compiled": atomic.LoadInt64(&srv.compiled)}
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

	if err := rt.Run(ctx, os.Getpid(), []uint16{services.SASSServiceID}); err != nil {
		logger.Printf("runtime stopped: %v", err)
	}
}
