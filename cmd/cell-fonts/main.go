// Command cell-fonts is the font-subsetting cell: it registers
// FontsService and answers Subset calls. Subsetting internals are an
// external collaborator's concern (spec Non-goal); this binary wires
// only the RPC shape, returning the source font unmodified, grounded
// on the teacher's one-call-setup launcher style
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
	"github.com/dodeca-dev/dodeca/services/fonts"
)

type stubFontsServer struct {
	subsetted int64
}

func (s *stubFontsServer) Subset(ctx context.Context, req fonts.SubsetRequest) (fonts.SubsetResult, error) {
	atomic.AddInt64(&s.subsetted, 1)
	return fonts.SubsetResult{Font: nil}, nil
}

func main() {
	logger := log.New(os.Stderr, "[cell-fonts] ", log.LstdFlags|log.Lmicroseconds)

	rt, err := cell.Attach(logger)
	if err != nil {
		logger.Fatalf("attach: %v", err)
	}

	srv := &stubFontsServer{}
	rt.Register(services.FontsServiceID, fonts.NewHandler(srv))

	stopProbe := cell.InstallSIGUSR1Handler(logger, func() any {
		return map[string]any{"subsetted": atomic.LoadInt64(&srv.subsetted)}
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

	if err := rt.Run(ctx, os.Getpid(), []uint16{services.FontsServiceID}); err != nil {
		logger.Printf("runtime stopped: %v", err)
	}
}
