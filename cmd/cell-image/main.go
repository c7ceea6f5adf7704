// Command cell-image is the image-transcoding cell: it registers
// ImageService and answers Transcode calls, streaming the output bytes
// back over the tunnel the caller named. Resampling/codec internals
// are an external collaborator's concern (spec Non-goal); this binary
// wires only the RPC shape, echoing back an empty body, grounded on
// the teacher's one-call-setup launcher style
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
	"github.com/dodeca-dev/dodeca/services/image"
)

type stubImageServer struct {
	transcoded int64
}

func (s *stubImageServer) Transcode(ctx context.Context, req image.TranscodeRequest) (image.TranscodeResult, []byte, error) {
	atomic.AddInt64(&s.transcoded, 1)
	return image.TranscodeResult{ContentType: "application/octet-stream", Length: 0}, nil, nil
}

func main() {
	logger := log.New(os.Stderr, "[cell-image] ", log.LstdFlags|log.Lmicroseconds)

	rt, err := cell.Attach(logger)
	if err != nil {
		logger.Fatalf("attach: %v", err)
	}

	srv := &stubImageServer{}
	rt.Register(services.ImageServiceID, image.NewHandler(srv, rt.Session()))

	stopProbe := cell.InstallSIGUSR1Handler(logger, func() any {
		return map[string]any{"transcoded": atomic.LoadInt64(&srv.transcoded)}
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

	if err := rt.Run(ctx, os.Getpid(), []uint16{services.ImageServiceID}); err != nil {
		logger.Printf("runtime stopped: %v", err)
	}
}
