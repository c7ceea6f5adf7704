// Command cell-html is the DOM cell: it registers HTMLService and
// runs the ready handshake. Parsing and diffing HTML documents is an
// external collaborator's concern (spec Non-goal); this binary wires
// only the RPC shape with an in-memory stand-in implementation.
package main

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dodeca-dev/dodeca/apierr"
	"github.com/dodeca-dev/dodeca/cell"
	"github.com/dodeca-dev/dodeca/services"
	"github.com/dodeca-dev/dodeca/services/htmlsvc"
)

// stubHTMLServer keeps the last document parsed under each doc-id it
// mints (the content hash) so Diff has something to diff against; a
// real DOM cell would hold a parsed tree, not raw bytes.
type stubHTMLServer struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func newStubHTMLServer() *stubHTMLServer {
	return &stubHTMLServer{docs: make(map[string][]byte)}
}

func (s *stubHTMLServer) Parse(ctx context.Context, req htmlsvc.ParseRequest) (htmlsvc.ParseResult, error) {
	sum := sha1.Sum(req.HTML)
	docID := hex.EncodeToString(sum[:])
	s.mu.Lock()
	s.docs[docID] = req.HTML
	s.mu.Unlock()
	return htmlsvc.ParseResult{DocID: docID}, nil
}

func (s *stubHTMLServer) Diff(ctx context.Context, req htmlsvc.DiffRequest) (htmlsvc.DiffResult, error) {
	s.mu.Lock()
	oldDoc, oldOK := s.docs[req.OldDocID]
	newDoc, newOK := s.docs[req.NewDocID]
	s.mu.Unlock()
	if !oldOK || !newOK {
		return htmlsvc.DiffResult{}, apierr.ErrUnknownMethod
	}
	return htmlsvc.DiffResult{Patch: byteDiffPlaceholder(oldDoc, newDoc)}, nil
}

// byteDiffPlaceholder stands in for a real DOM patch algorithm: it
// returns the new document whole whenever the two differ, since this
// cell does not implement tree diffing itself.
func byteDiffPlaceholder(oldDoc, newDoc []byte) []byte {
	if string(oldDoc) == string(newDoc) {
		return nil
	}
	return newDoc
}

func main() {
	logger := log.New(os.Stderr, "[cell-html] ", log.LstdFlags|log.Lmicroseconds)

	rt, err := cell.Attach(logger)
	if err != nil {
		logger.Fatalf("attach: %v", err)
	}

	srv := newStubHTMLServer()
	rt.Register(services.HTMLServiceID, htmlsvc.NewHandler(srv))

	stopProbe := cell.InstallSIGUSR1Handler(logger, func() any {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return map[string]any{"docs": len(srv.docs)}
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

	if err := rt.Run(ctx, os.Getpid(), []uint16{services.HTMLServiceID}); err != nil {
		logger.Printf("runtime stopped: %v", err)
	}
}
