// Command cell-template is the template-engine cell: it attaches to
// the SHM segment its ticket names, registers TemplateService, and
// runs the ready handshake. Template language evaluation is an
// external collaborator's concern (spec Non-goal); this binary wires
// only the RPC shape and leaves the implementation to whatever engine
// is linked in at build time — here a minimal stand-in that renders
// the context as a flat key=value dump, grounded on the teacher's
// one-call-setup launcher style (examples/stest/server/main.go).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/dodeca-dev/dodeca/cell"
	"github.com/dodeca-dev/dodeca/services"
	"github.com/dodeca-dev/dodeca/services/template"
)

type stubTemplateServer struct {
	rendered int64
}

func (s *stubTemplateServer) Render(ctx context.Context, req template.RenderRequest) (template.RenderResult, error) {
	atomic.AddInt64(&s.rendered, 1)
	keys := make([]string, 0, len(req.Context))
	for k := range req.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	fmt.Fprintf(&b, "<!-- rendered by stub engine: %s -->\n", req.TemplatePath)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, req.Context[k])
	}
	return template.RenderResult{HTML: []byte(b.String())}, nil
}

func main() {
	logger := log.New(os.Stderr, "[cell-template] ", log.LstdFlags|log.Lmicroseconds)

	rt, err := cell.Attach(logger)
	if err != nil {
		logger.Fatalf("attach: %v", err)
	}

	srv := &stubTemplateServer{}
	rt.Register(services.TemplateServiceID, template.NewHandler(srv))

	stopProbe := cell.InstallSIGUSR1Handler(logger, func() any {
		return map[string]any{"rendered": atomic.LoadInt64(&srv.rendered)}
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

	if err := rt.Run(ctx, os.Getpid(), []uint16{services.TemplateServiceID}); err != nil {
		logger.Printf("runtime stopped: %v", err)
	}
}
