package httpcell

import (
	"bufio"
	"context"
	"io"
	"log"
	"net/http"
	"testing"
	"time"

	"github.com/dodeca-dev/dodeca/rpc"
	"github.com/dodeca-dev/dodeca/services"
	hostsvc "github.com/dodeca-dev/dodeca/services/host"
	"github.com/dodeca-dev/dodeca/services/tcptunnel"
	"github.com/dodeca-dev/dodeca/shm"
)

type fakeHost struct{}

func (fakeHost) ContentFetch(ctx context.Context, req hostsvc.ContentRequest) (hostsvc.ContentResponse, []byte, error) {
	if req.Path == "/missing" {
		return hostsvc.ContentResponse{NotFound: true}, nil, nil
	}
	body := []byte("<html>hello " + req.Path + "</html>")
	return hostsvc.ContentResponse{ContentType: "text/html", Length: int64(len(body))}, body, nil
}

func (fakeHost) ResolveData(ctx context.Context, q hostsvc.DataQuery) (hostsvc.DataResult, error) {
	return hostsvc.DataResult{}, nil
}

func (fakeHost) Log(hostsvc.LogLine) {}

func buildPair(t *testing.T) (hostSession, cellSession *rpc.Session) {
	t.Helper()
	hostTransport, cellTransport := shm.LoopbackPair(16)

	hostDispatcher := rpc.NewDispatcher()
	hostSession = rpc.NewSession(hostTransport, 1, hostDispatcher, log.Default())
	hostDispatcher.Register(services.HostServiceID, hostsvc.NewHandler(fakeHost{}, hostSession))

	cellDispatcher := rpc.NewDispatcher()
	cellSession = rpc.NewSession(cellTransport, 2, cellDispatcher, log.Default())
	httpCell := New(cellSession, log.Default())
	cellDispatcher.Register(services.TcpTunnelServiceID, tcptunnel.NewHandler(httpCell, cellSession))

	hostSession.ReleaseGate()
	cellSession.ReleaseGate()

	go hostSession.Run(context.Background())
	go cellSession.Run(context.Background())

	return hostSession, cellSession
}

func TestHTTPCellServesContent(t *testing.T) {
	hostSession, _ := buildPair(t)

	client := tcptunnel.NewClient(hostSession)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	tun, ack, err := client.Open(ctx, "203.0.113.1:1234")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !ack.Accepted {
		t.Fatal("expected tunnel to be accepted")
	}

	req, err := http.NewRequest(http.MethodGet, "/page", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := req.Write(tun.Tx); err != nil {
		t.Fatalf("write request: %v", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(newTunnelConn(tun)), req)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Cache-Control"); got != "public, max-age=0, must-revalidate" {
		t.Fatalf("unexpected cache-control: %q", got)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "<html>hello /page</html>" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestHTTPCellNotFound(t *testing.T) {
	hostSession, _ := buildPair(t)

	client := tcptunnel.NewClient(hostSession)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	tun, _, err := client.Open(ctx, "203.0.113.1:1234")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, "/missing", nil)
	req.Write(tun.Tx)

	resp, err := http.ReadResponse(bufio.NewReader(newTunnelConn(tun)), req)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
