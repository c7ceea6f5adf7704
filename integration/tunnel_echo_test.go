package integration

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/dodeca-dev/dodeca/rpc"
	"github.com/dodeca-dev/dodeca/services"
	"github.com/dodeca-dev/dodeca/services/tcptunnel"
	"github.com/dodeca-dev/dodeca/shm"
)

// acceptingCell accepts exactly one TcpTunnel.Open and hands the
// accepted *rpc.Tunnel back on a channel, so the test can drive both
// ends of the tunnel directly.
type acceptingCell struct {
	accepted chan *rpc.Tunnel
}

func (c *acceptingCell) Open(ctx context.Context, req tcptunnel.TunnelHandle, handle *rpc.Tunnel) (tcptunnel.OpenAck, error) {
	c.accepted <- handle
	return tcptunnel.OpenAck{Accepted: true}, nil
}

// TestTunnelChunkEchoEndToEnd reproduces spec.md §8 scenario 3: a
// tunnel opened over a real host/cell session pair, fed two chunks and
// a half-close, must deliver the concatenated bytes and terminate with
// EOS on the peer side exactly once.
func TestTunnelChunkEchoEndToEnd(t *testing.T) {
	hostTransport, cellTransport := shm.LoopbackPair(16)

	hostDispatcher := rpc.NewDispatcher()
	hostSession := rpc.NewSession(hostTransport, 1, hostDispatcher, log.Default())

	cell := &acceptingCell{accepted: make(chan *rpc.Tunnel, 1)}
	cellDispatcher := rpc.NewDispatcher()
	cellSession := rpc.NewSession(cellTransport, 2, cellDispatcher, log.Default())
	cellDispatcher.Register(services.TcpTunnelServiceID, tcptunnel.NewHandler(cell, cellSession))

	hostSession.ReleaseGate()
	cellSession.ReleaseGate()
	go hostSession.Run(context.Background())
	go cellSession.Run(context.Background())

	client := tcptunnel.NewClient(hostSession)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	tun, ack, err := client.Open(ctx, "203.0.113.7:9")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !ack.Accepted {
		t.Fatal("expected tunnel to be accepted")
	}

	var peer *rpc.Tunnel
	select {
	case peer = <-cell.accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("cell never accepted the tunnel")
	}

	if _, err := tun.Tx.Write([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("write chunk 1: %v", err)
	}
	if _, err := tun.Tx.Write([]byte{0x03}); err != nil {
		t.Fatalf("write chunk 2: %v", err)
	}
	if err := tun.Tx.CloseWrite(); err != nil {
		t.Fatalf("half-close: %v", err)
	}

	var got []byte
	for {
		chunk, err := peer.Rx.Read()
		got = append(got, chunk...)
		if err != nil {
			if err != io.EOF {
				t.Fatalf("unexpected read error: %v", err)
			}
			break
		}
	}

	want := []byte{0x01, 0x02, 0x03}
	if string(got) != string(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
