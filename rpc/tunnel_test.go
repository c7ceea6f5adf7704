package rpc_test

import (
	"context"
	"io"
	"testing"

	"github.com/dodeca-dev/dodeca/rpc"
	"github.com/dodeca-dev/dodeca/shm"
)

func TestTunnelFIFOAndEOS(t *testing.T) {
	a, b := shm.LoopbackPair(32)
	defer a.Close()
	defer b.Close()
	host := rpc.NewSession(a, 1, rpc.NewDispatcher(), nil)
	cell := rpc.NewSession(b, 2, rpc.NewDispatcher(), nil)
	host.ReleaseGate()
	cell.ReleaseGate()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go host.Run(ctx)
	go cell.Run(ctx)

	tun := host.OpenTunnel(16)
	peer := cell.AcceptTunnel(tun.Tx.ChannelID(), 16)

	if _, err := tun.Tx.Write([]byte{0x01, 0x02}); err != nil {
		t.Fatal(err)
	}
	if _, err := tun.Tx.Write([]byte{0x03}); err != nil {
		t.Fatal(err)
	}
	if err := tun.Tx.CloseWrite(); err != nil {
		t.Fatal(err)
	}

	var got []byte
	for {
		chunk, err := peer.Rx.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, chunk...)
	}

	want := []byte{0x01, 0x02, 0x03}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	// A second read after EOF must keep returning EOF, not block or panic.
	if _, err := peer.Rx.Read(); err != io.EOF {
		t.Fatalf("expected io.EOF after stream end, got %v", err)
	}
}
