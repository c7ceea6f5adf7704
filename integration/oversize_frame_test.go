package integration

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/dodeca-dev/dodeca/apierr"
	"github.com/dodeca-dev/dodeca/rpc"
	"github.com/dodeca-dev/dodeca/shm"
)

const (
	echoServiceID uint16 = 0xfff0
	echoMethodID  uint16 = 1
)

// shmSessionPair attaches two rpc.Sessions to the same real SHM
// segment, one per role, without a second OS process — the same ring
// transport a host/cell pair uses, exercised in-process.
func shmSessionPair(t *testing.T, slotSize, slotCount, ringCapacity uint32) (host, cell *rpc.Session, cleanup func()) {
	t.Helper()
	seg, err := shm.Create(t.TempDir()+"/oversize-test", slotSize, slotCount, ringCapacity)
	if err != nil {
		t.Fatalf("shm.Create: %v", err)
	}
	peerSeg, err := shm.Attach(seg.Path(), shm.RoleB)
	if err != nil {
		t.Fatalf("shm.Attach: %v", err)
	}

	hostTransport := shm.NewTransport(seg, nil)
	cellTransport := shm.NewTransport(peerSeg, nil)

	hostDispatcher := rpc.NewDispatcher()
	host = rpc.NewSession(hostTransport, 1, hostDispatcher, log.Default())

	cellDispatcher := rpc.NewDispatcher()
	cell = rpc.NewSession(cellTransport, 2, cellDispatcher, log.Default())
	cellDispatcher.Register(echoServiceID, rpc.ServiceHandlerFunc(
		func(ctx context.Context, methodID uint16, payload []byte) ([]byte, error) {
			return payload, nil
		}))

	host.ReleaseGate()
	cell.ReleaseGate()
	go host.Run(context.Background())
	go cell.Run(context.Background())

	return host, cell, func() {
		hostTransport.Close()
		cellTransport.Close()
	}
}

// TestOversizeFrameRefused reproduces spec.md §8 scenario 4: with a 64
// KiB slot size, a single 128 KiB request payload fails with
// PayloadTooLarge and the session remains healthy for a subsequent 1
// KiB call.
func TestOversizeFrameRefused(t *testing.T) {
	const slotSize = 64 * 1024
	host, _, cleanup := shmSessionPair(t, slotSize, 64, 64)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	oversized := make([]byte, 128*1024)
	if _, err := host.Call(ctx, echoServiceID, echoMethodID, oversized); err != apierr.ErrPayloadTooLarge {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}

	small := make([]byte, 1024)
	for i := range small {
		small[i] = byte(i)
	}
	resp, err := host.Call(ctx, echoServiceID, echoMethodID, small)
	if err != nil {
		t.Fatalf("subsequent 1 KiB call failed: %v", err)
	}
	if len(resp) != len(small) {
		t.Fatalf("echoed %d bytes, want %d", len(resp), len(small))
	}
}
