package rpc_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/dodeca-dev/dodeca/rpc"
	"github.com/dodeca-dev/dodeca/shm"
)

const (
	testEchoService uint16 = 5
	testEchoMethod  uint16 = 1
)

func echoDispatcher() *rpc.Dispatcher {
	d := rpc.NewDispatcher()
	d.Register(testEchoService, rpc.ServiceHandlerFunc(func(ctx context.Context, methodID uint16, payload []byte) ([]byte, error) {
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	}))
	return d
}

func newSessionPair(t *testing.T) (*rpc.Session, *rpc.Session, func()) {
	t.Helper()
	a, b := shm.LoopbackPair(32)
	host := rpc.NewSession(a, 1, echoDispatcher(), nil)
	cell := rpc.NewSession(b, 2, echoDispatcher(), nil)
	host.ReleaseGate()
	cell.ReleaseGate()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); host.Run(ctx) }()
	go func() { defer wg.Done(); cell.Run(ctx) }()

	return host, cell, func() {
		cancel()
		a.Close()
		b.Close()
		wg.Wait()
	}
}

func TestSessionCallEchoes(t *testing.T) {
	host, _, stop := newSessionPair(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := host.Call(ctx, testEchoService, testEchoMethod, []byte("ping"))
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != "ping" {
		t.Fatalf("got %q, want %q", resp, "ping")
	}
}

func TestCorrelationIDsAreUnique(t *testing.T) {
	host, _, stop := newSessionPair(t)
	defer stop()

	const n = 200
	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			want := strconv.Itoa(i)
			resp, err := host.Call(ctx, testEchoService, testEchoMethod, []byte(want))
			if err != nil {
				t.Error(err)
				return
			}
			if string(resp) != want {
				t.Errorf("call %s got response %q", want, resp)
				return
			}
			mu.Lock()
			seen[string(resp)] = true
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	// Correlation uniqueness is enforced internally (the pending table
	// would misdeliver otherwise); this test's real assertion is that
	// every one of n concurrent calls got its own matching response
	// rather than a collision silently dropping one.
	if len(seen) != n {
		t.Fatalf("got %d distinct matching responses, want %d", len(seen), n)
	}
}

func TestChannelIDsAreDisjoint(t *testing.T) {
	host, cell, stop := newSessionPair(t)
	defer stop()

	hostChans := make(map[uint32]bool)
	cellChans := make(map[uint32]bool)
	for i := 0; i < 50; i++ {
		hostChans[host.OpenChannel()] = true
		cellChans[cell.OpenChannel()] = true
	}
	for ch := range hostChans {
		if ch%2 == 0 {
			t.Fatalf("host channel id %d should be odd", ch)
		}
		if cellChans[ch] {
			t.Fatalf("channel id %d allocated by both peers", ch)
		}
	}
	for ch := range cellChans {
		if ch%2 != 0 {
			t.Fatalf("cell channel id %d should be even", ch)
		}
	}
}

func TestGateBlocksNonLifecycleCallsBeforeRelease(t *testing.T) {
	a, b := shm.LoopbackPair(32)
	defer a.Close()
	defer b.Close()
	host := rpc.NewSession(a, 1, echoDispatcher(), nil)
	cell := rpc.NewSession(b, 2, echoDispatcher(), nil)
	// Gate intentionally not released on host.

	ctx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	go host.Run(ctx)
	go cell.Run(ctx)

	done := make(chan struct{})
	go func() {
		callCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		host.Call(callCtx, testEchoService, testEchoMethod, []byte("x"))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("call returned before gate was released; handshake-before-call invariant violated")
	case <-time.After(50 * time.Millisecond):
		// Still blocked, as required.
	}
	host.ReleaseGate()
	<-done
}
