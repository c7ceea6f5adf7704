package shm

import (
	"sync"

	"github.com/dodeca-dev/dodeca/apierr"
	"github.com/dodeca-dev/dodeca/wire"
)

// LoopbackPair returns two in-process Transports wired directly to
// each other over Go channels, implementing the same Send/Recv/Close
// contract as a real Segment-backed Transport. It exists so the RPC
// session, dispatcher, and tunnel layers can be exercised by tests
// without mmap, memfd, or a second OS process — the fast half of the
// split the fabric's test suite draws between in-process unit tests
// and full fork/exec integration tests.
func LoopbackPair(capacity int) (a, b *LoopbackTransport) {
	atob := make(chan wire.Frame, capacity)
	btoa := make(chan wire.Frame, capacity)
	a = &LoopbackTransport{send: atob, recv: btoa}
	b = &LoopbackTransport{send: btoa, recv: atob}
	a.peer, b.peer = b, a
	return a, b
}

// LoopbackTransport implements the shm.Transport contract over two
// buffered channels.
type LoopbackTransport struct {
	mu     sync.Mutex
	send   chan wire.Frame
	recv   chan wire.Frame
	peer   *LoopbackTransport
	closed bool
}

func (l *LoopbackTransport) Send(f wire.Frame) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return apierr.ErrPeerGone
	}
	l.mu.Unlock()
	select {
	case l.send <- f:
		return nil
	default:
		// Channel full stands in for a full ring: block until there is
		// room or the transport is closed.
	}
	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return apierr.ErrPeerGone
		}
		l.mu.Unlock()
		select {
		case l.send <- f:
			return nil
		default:
		}
	}
}

func (l *LoopbackTransport) Recv() (wire.Frame, error) {
	f, ok := <-l.recv
	if !ok {
		return wire.Frame{}, apierr.ErrPeerGone
	}
	return f, nil
}

func (l *LoopbackTransport) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.send)
	return nil
}
