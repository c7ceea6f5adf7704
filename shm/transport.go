// Transport-level Send/Receive built on top of a Segment's rings and
// free list, implementing the send/receive paths from the cell
// fabric's SHM ring transport component: claim a free slot (blocking
// on the doorbell if none is free), copy the encoded frame into it,
// publish the descriptor, and ring the consumer's doorbell; mirrored
// on the receive side.
package shm

import (
	"sync/atomic"

	"github.com/dodeca-dev/dodeca/apierr"
	"github.com/dodeca-dev/dodeca/wire"
)

// waitPollMs bounds how long a single claim/recv wait iteration blocks
// before re-checking the peer-alive probe and the closed flag. It is
// not a protocol timeout: callers see no error until PeerAlive (if
// set) reports death, or Close is called.
const waitPollMs = 50

// Transport adapts a Segment to send and receive wire.Frame values,
// translating oversize payloads and a dead peer into the errors the
// RPC session layer is specified to surface.
type Transport struct {
	seg       *Segment
	closed    int32
	peerAlive func() bool // optional liveness probe, wired by the host supervisor
}

// NewTransport wraps seg. peerAlive, if non-nil, is consulted whenever
// a send or receive would otherwise block forever so a dead peer is
// reported as apierr.ErrPeerGone instead of hanging.
func NewTransport(seg *Segment, peerAlive func() bool) *Transport {
	return &Transport{seg: seg, peerAlive: peerAlive}
}

// Send encodes f and pushes it to the peer, chunked-through-tunnel
// enforcement happens one layer up (rpc/tunnel.go); here an oversize
// frame is simply refused.
func (t *Transport) Send(f wire.Frame) error {
	if atomic.LoadInt32(&t.closed) != 0 {
		return apierr.ErrPeerGone
	}
	body, err := wire.EncodeBytes(f)
	if err != nil {
		return err
	}
	if len(body) > int(t.seg.layout.SlotSize) {
		return apierr.ErrPayloadTooLarge
	}

	allowReserved := f.Kind != wire.KindTunnelChunk && f.Kind != wire.KindTunnelClose
	for {
		if atomic.LoadInt32(&t.closed) != 0 {
			return apierr.ErrPeerGone
		}
		if idx, ok := t.seg.free.claim(allowReserved); ok {
			copy(t.seg.slotBuf(idx), body)
			if !t.seg.send.push(descriptor{SlotIndex: idx, Length: uint32(len(body))}) {
				// Should not happen: we just claimed a free slot, and
				// the data ring's capacity tracks the free list's
				// seeding. Return the slot and surface as peer-gone.
				t.seg.free.release(idx)
				return apierr.ErrPeerGone
			}
			return nil
		}
		if t.peerDead() {
			return apierr.ErrPeerGone
		}
		t.seg.free.waitAvailable(waitPollMs)
	}
}

// Recv blocks until a frame arrives on the peer's ring and returns it
// decoded, releasing the slot back to the free list before returning.
func (t *Transport) Recv() (wire.Frame, error) {
	for {
		if atomic.LoadInt32(&t.closed) != 0 {
			return wire.Frame{}, apierr.ErrPeerGone
		}
		if d, ok := t.seg.recv.pop(); ok {
			buf := t.seg.slotBuf(d.SlotIndex)
			f, err := wire.DecodeBytes(buf[:d.Length])
			t.seg.free.release(d.SlotIndex)
			if err != nil {
				return wire.Frame{}, apierr.ErrMalformedFrame
			}
			return f, nil
		}
		if t.peerDead() {
			return wire.Frame{}, apierr.ErrPeerGone
		}
		t.seg.recv.waitNotEmpty(waitPollMs)
	}
}

func (t *Transport) peerDead() bool {
	if t.peerAlive == nil {
		return false
	}
	return !t.peerAlive()
}

// Close marks the transport terminally closed; every subsequent Send
// or Recv call returns apierr.ErrPeerGone, matching the SHM transport's
// specified failure semantics.
func (t *Transport) Close() error {
	if atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return t.seg.Close()
	}
	return nil
}

// Closed reports whether Close has been called or a peer-gone
// condition has been latched.
func (t *Transport) Closed() bool { return atomic.LoadInt32(&t.closed) != 0 }

// MarkPeerGone latches the terminal error state without closing the
// underlying mapping, used when the supervisor observes a child exit
// out-of-band (SIGCHLD / Wait) before the ring itself notices.
func (t *Transport) MarkPeerGone() {
	atomic.StoreInt32(&t.closed, 1)
}
