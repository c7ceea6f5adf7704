package rpc

import (
	"io"
	"sync"

	"github.com/dodeca-dev/dodeca/wire"
)

// tunnelState is the session-local registration for one channel-id: a
// FIFO queue of received chunks plus the bookkeeping needed to signal
// end-of-stream exactly once, per the tunnel substrate's contract.
type tunnelState struct {
	mu       sync.Mutex
	chunks   chan []byte
	closed   bool
	eosSeen  bool
	closeErr error
}

// Tunnel is a bidirectional byte stream over a single channel-id: a Tx
// half for writing, an Rx half for reading. OpenTunnel creates both
// halves locally; AcceptTunnel creates the equal-and-opposite pair on
// the peer side once it learns the channel-id (typically as an
// argument of the RPC call that hands the tunnel off).
type Tunnel struct {
	Tx *Tx
	Rx *Rx
}

// Tx is the write half of a Tunnel.
type Tx struct {
	session    *Session
	channelID  uint32
	mu         sync.Mutex
	halfClosed bool
}

// Rx is the read half of a Tunnel.
type Rx struct {
	session   *Session
	channelID uint32
	state     *tunnelState
}

// OpenTunnel allocates a fresh channel-id from this session's
// allocator, registers its local state, and returns the Tunnel. The
// channel-id must then be communicated to the peer (as an RPC
// argument) so it can call AcceptTunnel with the same id before the
// first chunk is sent.
func (s *Session) OpenTunnel(queueDepth int) *Tunnel {
	ch := s.OpenChannel()
	return s.registerTunnel(ch, queueDepth)
}

// AcceptTunnel registers the peer side of a tunnel whose channel-id
// was received as an RPC argument, before any chunk for it is
// processed — satisfying the invariant that both sides register a
// channel-id before the first TunnelChunk is observed.
func (s *Session) AcceptTunnel(channelID uint32, queueDepth int) *Tunnel {
	return s.registerTunnel(channelID, queueDepth)
}

func (s *Session) registerTunnel(channelID uint32, queueDepth int) *Tunnel {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	st := &tunnelState{chunks: make(chan []byte, queueDepth)}
	s.mu.Lock()
	s.tunnels[channelID] = st
	s.mu.Unlock()
	return &Tunnel{
		Tx: &Tx{session: s, channelID: channelID},
		Rx: &Rx{session: s, channelID: channelID, state: st},
	}
}

func (s *Session) routeTunnelFrame(f wire.Frame) {
	s.mu.Lock()
	st, ok := s.tunnels[f.ChannelID]
	s.mu.Unlock()
	if !ok {
		s.logger.Printf("rpc: dropping tunnel frame for unregistered channel %d", f.ChannelID)
		return
	}

	switch f.Kind {
	case wire.KindTunnelChunk:
		if len(f.Payload) > 0 {
			select {
			case st.chunks <- f.Payload:
			default:
				// Back-pressure: the ring itself already throttles the
				// sender; a full local queue here means the reader is
				// not draining. Block until it drains rather than drop
				// data; the demux loop waits here meanwhile.
				st.chunks <- f.Payload
			}
		}
		if f.EOS() {
			s.markTunnelEOS(f.ChannelID, st, nil)
		}
	case wire.KindTunnelClose:
		s.markTunnelEOS(f.ChannelID, st, io.EOF)
		s.mu.Lock()
		delete(s.tunnels, f.ChannelID)
		s.mu.Unlock()
	}
}

func (s *Session) markTunnelEOS(channelID uint32, st *tunnelState, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.eosSeen {
		return
	}
	st.eosSeen = true
	st.closeErr = err
	close(st.chunks)
}

func (s *Session) closeAllTunnels() {
	s.mu.Lock()
	tunnels := s.tunnels
	s.tunnels = make(map[uint32]*tunnelState)
	s.mu.Unlock()
	for _, st := range tunnels {
		s.markTunnelEOS(0, st, io.ErrClosedPipe)
	}
}

// ChannelID returns the channel-id this Tx was opened or accepted on,
// so a caller can pass it to the peer as an RPC argument.
func (t *Tx) ChannelID() uint32 { return t.channelID }

// ChannelID returns the channel-id this Rx was opened or accepted on.
func (r *Rx) ChannelID() uint32 { return r.channelID }

// Write sends data as one TunnelChunk frame.
func (t *Tx) Write(data []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.halfClosed {
		return 0, io.ErrClosedPipe
	}
	if err := t.session.transport.Send(wire.Frame{
		Kind:      wire.KindTunnelChunk,
		ChannelID: t.channelID,
		Payload:   data,
	}); err != nil {
		return 0, err
	}
	return len(data), nil
}

// CloseWrite emits a TunnelChunk with the EOS bit set, signalling the
// peer's Rx that no further bytes are coming on this half without
// tearing down the whole tunnel.
func (t *Tx) CloseWrite() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.halfClosed {
		return nil
	}
	t.halfClosed = true
	return t.session.transport.Send(wire.Frame{
		Kind:      wire.KindTunnelChunk,
		ChannelID: t.channelID,
		Status:    wire.EOSFlag,
	})
}

// Close fully tears down the tunnel from this side, emitting
// TunnelClose.
func (t *Tx) Close() error {
	t.mu.Lock()
	t.halfClosed = true
	t.mu.Unlock()
	return t.session.transport.Send(wire.Frame{
		Kind:      wire.KindTunnelClose,
		ChannelID: t.channelID,
	})
}

// Read returns the next chunk of bytes in send order. It returns
// io.EOF once EOS or TunnelClose has been observed and every buffered
// chunk has been drained.
func (r *Rx) Read() ([]byte, error) {
	data, ok := <-r.state.chunks
	if ok {
		return data, nil
	}
	r.state.mu.Lock()
	err := r.state.closeErr
	r.state.mu.Unlock()
	if err == nil {
		err = io.EOF
	}
	return nil, err
}
