package rpc

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/dodeca-dev/dodeca/apierr"
	"github.com/dodeca-dev/dodeca/wire"
)

// CellLifecycleServiceID is the mandatory service every cell registers
// in addition to its declared services; it is the only service a
// session will originate calls to before the session's gate has been
// released (see Session.ReleaseGate). Inbound requests are dispatched
// whether or not the gate is open.
const CellLifecycleServiceID uint16 = 0

type pendingCall struct {
	resultCh chan callResult
}

type callResult struct {
	payload []byte
	err     error
}

// Session is the per-process RPC state bound to one transport: a
// correlation-id counter, a channel-id counter starting at chanStart
// and incrementing by 2 (so the two peers' allocators never collide),
// a pending-call table, a tunnel table, and an installed dispatcher.
type Session struct {
	transport  Transport
	dispatcher *Dispatcher
	logger     *log.Logger

	corrID uint64 // atomic

	chanID uint64 // atomic, starts at chanStart

	mu      sync.Mutex
	pending map[uint64]*pendingCall
	tunnels map[uint32]*tunnelState

	gateOnce sync.Once
	gateCh   chan struct{}
	gateOpen int32 // atomic bool

	closedOnce sync.Once
	closeErr   error
	doneCh     chan struct{}
}

// NewSession constructs a session over transport. chanStart must be 1
// for a host session and 2 for a cell session, matching the odd/even
// channel-id disjointness invariant.
func NewSession(transport Transport, chanStart uint32, dispatcher *Dispatcher, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		transport:  transport,
		dispatcher: dispatcher,
		logger:     logger,
		chanID:     uint64(chanStart),
		pending:    make(map[uint64]*pendingCall),
		tunnels:    make(map[uint32]*tunnelState),
		gateCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// ReleaseGate opens the session for non-lifecycle calls. The host
// supervisor calls this once, after observing the cell's ready RPC,
// and the cell runtime calls it on its own session once the host has
// acknowledged ready, enforcing the fabric's handshake-before-call invariant at
// the session boundary rather than trusting caller discipline alone.
func (s *Session) ReleaseGate() {
	s.gateOnce.Do(func() {
		atomic.StoreInt32(&s.gateOpen, 1)
		close(s.gateCh)
	})
}

func (s *Session) gateWait(serviceID uint16) {
	if serviceID == CellLifecycleServiceID || atomic.LoadInt32(&s.gateOpen) != 0 {
		return
	}
	select {
	case <-s.gateCh:
	case <-s.doneCh:
	}
}

// Done returns a channel closed once the session's demux loop has
// exited, terminally, for any reason.
func (s *Session) Done() <-chan struct{} { return s.doneCh }

// Err returns the terminal error the session exited with, valid only
// after Done() is closed.
func (s *Session) Err() error {
	select {
	case <-s.doneCh:
		return s.closeErr
	default:
		return nil
	}
}

// Run executes the session's demux loop until the transport reports a
// terminal error. It is single-threaded per session: handler tasks are
// spawned as goroutines and never block this loop.
func (s *Session) Run(ctx context.Context) error {
	defer s.terminate(nil)
	for {
		f, err := s.transport.Recv()
		if err != nil {
			s.terminate(err)
			return err
		}
		s.handleFrame(ctx, f)
	}
}

func (s *Session) terminate(err error) {
	s.closedOnce.Do(func() {
		s.closeErr = err
		s.failAllPending(err)
		s.closeAllTunnels()
		close(s.doneCh)
	})
}

func (s *Session) failAllPending(err error) {
	if err == nil {
		err = apierr.ErrPeerGone
	}
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[uint64]*pendingCall)
	s.mu.Unlock()
	for _, p := range pending {
		select {
		case p.resultCh <- callResult{err: err}:
		default:
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, f wire.Frame) {
	switch f.Kind {
	case wire.KindResponse, wire.KindError:
		s.completeCall(f)
	case wire.KindRequest:
		go s.serveRequest(ctx, f)
	case wire.KindNotification:
		go s.serveNotification(ctx, f)
	case wire.KindTunnelChunk, wire.KindTunnelClose:
		s.routeTunnelFrame(f)
	default:
		s.logger.Printf("rpc: dropping frame with unexpected kind %s", f.Kind)
	}
}

func (s *Session) completeCall(f wire.Frame) {
	s.mu.Lock()
	p, ok := s.pending[f.CorrelationID]
	if ok {
		delete(s.pending, f.CorrelationID)
	}
	s.mu.Unlock()
	if !ok {
		s.logger.Printf("rpc: dropping response for unknown correlation id %d", f.CorrelationID)
		return
	}
	res := callResult{payload: f.Payload}
	if f.Kind == wire.KindError {
		res.err = statusToError(f.Status, f.Payload)
	}
	select {
	case p.resultCh <- res:
	default:
		// Caller already gave up (cancellation); drop the late result.
	}
}

func (s *Session) serveRequest(ctx context.Context, f wire.Frame) {
	payload, err := s.dispatcher.Dispatch(ctx, f.ServiceID, f.MethodID, f.Payload)
	resp := wire.Frame{CorrelationID: f.CorrelationID}
	if err != nil {
		resp.Kind = wire.KindError
		resp.Status = errorToStatus(err)
		resp.Payload = []byte(err.Error())
	} else {
		resp.Kind = wire.KindResponse
		resp.Payload = payload
	}
	if sendErr := s.transport.Send(resp); sendErr != nil {
		s.logger.Printf("rpc: failed to send response for correlation id %d: %v", f.CorrelationID, sendErr)
	}
}

func (s *Session) serveNotification(ctx context.Context, f wire.Frame) {
	if _, err := s.dispatcher.Dispatch(ctx, f.ServiceID, f.MethodID, f.Payload); err != nil {
		s.logger.Printf("rpc: notification handler for service %d method %d failed: %v", f.ServiceID, f.MethodID, err)
	}
}

// Call issues an outbound request and blocks until the matching
// Response/Error arrives or ctx is done. Cancellation removes the
// pending-table entry; a late response is then dropped silently.
func (s *Session) Call(ctx context.Context, serviceID, methodID uint16, payload []byte) ([]byte, error) {
	s.gateWait(serviceID)

	corrID := atomic.AddUint64(&s.corrID, 1)
	p := &pendingCall{resultCh: make(chan callResult, 1)}

	s.mu.Lock()
	s.pending[corrID] = p
	s.mu.Unlock()

	req := wire.Frame{
		Kind:          wire.KindRequest,
		CorrelationID: corrID,
		ServiceID:     serviceID,
		MethodID:      methodID,
		Payload:       payload,
	}
	if err := s.transport.Send(req); err != nil {
		s.mu.Lock()
		delete(s.pending, corrID)
		s.mu.Unlock()
		return nil, err
	}

	select {
	case res := <-p.resultCh:
		return res.payload, res.err
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, corrID)
		s.mu.Unlock()
		return nil, ctx.Err()
	case <-s.doneCh:
		return nil, s.Err()
	}
}

// Notify sends a one-way request that expects no response.
func (s *Session) Notify(serviceID, methodID uint16, payload []byte) error {
	s.gateWait(serviceID)
	return s.transport.Send(wire.Frame{
		Kind:      wire.KindNotification,
		ServiceID: serviceID,
		MethodID:  methodID,
		Payload:   payload,
	})
}

// OpenChannel allocates the next channel id from this session's
// allocator (step 2, starting at its configured chanStart).
func (s *Session) OpenChannel() uint32 {
	return uint32(atomic.AddUint64(&s.chanID, 2) - 2)
}

func statusToError(status uint16, payload []byte) error {
	switch apierr.Code(status) {
	case apierr.CodeUnknownService:
		return apierr.ErrUnknownService
	case apierr.CodeUnknownMethod:
		return apierr.ErrUnknownMethod
	case apierr.CodePayloadTooLarge:
		return apierr.ErrPayloadTooLarge
	default:
		return fmt.Errorf("rpc: application error: %s", string(payload))
	}
}

func errorToStatus(err error) uint16 {
	switch err {
	case apierr.ErrUnknownService:
		return uint16(apierr.CodeUnknownService)
	case apierr.ErrUnknownMethod:
		return uint16(apierr.CodeUnknownMethod)
	case apierr.ErrPayloadTooLarge:
		return uint16(apierr.CodePayloadTooLarge)
	default:
		return uint16(apierr.CodeApplication)
	}
}
