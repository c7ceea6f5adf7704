// Outbound frame queue for a cell's session: handler goroutines enqueue
// frames to send to the host without blocking on the ring directly, and
// one drain goroutine serializes pushes onto the transport. Mirrors the
// teacher's lock-free task executor (internal/concurrency/executor.go),
// re-purposed from arbitrary TaskFunc values to wire.Frame values.
package cell

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/dodeca-dev/dodeca/rpc"
	"github.com/dodeca-dev/dodeca/wire"
)

// sendQueue buffers outbound frames so a burst of handler completions
// never blocks on the ring's free list directly from the handler
// goroutine; the drain loop is the only goroutine that calls
// Transport.Send, so Send's own blocking-on-free-slot behavior only
// ever stalls this one loop, not the dispatcher.
type sendQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	q        *queue.Queue
	closed   bool
}

func newSendQueue() *sendQueue {
	sq := &sendQueue{q: queue.New()}
	sq.notEmpty = sync.NewCond(&sq.mu)
	return sq
}

func (sq *sendQueue) push(f wire.Frame) {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	if sq.closed {
		return
	}
	sq.q.Add(f)
	sq.notEmpty.Signal()
}

func (sq *sendQueue) close() {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	sq.closed = true
	sq.notEmpty.Broadcast()
}

// drain runs until close() is called, popping frames in FIFO order and
// handing each to send. Intended to run on its own goroutine.
func (sq *sendQueue) drain(send func(wire.Frame) error, onErr func(error)) {
	for {
		sq.mu.Lock()
		for sq.q.Length() == 0 && !sq.closed {
			sq.notEmpty.Wait()
		}
		if sq.q.Length() == 0 && sq.closed {
			sq.mu.Unlock()
			return
		}
		f := sq.q.Peek().(wire.Frame)
		sq.q.Remove()
		sq.mu.Unlock()

		if err := send(f); err != nil && onErr != nil {
			onErr(err)
		}
	}
}

// queuedTransport wraps an rpc.Transport so that Send enqueues instead
// of pushing to the ring synchronously; Recv passes straight through.
// This lets a cell's session demux loop hand off outbound traffic
// without ever blocking on ring back-pressure itself.
type queuedTransport struct {
	inner rpc.Transport
	out   *sendQueue
}

func newQueuedTransport(inner rpc.Transport) *queuedTransport {
	qt := &queuedTransport{inner: inner, out: newSendQueue()}
	go qt.out.drain(qt.inner.Send, func(error) {})
	return qt
}

func (qt *queuedTransport) Send(f wire.Frame) error {
	qt.out.push(f)
	return nil
}

func (qt *queuedTransport) Recv() (wire.Frame, error) { return qt.inner.Recv() }

func (qt *queuedTransport) Close() error {
	qt.out.close()
	return qt.inner.Close()
}
