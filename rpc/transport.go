// Package rpc implements the session layer of the cell fabric's RPC
// bus: frame demultiplexing onto per-call waiters and per-channel
// tunnel queues, a multi-service dispatcher, correlation/channel id
// allocation, and the bidirectional call/notify/tunnel API every typed
// service binding is built on.
package rpc

import "github.com/dodeca-dev/dodeca/wire"

// Transport is the minimal contract Session needs from whatever moves
// frames between two processes. Both *shm.Transport and
// *shm.LoopbackTransport satisfy it.
type Transport interface {
	Send(wire.Frame) error
	Recv() (wire.Frame, error)
	Close() error
}
