// Package lifecycle implements the mandatory CellLifecycle service
// every cell registers: the ready handshake that removes the race
// between "host has the connection handle" and "cell has installed
// its dispatcher".
package lifecycle

import (
	"context"
	"time"

	"github.com/dodeca-dev/dodeca/apierr"
	"github.com/dodeca-dev/dodeca/rpc"
	"github.com/dodeca-dev/dodeca/services"
	"github.com/dodeca-dev/dodeca/services/codec"
)

const ReadyMethodID uint16 = 1

// ReadyMsg is sent by a cell immediately after its demux loop starts.
type ReadyMsg struct {
	CellName string
	PID      int
	Services []uint16
	Started  time.Time
}

// ReadyAck is the host's reply, carrying the boot generation the cell
// is joining.
type ReadyAck struct {
	Generation uint64
}

// Client wraps a Session with the single outbound Ready call a cell
// issues against the host.
type Client struct{ s *rpc.Session }

func NewClient(s *rpc.Session) *Client { return &Client{s: s} }

func (c *Client) Ready(ctx context.Context, msg ReadyMsg) (ReadyAck, error) {
	req, err := codec.Encode(msg)
	if err != nil {
		return ReadyAck{}, err
	}
	respPayload, err := c.s.Call(ctx, services.CellLifecycleServiceID, ReadyMethodID, req)
	if err != nil {
		return ReadyAck{}, err
	}
	var ack ReadyAck
	if err := codec.Decode(respPayload, &ack); err != nil {
		return ReadyAck{}, err
	}
	return ack, nil
}

// Server is implemented by the host supervisor to observe each cell's
// ready handshake.
type Server interface {
	Ready(ctx context.Context, msg ReadyMsg) (ReadyAck, error)
}

// Handler adapts a Server implementation to rpc.ServiceHandler.
type Handler struct{ impl Server }

func NewHandler(impl Server) *Handler { return &Handler{impl: impl} }

func (h *Handler) HandleMethod(ctx context.Context, methodID uint16, payload []byte) ([]byte, error) {
	switch methodID {
	case ReadyMethodID:
		var msg ReadyMsg
		if err := codec.Decode(payload, &msg); err != nil {
			return nil, err
		}
		ack, err := h.impl.Ready(ctx, msg)
		if err != nil {
			return nil, err
		}
		return codec.Encode(ack)
	default:
		return nil, apierr.ErrUnknownMethod
	}
}
