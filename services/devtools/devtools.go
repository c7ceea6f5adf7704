// Package devtools implements the Devtools service: the one call
// direction this typed binding runs backwards through, from the HTTP
// cell to the host. A browser's devtools WebSocket connection arrives
// on the HTTP cell's own tunnel like any other request, but the
// devtools protocol itself is served by the host, so the cell opens a
// second tunnel and hands its channel-id to the host with Attach,
// mirroring TcpTunnel.Open's handle-and-accept shape in the opposite
// direction.
package devtools

import (
	"context"

	"github.com/dodeca-dev/dodeca/apierr"
	"github.com/dodeca-dev/dodeca/rpc"
	"github.com/dodeca-dev/dodeca/services"
	"github.com/dodeca-dev/dodeca/services/codec"
)

const AttachMethodID uint16 = 1

// AttachRequest names the channel-id of a tunnel the HTTP cell has
// already opened; the host accepts the peer side and treats it as one
// devtools WebSocket connection's raw byte stream.
type AttachRequest struct {
	ChannelID uint32
}

type AttachAck struct {
	Accepted bool
}

// Client is the cell-side typed binding, used once per devtools
// connection the HTTP cell accepts from a browser.
type Client struct{ s *rpc.Session }

func NewClient(s *rpc.Session) *Client { return &Client{s: s} }

// Attach opens a tunnel and hands it to the host, returning the Tunnel
// the cell should immediately start pumping the devtools WebSocket
// connection's bytes through.
func (c *Client) Attach(ctx context.Context) (*rpc.Tunnel, AttachAck, error) {
	tun := c.s.OpenTunnel(64)
	req := AttachRequest{ChannelID: tun.Tx.ChannelID()}
	reqPayload, err := codec.Encode(req)
	if err != nil {
		return nil, AttachAck{}, err
	}
	respPayload, err := c.s.Call(ctx, services.DevtoolsServiceID, AttachMethodID, reqPayload)
	if err != nil {
		return nil, AttachAck{}, err
	}
	var ack AttachAck
	if err := codec.Decode(respPayload, &ack); err != nil {
		return nil, AttachAck{}, err
	}
	return tun, ack, nil
}

// Server is implemented by the host to serve the devtools protocol
// over the accepted tunnel. Like TcpTunnel.Server.Open, it must not
// block the RPC call on the connection's lifetime.
type Server interface {
	Attach(ctx context.Context, req AttachRequest, handle *rpc.Tunnel) (AttachAck, error)
}

type Handler struct {
	impl    Server
	session *rpc.Session
}

func NewHandler(impl Server, session *rpc.Session) *Handler {
	return &Handler{impl: impl, session: session}
}

func (h *Handler) HandleMethod(ctx context.Context, methodID uint16, payload []byte) ([]byte, error) {
	if methodID != AttachMethodID {
		return nil, apierr.ErrUnknownMethod
	}
	var req AttachRequest
	if err := codec.Decode(payload, &req); err != nil {
		return nil, err
	}
	handle := h.session.AcceptTunnel(req.ChannelID, 64)
	ack, err := h.impl.Attach(ctx, req, handle)
	if err != nil {
		return nil, err
	}
	return codec.Encode(ack)
}
