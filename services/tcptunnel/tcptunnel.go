// Package tcptunnel implements the TcpTunnel service: the call the
// host makes into the HTTP cell once per accepted browser connection,
// handing it a tunnel to treat as the raw byte stream of that
// connection. The cell is deliberately "dumb" — it knows HTTP framing
// and nothing about how the bytes it serves were built; ContentFetch
// (services/host) is how it resolves what to serve.
package tcptunnel

import (
	"context"

	"github.com/dodeca-dev/dodeca/apierr"
	"github.com/dodeca-dev/dodeca/rpc"
	"github.com/dodeca-dev/dodeca/services"
	"github.com/dodeca-dev/dodeca/services/codec"
)

const OpenMethodID uint16 = 1

// TunnelHandle names the channel-id of a tunnel the host has already
// opened on this session; the HTTP cell accepts the peer side of it
// and treats it as one accepted browser connection's raw byte stream.
// RemoteAddr is carried for the cell's access logging only.
type TunnelHandle struct {
	ChannelID  uint32
	RemoteAddr string
}

// OpenAck confirms the cell accepted the tunnel and is now servicing
// it as an HTTP connection.
type OpenAck struct {
	Accepted bool
}

// Client is the host-side typed binding, used once per accepted FD.
type Client struct{ s *rpc.Session }

func NewClient(s *rpc.Session) *Client { return &Client{s: s} }

// Open hands a freshly-opened tunnel to the HTTP cell and returns it
// alongside the ack, so the host can immediately start pumping the
// accepted connection's bytes through Tx/Rx.
func (c *Client) Open(ctx context.Context, remoteAddr string) (*rpc.Tunnel, OpenAck, error) {
	tun := c.s.OpenTunnel(64)
	req := TunnelHandle{ChannelID: tun.Tx.ChannelID(), RemoteAddr: remoteAddr}
	reqPayload, err := codec.Encode(req)
	if err != nil {
		return nil, OpenAck{}, err
	}
	respPayload, err := c.s.Call(ctx, services.TcpTunnelServiceID, OpenMethodID, reqPayload)
	if err != nil {
		return nil, OpenAck{}, err
	}
	var ack OpenAck
	if err := codec.Decode(respPayload, &ack); err != nil {
		return nil, OpenAck{}, err
	}
	return tun, ack, nil
}

// Server is implemented by the HTTP cell. handle is the accepted peer
// side of the tunnel the host opened; the implementation should accept
// it (typically by spawning a goroutine that runs net/http's
// connection state machine over handle.Tx/handle.Rx) and return
// immediately — it must not block the RPC call on the connection's
// lifetime.
type Server interface {
	Open(ctx context.Context, req TunnelHandle, handle *rpc.Tunnel) (OpenAck, error)
}

type Handler struct {
	impl    Server
	session *rpc.Session
}

func NewHandler(impl Server, session *rpc.Session) *Handler {
	return &Handler{impl: impl, session: session}
}

func (h *Handler) HandleMethod(ctx context.Context, methodID uint16, payload []byte) ([]byte, error) {
	if methodID != OpenMethodID {
		return nil, apierr.ErrUnknownMethod
	}
	var req TunnelHandle
	if err := codec.Decode(payload, &req); err != nil {
		return nil, err
	}
	handle := h.session.AcceptTunnel(req.ChannelID, 64)
	ack, err := h.impl.Open(ctx, req, handle)
	if err != nil {
		return nil, err
	}
	return codec.Encode(ack)
}
