// Package host implements the HostService typed binding: the calls a
// cell makes back into the host during rendering — fetching content
// bytes, resolving data-layer queries, and forwarding log lines — all
// multiplexed over the same session the host uses to call into the
// cell.
package host

import (
	"context"

	"github.com/dodeca-dev/dodeca/apierr"
	"github.com/dodeca-dev/dodeca/rpc"
	"github.com/dodeca-dev/dodeca/services"
	"github.com/dodeca-dev/dodeca/services/codec"
)

const (
	ContentFetchMethodID uint16 = 1
	ResolveDataMethodID  uint16 = 2
	LogMethodID          uint16 = 3
)

// ContentRequest names a content-addressed or route path to fetch, and
// the channel-id of a tunnel the caller has already opened to receive
// the body bytes on.
type ContentRequest struct {
	Path      string
	ChannelID uint32
}

// ContentResponse carries the metadata the caller needs before the
// first tunnel chunk arrives; the body itself streams over the tunnel
// because it may exceed the slot size.
type ContentResponse struct {
	ContentType string
	Length      int64
	Immutable   bool
	NotFound    bool
}

type DataQuery struct {
	Key string
}

type DataResult struct {
	Value []byte
	Found bool
}

type LogLine struct {
	CellName string
	Level    string
	Message  string
}

// Client is the cell-side typed binding for HostService.
type Client struct{ s *rpc.Session }

func NewClient(s *rpc.Session) *Client { return &Client{s: s} }

// ContentFetch opens a tunnel, issues the call, and returns the tunnel
// Rx the caller should read the body from until io.EOF.
func (c *Client) ContentFetch(ctx context.Context, path string) (*rpc.Rx, ContentResponse, error) {
	tun := c.s.OpenTunnel(64)
	req := ContentRequest{Path: path, ChannelID: tun.Tx.ChannelID()}
	reqPayload, err := codec.Encode(req)
	if err != nil {
		return nil, ContentResponse{}, err
	}
	respPayload, err := c.s.Call(ctx, services.HostServiceID, ContentFetchMethodID, reqPayload)
	if err != nil {
		return nil, ContentResponse{}, err
	}
	var resp ContentResponse
	if err := codec.Decode(respPayload, &resp); err != nil {
		return nil, ContentResponse{}, err
	}
	return tun.Rx, resp, nil
}

func (c *Client) ResolveData(ctx context.Context, q DataQuery) (DataResult, error) {
	reqPayload, err := codec.Encode(q)
	if err != nil {
		return DataResult{}, err
	}
	respPayload, err := c.s.Call(ctx, services.HostServiceID, ResolveDataMethodID, reqPayload)
	if err != nil {
		return DataResult{}, err
	}
	var res DataResult
	if err := codec.Decode(respPayload, &res); err != nil {
		return DataResult{}, err
	}
	return res, nil
}

// Log forwards a log line to the host as a one-way notification.
func (c *Client) Log(line LogLine) error {
	payload, err := codec.Encode(line)
	if err != nil {
		return err
	}
	return c.s.Notify(services.HostServiceID, LogMethodID, payload)
}

// Server is implemented by the host to serve cell-originated calls.
type Server interface {
	ContentFetch(ctx context.Context, req ContentRequest) (ContentResponse, []byte, error)
	ResolveData(ctx context.Context, q DataQuery) (DataResult, error)
	Log(line LogLine)
}

// Handler adapts a Server to rpc.ServiceHandler. It needs the Session
// to accept the tunnel ContentFetch's caller already opened.
type Handler struct {
	impl    Server
	session *rpc.Session
}

func NewHandler(impl Server, session *rpc.Session) *Handler {
	return &Handler{impl: impl, session: session}
}

func (h *Handler) HandleMethod(ctx context.Context, methodID uint16, payload []byte) ([]byte, error) {
	switch methodID {
	case ContentFetchMethodID:
		var req ContentRequest
		if err := codec.Decode(payload, &req); err != nil {
			return nil, err
		}
		resp, body, err := h.impl.ContentFetch(ctx, req)
		if err != nil {
			return nil, err
		}
		tun := h.session.AcceptTunnel(req.ChannelID, 64)
		go streamBody(tun.Tx, body)
		return codec.Encode(resp)
	case ResolveDataMethodID:
		var q DataQuery
		if err := codec.Decode(payload, &q); err != nil {
			return nil, err
		}
		res, err := h.impl.ResolveData(ctx, q)
		if err != nil {
			return nil, err
		}
		return codec.Encode(res)
	case LogMethodID:
		var line LogLine
		if err := codec.Decode(payload, &line); err != nil {
			return nil, err
		}
		h.impl.Log(line)
		return nil, nil
	default:
		return nil, apierr.ErrUnknownMethod
	}
}

func streamBody(tx *rpc.Tx, body []byte) {
	const chunkSize = 32 * 1024
	for len(body) > 0 {
		n := chunkSize
		if n > len(body) {
			n = len(body)
		}
		if _, err := tx.Write(body[:n]); err != nil {
			return
		}
		body = body[n:]
	}
	tx.CloseWrite()
}
