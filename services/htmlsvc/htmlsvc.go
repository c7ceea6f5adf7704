// Package htmlsvc implements the HTMLService typed binding: parsing
// and diffing HTML documents inside the DOM cell. The parsing and
// diffing algorithms themselves are out of scope for this fabric; only
// the RPC shape (bytes in, bytes out) is implemented here.
package htmlsvc

import (
	"context"

	"github.com/dodeca-dev/dodeca/apierr"
	"github.com/dodeca-dev/dodeca/rpc"
	"github.com/dodeca-dev/dodeca/services"
	"github.com/dodeca-dev/dodeca/services/codec"
)

const (
	ParseMethodID uint16 = 1
	DiffMethodID  uint16 = 2
)

type ParseRequest struct{ HTML []byte }
type ParseResult struct{ DocID string }

type DiffRequest struct {
	OldDocID string
	NewDocID string
}
type DiffResult struct{ Patch []byte }

type Client struct{ s *rpc.Session }

func NewClient(s *rpc.Session) *Client { return &Client{s: s} }

func (c *Client) Parse(ctx context.Context, req ParseRequest) (ParseResult, error) {
	reqPayload, err := codec.Encode(req)
	if err != nil {
		return ParseResult{}, err
	}
	respPayload, err := c.s.Call(ctx, services.HTMLServiceID, ParseMethodID, reqPayload)
	if err != nil {
		return ParseResult{}, err
	}
	var res ParseResult
	if err := codec.Decode(respPayload, &res); err != nil {
		return ParseResult{}, err
	}
	return res, nil
}

func (c *Client) Diff(ctx context.Context, req DiffRequest) (DiffResult, error) {
	reqPayload, err := codec.Encode(req)
	if err != nil {
		return DiffResult{}, err
	}
	respPayload, err := c.s.Call(ctx, services.HTMLServiceID, DiffMethodID, reqPayload)
	if err != nil {
		return DiffResult{}, err
	}
	var res DiffResult
	if err := codec.Decode(respPayload, &res); err != nil {
		return DiffResult{}, err
	}
	return res, nil
}

type Server interface {
	Parse(ctx context.Context, req ParseRequest) (ParseResult, error)
	Diff(ctx context.Context, req DiffRequest) (DiffResult, error)
}

type Handler struct{ impl Server }

func NewHandler(impl Server) *Handler { return &Handler{impl: impl} }

func (h *Handler) HandleMethod(ctx context.Context, methodID uint16, payload []byte) ([]byte, error) {
	switch methodID {
	case ParseMethodID:
		var req ParseRequest
		if err := codec.Decode(payload, &req); err != nil {
			return nil, err
		}
		res, err := h.impl.Parse(ctx, req)
		if err != nil {
			return nil, err
		}
		return codec.Encode(res)
	case DiffMethodID:
		var req DiffRequest
		if err := codec.Decode(payload, &req); err != nil {
			return nil, err
		}
		res, err := h.impl.Diff(ctx, req)
		if err != nil {
			return nil, err
		}
		return codec.Encode(res)
	default:
		return nil, apierr.ErrUnknownMethod
	}
}
