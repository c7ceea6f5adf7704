// Package fonts implements the FontsService typed binding: subsetting
// a font file down to the glyphs a site actually uses. Subsetting
// internals are out of scope for this fabric; only the RPC shape is
// implemented here.
package fonts

import (
	"context"

	"github.com/dodeca-dev/dodeca/apierr"
	"github.com/dodeca-dev/dodeca/rpc"
	"github.com/dodeca-dev/dodeca/services"
	"github.com/dodeca-dev/dodeca/services/codec"
)

const SubsetMethodID uint16 = 1

type SubsetRequest struct {
	FontPath string
	Runes    []rune
}

type SubsetResult struct {
	Font []byte
}

type Client struct{ s *rpc.Session }

func NewClient(s *rpc.Session) *Client { return &Client{s: s} }

func (c *Client) Subset(ctx context.Context, req SubsetRequest) (SubsetResult, error) {
	reqPayload, err := codec.Encode(req)
	if err != nil {
		return SubsetResult{}, err
	}
	respPayload, err := c.s.Call(ctx, services.FontsServiceID, SubsetMethodID, reqPayload)
	if err != nil {
		return SubsetResult{}, err
	}
	var res SubsetResult
	if err := codec.Decode(respPayload, &res); err != nil {
		return SubsetResult{}, err
	}
	return res, nil
}

type Server interface {
	Subset(ctx context.Context, req SubsetRequest) (SubsetResult, error)
}

type Handler struct{ impl Server }

func NewHandler(impl Server) *Handler { return &Handler{impl: impl} }

func (h *Handler) HandleMethod(ctx context.Context, methodID uint16, payload []byte) ([]byte, error) {
	if methodID != SubsetMethodID {
		return nil, apierr.ErrUnknownMethod
	}
	var req SubsetRequest
	if err := codec.Decode(payload, &req); err != nil {
		return nil, err
	}
	res, err := h.impl.Subset(ctx, req)
	if err != nil {
		return nil, err
	}
	return codec.Encode(res)
}
