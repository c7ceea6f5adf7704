// Package template implements the TemplateService typed binding: the
// host calls into the template-engine cell to render one page. The
// template language and evaluation semantics are out of scope for this
// fabric; only the RPC shape is implemented here.
package template

import (
	"context"

	"github.com/dodeca-dev/dodeca/apierr"
	"github.com/dodeca-dev/dodeca/rpc"
	"github.com/dodeca-dev/dodeca/services"
	"github.com/dodeca-dev/dodeca/services/codec"
)

const RenderMethodID uint16 = 1

type RenderRequest struct {
	TemplatePath string
	Context      map[string]string
}

type RenderResult struct {
	HTML []byte
}

// Client is the host-side typed binding.
type Client struct{ s *rpc.Session }

func NewClient(s *rpc.Session) *Client { return &Client{s: s} }

func (c *Client) Render(ctx context.Context, req RenderRequest) (RenderResult, error) {
	reqPayload, err := codec.Encode(req)
	if err != nil {
		return RenderResult{}, err
	}
	respPayload, err := c.s.Call(ctx, services.TemplateServiceID, RenderMethodID, reqPayload)
	if err != nil {
		return RenderResult{}, err
	}
	var res RenderResult
	if err := codec.Decode(respPayload, &res); err != nil {
		return RenderResult{}, err
	}
	return res, nil
}

// Server is implemented by the template-engine cell.
type Server interface {
	Render(ctx context.Context, req RenderRequest) (RenderResult, error)
}

type Handler struct{ impl Server }

func NewHandler(impl Server) *Handler { return &Handler{impl: impl} }

func (h *Handler) HandleMethod(ctx context.Context, methodID uint16, payload []byte) ([]byte, error) {
	if methodID != RenderMethodID {
		return nil, apierr.ErrUnknownMethod
	}
	var req RenderRequest
	if err := codec.Decode(payload, &req); err != nil {
		return nil, err
	}
	res, err := h.impl.Render(ctx, req)
	if err != nil {
		return nil, err
	}
	return codec.Encode(res)
}
