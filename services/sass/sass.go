// Package sass implements the SASSService typed binding: compiling a
// stylesheet entry point down to CSS. Compiler internals are out of
// scope for this fabric; only the RPC shape is implemented here.
package sass

import (
	"context"

	"github.com/dodeca-dev/dodeca/apierr"
	"github.com/dodeca-dev/dodeca/rpc"
	"github.com/dodeca-dev/dodeca/services"
	"github.com/dodeca-dev/dodeca/services/codec"
)

const CompileMethodID uint16 = 1

type CompileRequest struct {
	EntryPath string
	Minify    bool
}

type CompileResult struct {
	CSS    []byte
	SrcMap []byte
}

type Client struct{ s *rpc.Session }

func NewClient(s *rpc.Session) *Client { return &Client{s: s} }

func (c *Client) Compile(ctx context.Context, req CompileRequest) (CompileResult, error) {
	reqPayload, err := codec.Encode(req)
	if err != nil {
		return CompileResult{}, err
	}
	respPayload, err := c.s.Call(ctx, services.SASSServiceID, CompileMethodID, reqPayload)
	if err != nil {
		return CompileResult{}, err
	}
	var res CompileResult
	if err := codec.Decode(respPayload, &res); err != nil {
		return CompileResult{}, err
	}
	return res, nil
}

type Server interface {
	Compile(ctx context.Context, req CompileRequest) (CompileResult, error)
}

type Handler struct{ impl Server }

func NewHandler(impl Server) *Handler { return &Handler{impl: impl} }

func (h *Handler) HandleMethod(ctx context.Context, methodID uint16, payload []byte) ([]byte, error) {
	if methodID != CompileMethodID {
		return nil, apierr.ErrUnknownMethod
	}
	var req CompileRequest
	if err := codec.Decode(payload, &req); err != nil {
		return nil, err
	}
	res, err := h.impl.Compile(ctx, req)
	if err != nil {
		return nil, err
	}
	return codec.Encode(res)
}
