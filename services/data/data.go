// Package data implements the DataService typed binding: structured
// data-layer queries (front-matter indices, collection listings) made
// against the data cell. Query evaluation semantics are out of scope
// for this fabric; only the RPC shape is implemented here.
package data

import (
	"context"

	"github.com/dodeca-dev/dodeca/apierr"
	"github.com/dodeca-dev/dodeca/rpc"
	"github.com/dodeca-dev/dodeca/services"
	"github.com/dodeca-dev/dodeca/services/codec"
)

const QueryMethodID uint16 = 1

type QueryRequest struct {
	Collection string
	Filter     map[string]string
}

type QueryResult struct {
	Rows [][]byte
}

type Client struct{ s *rpc.Session }

func NewClient(s *rpc.Session) *Client { return &Client{s: s} }

func (c *Client) Query(ctx context.Context, req QueryRequest) (QueryResult, error) {
	reqPayload, err := codec.Encode(req)
	if err != nil {
		return QueryResult{}, err
	}
	respPayload, err := c.s.Call(ctx, services.DataServiceID, QueryMethodID, reqPayload)
	if err != nil {
		return QueryResult{}, err
	}
	var res QueryResult
	if err := codec.Decode(respPayload, &res); err != nil {
		return QueryResult{}, err
	}
	return res, nil
}

type Server interface {
	Query(ctx context.Context, req QueryRequest) (QueryResult, error)
}

type Handler struct{ impl Server }

func NewHandler(impl Server) *Handler { return &Handler{impl: impl} }

func (h *Handler) HandleMethod(ctx context.Context, methodID uint16, payload []byte) ([]byte, error) {
	if methodID != QueryMethodID {
		return nil, apierr.ErrUnknownMethod
	}
	var req QueryRequest
	if err := codec.Decode(payload, &req); err != nil {
		return nil, err
	}
	res, err := h.impl.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	return codec.Encode(res)
}
