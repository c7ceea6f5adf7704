// Package search implements the SearchService typed binding: indexing
// the site's rendered corpus for client-side search. Index format and
// ranking internals are out of scope for this fabric; only the RPC
// shape is implemented here. Corpora can be large, so the source
// documents stream to the cell over a tunnel rather than riding in the
// call payload.
package search

import (
	"context"

	"github.com/dodeca-dev/dodeca/apierr"
	"github.com/dodeca-dev/dodeca/rpc"
	"github.com/dodeca-dev/dodeca/services"
	"github.com/dodeca-dev/dodeca/services/codec"
)

const IndexMethodID uint16 = 1

// IndexRequest names the tunnel the documents will arrive on; the
// caller writes each document as a length-prefixed chunk sequence and
// closes the tunnel for write when the corpus is exhausted.
type IndexRequest struct {
	ChannelID uint32
	DocCount  int
}

type IndexResult struct {
	IndexBytes []byte
}

type Client struct{ s *rpc.Session }

func NewClient(s *rpc.Session) *Client { return &Client{s: s} }

// Index opens a tunnel, issues the call, and returns the Tx the caller
// should stream the document corpus into before closing it for write.
func (c *Client) Index(ctx context.Context, docCount int) (*rpc.Tx, func() (IndexResult, error)) {
	tun := c.s.OpenTunnel(64)
	req := IndexRequest{ChannelID: tun.Tx.ChannelID(), DocCount: docCount}
	resultCh := make(chan IndexResult, 1)
	errCh := make(chan error, 1)
	go func() {
		reqPayload, err := codec.Encode(req)
		if err != nil {
			errCh <- err
			return
		}
		respPayload, err := c.s.Call(ctx, services.SearchServiceID, IndexMethodID, reqPayload)
		if err != nil {
			errCh <- err
			return
		}
		var res IndexResult
		if err := codec.Decode(respPayload, &res); err != nil {
			errCh <- err
			return
		}
		resultCh <- res
	}()
	wait := func() (IndexResult, error) {
		select {
		case res := <-resultCh:
			return res, nil
		case err := <-errCh:
			return IndexResult{}, err
		}
	}
	return tun.Tx, wait
}

// Server is implemented by the search cell. It accepts the tunnel
// named in req.ChannelID, reads the document corpus from it to EOF,
// and returns the built index.
type Server interface {
	Index(ctx context.Context, req IndexRequest, corpus *rpc.Rx) (IndexResult, error)
}

type Handler struct {
	impl    Server
	session *rpc.Session
}

func NewHandler(impl Server, session *rpc.Session) *Handler {
	return &Handler{impl: impl, session: session}
}

func (h *Handler) HandleMethod(ctx context.Context, methodID uint16, payload []byte) ([]byte, error) {
	if methodID != IndexMethodID {
		return nil, apierr.ErrUnknownMethod
	}
	var req IndexRequest
	if err := codec.Decode(payload, &req); err != nil {
		return nil, err
	}
	tun := h.session.AcceptTunnel(req.ChannelID, 64)
	res, err := h.impl.Index(ctx, req, tun.Rx)
	if err != nil {
		return nil, err
	}
	return codec.Encode(res)
}
