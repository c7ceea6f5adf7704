// Package image implements the ImageService typed binding: transcoding
// and resizing a source image into the derivative formats a page
// needs. Codec internals are out of scope for this fabric; only the
// RPC shape is implemented here.
package image

import (
	"context"

	"github.com/dodeca-dev/dodeca/apierr"
	"github.com/dodeca-dev/dodeca/rpc"
	"github.com/dodeca-dev/dodeca/services"
	"github.com/dodeca-dev/dodeca/services/codec"
)

const TranscodeMethodID uint16 = 1

type TranscodeRequest struct {
	SourcePath string
	TargetKind string
	MaxWidth   int
	MaxHeight  int
	ChannelID  uint32
}

type TranscodeResult struct {
	ContentType string
	Length      int64
}

type Client struct{ s *rpc.Session }

func NewClient(s *rpc.Session) *Client { return &Client{s: s} }

// Transcode opens a tunnel the cell streams the output bytes back on,
// since transcoded images can exceed the slot size; the caller reads
// them from the returned Rx.
func (c *Client) Transcode(ctx context.Context, req TranscodeRequest) (*rpc.Rx, TranscodeResult, error) {
	tun := c.s.OpenTunnel(64)
	req.ChannelID = tun.Tx.ChannelID()
	reqPayload, err := codec.Encode(req)
	if err != nil {
		return nil, TranscodeResult{}, err
	}
	respPayload, err := c.s.Call(ctx, services.ImageServiceID, TranscodeMethodID, reqPayload)
	if err != nil {
		return nil, TranscodeResult{}, err
	}
	var res TranscodeResult
	if err := codec.Decode(respPayload, &res); err != nil {
		return nil, TranscodeResult{}, err
	}
	return tun.Rx, res, nil
}

// Server is implemented by the image cell. It returns the transcoded
// bytes; Handler streams them onto the tunnel whose channel id is
// carried in req.ChannelID.
type Server interface {
	Transcode(ctx context.Context, req TranscodeRequest) (TranscodeResult, []byte, error)
}

type Handler struct {
	impl    Server
	session *rpc.Session
}

func NewHandler(impl Server, session *rpc.Session) *Handler {
	return &Handler{impl: impl, session: session}
}

func (h *Handler) HandleMethod(ctx context.Context, methodID uint16, payload []byte) ([]byte, error) {
	if methodID != TranscodeMethodID {
		return nil, apierr.ErrUnknownMethod
	}
	var req TranscodeRequest
	if err := codec.Decode(payload, &req); err != nil {
		return nil, err
	}
	res, body, err := h.impl.Transcode(ctx, req)
	if err != nil {
		return nil, err
	}
	tun := h.session.AcceptTunnel(req.ChannelID, 64)
	go streamBody(tun.Tx, body)
	return codec.Encode(res)
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
