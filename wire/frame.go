// Package wire implements the on-wire frame codec for the cell fabric's
// RPC bus: length-prefixed frames carrying a kind, a channel id, a
// correlation id, a service/method id pair, a status, and an opaque
// payload. The codec is pure: it never performs I/O itself, matching
// the frame codec in the cell fabric's component design.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Kind discriminates the purpose of a Frame.
type Kind uint8

const (
	KindRequest Kind = iota
	KindResponse
	KindNotification
	KindTunnelChunk
	KindTunnelClose
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "Request"
	case KindResponse:
		return "Response"
	case KindNotification:
		return "Notification"
	case KindTunnelChunk:
		return "TunnelChunk"
	case KindTunnelClose:
		return "TunnelClose"
	case KindError:
		return "Error"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// EOSFlag marks the final TunnelChunk of a half-closed tunnel. It is
// encoded in the high bit of the Status field, which is otherwise
// unused for TunnelChunk frames.
const EOSFlag uint16 = 0x8000

// headerSize is the fixed portion of the on-wire body, before payload:
// kind(1) + channel_id(4) + correlation_id(8) + service_id(2) +
// method_id(2) + status(2) + payload_len(4) = 23 bytes.
const headerSize = 1 + 4 + 8 + 2 + 2 + 2 + 4

// MaxPayloadLen bounds a single frame's payload so a malformed or
// hostile length prefix cannot force an unbounded allocation. Larger
// payloads must be chunked through a tunnel.
const MaxPayloadLen = 64 << 20 // 64 MiB hard ceiling; slot size is the real limit.

// Frame is the decoded representation of one wire frame.
type Frame struct {
	Kind          Kind
	ChannelID     uint32
	CorrelationID uint64
	ServiceID     uint16
	MethodID      uint16
	Status        uint16
	Payload       []byte
}

// EOS reports whether a TunnelChunk frame's EOSFlag bit is set.
func (f Frame) EOS() bool {
	return f.Kind == KindTunnelChunk && f.Status&EOSFlag != 0
}

// Encode writes the length-prefixed body for f into w.
func Encode(w io.Writer, f Frame) error {
	if len(f.Payload) > MaxPayloadLen {
		return fmt.Errorf("wire: payload length %d exceeds max %d", len(f.Payload), MaxPayloadLen)
	}
	body := make([]byte, headerSize+len(f.Payload))
	body[0] = byte(f.Kind)
	binary.LittleEndian.PutUint32(body[1:5], f.ChannelID)
	binary.LittleEndian.PutUint64(body[5:13], f.CorrelationID)
	binary.LittleEndian.PutUint16(body[13:15], f.ServiceID)
	binary.LittleEndian.PutUint16(body[15:17], f.MethodID)
	binary.LittleEndian.PutUint16(body[17:19], f.Status)
	binary.LittleEndian.PutUint32(body[19:23], uint32(len(f.Payload)))
	copy(body[headerSize:], f.Payload)

	var lenPrefix [4]byte
	binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("wire: write body: %w", err)
	}
	return nil
}

// Decode reads one length-prefixed frame from r.
func Decode(r io.Reader) (Frame, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return Frame{}, err
	}
	bodyLen := binary.LittleEndian.Uint32(lenPrefix[:])
	if bodyLen < headerSize {
		return Frame{}, fmt.Errorf("wire: body length %d shorter than header %d", bodyLen, headerSize)
	}
	if bodyLen > headerSize+MaxPayloadLen {
		return Frame{}, fmt.Errorf("wire: body length %d exceeds max frame size", bodyLen)
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}
	return DecodeBytes(body)
}

// DecodeBytes decodes a frame whose body (without the length prefix)
// has already been read into buf, e.g. from a shared-memory slot.
func DecodeBytes(buf []byte) (Frame, error) {
	if len(buf) < headerSize {
		return Frame{}, fmt.Errorf("wire: buffer too short for header: %d bytes", len(buf))
	}
	kind := Kind(buf[0])
	if kind > KindError {
		return Frame{}, fmt.Errorf("wire: unknown frame kind %d", buf[0])
	}
	f := Frame{
		Kind:          kind,
		ChannelID:     binary.LittleEndian.Uint32(buf[1:5]),
		CorrelationID: binary.LittleEndian.Uint64(buf[5:13]),
		ServiceID:     binary.LittleEndian.Uint16(buf[13:15]),
		MethodID:      binary.LittleEndian.Uint16(buf[15:17]),
		Status:        binary.LittleEndian.Uint16(buf[17:19]),
	}
	plen := binary.LittleEndian.Uint32(buf[19:23])
	if int(plen) != len(buf)-headerSize {
		return Frame{}, fmt.Errorf("wire: payload length mismatch: header says %d, have %d", plen, len(buf)-headerSize)
	}
	if plen > 0 {
		f.Payload = make([]byte, plen)
		copy(f.Payload, buf[headerSize:])
	}
	return f, nil
}

// EncodeBytes renders f into a plain byte slice without the length
// prefix, for callers writing directly into a fixed-size shared-memory
// slot (the SHM ring transport's send path).
func EncodeBytes(f Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayloadLen {
		return nil, fmt.Errorf("wire: payload length %d exceeds max %d", len(f.Payload), MaxPayloadLen)
	}
	body := make([]byte, headerSize+len(f.Payload))
	body[0] = byte(f.Kind)
	binary.LittleEndian.PutUint32(body[1:5], f.ChannelID)
	binary.LittleEndian.PutUint64(body[5:13], f.CorrelationID)
	binary.LittleEndian.PutUint16(body[13:15], f.ServiceID)
	binary.LittleEndian.PutUint16(body[15:17], f.MethodID)
	binary.LittleEndian.PutUint16(body[17:19], f.Status)
	binary.LittleEndian.PutUint32(body[19:23], uint32(len(f.Payload)))
	copy(body[headerSize:], f.Payload)
	return body, nil
}

// HeaderSize exposes the fixed header length so the SHM transport can
// size its slots and validate payload capacity up front.
func HeaderSize() int { return headerSize }
