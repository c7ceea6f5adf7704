package wire

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := []Frame{
		{Kind: KindRequest, ChannelID: 0, CorrelationID: 1, ServiceID: 7, MethodID: 3, Payload: []byte("hello")},
		{Kind: KindResponse, ChannelID: 0, CorrelationID: 1, Status: 0, Payload: nil},
		{Kind: KindTunnelChunk, ChannelID: 42, Payload: []byte{0x01, 0x02, 0x03}},
		{Kind: KindTunnelChunk, ChannelID: 42, Status: EOSFlag, Payload: nil},
		{Kind: KindTunnelClose, ChannelID: 42},
		{Kind: KindError, CorrelationID: 9, Status: 5},
	}

	for i, f := range cases {
		var buf bytes.Buffer
		if err := Encode(&buf, f); err != nil {
			t.Fatalf("case %d: encode: %v", i, err)
		}
		got, err := Decode(&buf)
		if err != nil {
			t.Fatalf("case %d: decode: %v", i, err)
		}
		if got.Kind != f.Kind || got.ChannelID != f.ChannelID || got.CorrelationID != f.CorrelationID ||
			got.ServiceID != f.ServiceID || got.MethodID != f.MethodID || got.Status != f.Status {
			t.Fatalf("case %d: header mismatch: got %+v want %+v", i, got, f)
		}
		if !bytes.Equal(got.Payload, f.Payload) {
			t.Fatalf("case %d: payload mismatch: got %v want %v", i, got.Payload, f.Payload)
		}
	}
}

func TestDecodeUnknownKindFails(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, Frame{Kind: KindError}); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	// Corrupt the kind byte (offset 4: 4-byte length prefix then kind).
	raw[4] = 0xFF
	if _, err := Decode(bytes.NewReader(raw)); err == nil {
		t.Fatal("expected decode error for unknown kind")
	}
}

func TestEncodeBytesRoundTrip(t *testing.T) {
	f := Frame{Kind: KindRequest, ServiceID: 1, MethodID: 2, Payload: []byte("x")}
	b, err := EncodeBytes(f)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeBytes(b)
	if err != nil {
		t.Fatal(err)
	}
	if got.ServiceID != f.ServiceID || got.MethodID != f.MethodID || string(got.Payload) != "x" {
		t.Fatalf("mismatch: %+v", got)
	}
}

func TestPayloadTooLargeRejected(t *testing.T) {
	f := Frame{Kind: KindRequest, Payload: make([]byte, MaxPayloadLen+1)}
	if _, err := EncodeBytes(f); err == nil {
		t.Fatal("expected error for oversized payload")
	}
}
