// Package codec implements the typed service bindings' wire
// serialization: a stable, self-describing binary schema that survives
// additive field evolution between host and cell, built on stdlib
// encoding/gob. No shared binary-framing library appears anywhere in
// the example corpus this module is grounded on, so gob — self
// describing, additive-field tolerant, and already in the standard
// library — is used directly rather than hand-rolling a schema
// compiler or introducing an unrelated dependency.
package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Encode serializes v into a byte slice using gob.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("codec: encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes payload into v, which must be a pointer.
func Decode(payload []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(v); err != nil {
		return fmt.Errorf("codec: decode %T: %w", v, err)
	}
	return nil
}
