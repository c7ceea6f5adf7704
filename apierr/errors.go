// Package apierr defines the error taxonomy shared by every layer of the
// cell fabric: transport, codec, dispatch, application, and lifecycle
// errors as described by the fabric's error handling design.
package apierr

import "fmt"

// Sentinel errors returned by the transport, session, and dispatcher.
var (
	// ErrPeerGone is returned by every in-flight and future call on a
	// session once its transport has observed a terminal failure.
	ErrPeerGone = fmt.Errorf("dodeca: peer gone")

	// ErrPayloadTooLarge is returned when a caller attempts to send a
	// frame whose payload exceeds the segment's slot size. The caller
	// must open a tunnel and chunk the payload instead.
	ErrPayloadTooLarge = fmt.Errorf("dodeca: payload exceeds slot size, use a tunnel")

	// ErrMalformedFrame is returned when a frame fails to decode; the
	// session that observes this must terminate.
	ErrMalformedFrame = fmt.Errorf("dodeca: malformed frame")

	// ErrUnknownService is returned when a Request names a service-id
	// the dispatcher has no handler for.
	ErrUnknownService = fmt.Errorf("dodeca: unknown service")

	// ErrUnknownMethod is returned when a Request names a method-id the
	// matched service handler does not implement.
	ErrUnknownMethod = fmt.Errorf("dodeca: unknown method")

	// ErrCellCrashed is surfaced when a cell's child process exits
	// unexpectedly while calls are outstanding.
	ErrCellCrashed = fmt.Errorf("dodeca: cell crashed")

	// ErrBootFatal is returned to any handler observing the boot state
	// machine in its terminal Fatal state.
	ErrBootFatal = fmt.Errorf("dodeca: boot reached fatal state")

	// ErrReadyTimeout is returned by the host supervisor when a cell
	// fails to send its ready handshake within the configured deadline.
	ErrReadyTimeout = fmt.Errorf("dodeca: cell ready timeout")

	// ErrTunnelClosed names a tunnel torn down with TunnelClose. Rx.Read
	// does not return it: it reports both EOS and TunnelClose as io.EOF.
	ErrTunnelClosed = fmt.Errorf("dodeca: tunnel closed")

	// ErrSegmentIncompatible is returned when a cell's ticket parameters
	// do not match the segment header it attaches to.
	ErrSegmentIncompatible = fmt.Errorf("dodeca: segment parameters incompatible")
)

// Code enumerates the coarse error classification used when a Status is
// carried on an Error frame, matching the taxonomy in the error design.
type Code uint16

const (
	CodeOK Code = iota
	CodeUnknownService
	CodeUnknownMethod
	CodePayloadTooLarge
	CodeMalformedFrame
	CodePeerGone
	CodeApplication
	CodeInternal
)

// Error is a structured error carrying a Code, a human message, and
// optional diagnostic context, mirroring the teacher's api.Error shape.
type Error struct {
	Code    Code
	Message string
	Context map[string]any
}

func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// New creates a structured Error with an empty context map.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Context: make(map[string]any)}
}

// WithContext attaches a diagnostic key/value and returns the receiver
// for chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
