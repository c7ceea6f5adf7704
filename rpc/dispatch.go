package rpc

import (
	"context"

	"github.com/dodeca-dev/dodeca/apierr"
)

// ServiceHandler is the type-erased adapter every typed service server
// binding generates: given a method-id and a request payload, it
// returns a response payload or an error. Keeping dispatch type-erased
// at this boundary avoids one monomorphic dispatcher copy per service,
// matching the fabric's multi-service dispatcher design.
type ServiceHandler interface {
	HandleMethod(ctx context.Context, methodID uint16, payload []byte) ([]byte, error)
}

// ServiceHandlerFunc adapts a plain function to ServiceHandler for
// services with a single method or ad-hoc test handlers.
type ServiceHandlerFunc func(ctx context.Context, methodID uint16, payload []byte) ([]byte, error)

func (f ServiceHandlerFunc) HandleMethod(ctx context.Context, methodID uint16, payload []byte) ([]byte, error) {
	return f(ctx, methodID, payload)
}

// Dispatcher maps a service-id to the handler that implements it.
type Dispatcher struct {
	services map[uint16]ServiceHandler
}

// NewDispatcher returns an empty dispatcher; services are registered
// with Register before the session's demux loop starts.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{services: make(map[uint16]ServiceHandler)}
}

// Register installs handler as the implementation of serviceID. It is
// not safe to call concurrently with dispatch; callers register every
// service before starting the session's Run loop.
func (d *Dispatcher) Register(serviceID uint16, handler ServiceHandler) {
	d.services[serviceID] = handler
}

// Dispatch invokes the registered handler for serviceID, or returns
// apierr.ErrUnknownService if none is registered.
func (d *Dispatcher) Dispatch(ctx context.Context, serviceID, methodID uint16, payload []byte) ([]byte, error) {
	h, ok := d.services[serviceID]
	if !ok {
		return nil, apierr.ErrUnknownService
	}
	return h.HandleMethod(ctx, methodID, payload)
}
