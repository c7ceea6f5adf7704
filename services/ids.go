// Package services declares the stable (service-id, method-id)
// numbering every typed binding is generated against, and hosts the
// per-service client/server packages in its subdirectories.
package services

import "github.com/dodeca-dev/dodeca/rpc"

// Service ids. 0 is reserved for the mandatory CellLifecycle service
// (rpc.CellLifecycleServiceID); the rest are assigned in declaration
// order, matching the roster enumerated for the fabric's typed service
// bindings.
const (
	CellLifecycleServiceID        = rpc.CellLifecycleServiceID
	HostServiceID          uint16 = 1
	TemplateServiceID      uint16 = 2
	HTMLServiceID          uint16 = 3
	DataServiceID          uint16 = 4
	FontsServiceID         uint16 = 5
	ImageServiceID         uint16 = 6
	SASSServiceID          uint16 = 7
	SearchServiceID        uint16 = 8
	TcpTunnelServiceID     uint16 = 9
	DevtoolsServiceID      uint16 = 10
)
