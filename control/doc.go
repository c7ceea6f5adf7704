// Package control
// Author: momentics <momentics@gmail.com>
//
// Hot-reload, runtime metrics, configuration control, and debug introspection layer.
// Part of the cell fabric's host-side control plane.
//
// Provides concurrent-safe state handling primitives including:
//   - Immutable snapshot config reads and atomic updates
//   - Runtime observers for hot-reload (e.g. a rebuilt revision's config)
//   - Metrics telemetry contracts
//   - State export, debug hooks, and probe registration — consulted on
//     SIGUSR1 (see host.ForwardSIGUSR1) to dump every cell's live state
//
// This package is cross-platform and build-tag-partitioned as needed.
package control
