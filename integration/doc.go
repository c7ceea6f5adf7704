// Package integration holds end-to-end tests against the concrete
// scenarios of spec.md §8 (Testable Properties): behaviour that spans
// more than one component — a session pair, a tunnel, a boot gate, a
// supervisor — rather than one package's unit. Fast scenarios run over
// shm.LoopbackPair or an in-process real SHM segment; scenarios that
// inherently need a second OS process (cell crash, SIGUSR1 fan-out)
// are gated behind the dodeca_e2e build tag and fork/exec real cell
// binaries built from this module's cmd/ packages.
package integration
