// Package host implements the host side of the cell fabric: the
// supervisor that spawns and reaps cell processes, the boot state
// machine the FD-passing boot gate blocks on, and the unified
// HostService dispatcher every cell's session shares.
package host

import (
	"strconv"
	"sync"
)

// BootPhase names a sub-state of Booting.
type BootPhase int

const (
	PhaseLoadingCells BootPhase = iota
	PhaseWaitingCellsReady
	PhaseBuildingRevision
)

func (p BootPhase) String() string {
	switch p {
	case PhaseLoadingCells:
		return "loading-cells"
	case PhaseWaitingCellsReady:
		return "waiting-cells-ready"
	case PhaseBuildingRevision:
		return "building-revision"
	default:
		return "unknown-phase"
	}
}

// FatalKind names why the boot state machine went terminally Fatal.
type FatalKind int

const (
	FatalMissingCell FatalKind = iota
	FatalCellStartupFailed
	FatalRevisionBuildFailed
)

func (k FatalKind) String() string {
	switch k {
	case FatalMissingCell:
		return "missing-cell"
	case FatalCellStartupFailed:
		return "cell-startup-failed"
	case FatalRevisionBuildFailed:
		return "revision-build-failed"
	default:
		return "unknown-fatal"
	}
}

// stateKind discriminates the three top-level states a BootState value
// can hold: Booting (with a BootPhase), Ready (with a generation), or
// Fatal (terminal, with a FatalKind).
type stateKind int

const (
	kindBooting stateKind = iota
	kindReady
	kindFatal
)

// BootState is one immutable snapshot of the boot state machine:
// Booting{phase} -> Ready{generation} | Fatal{kind}. Ready may be left
// only by entering a subsequent Ready with generation+1, after a
// successful rebuild; Fatal is terminal.
type BootState struct {
	kind       stateKind
	phase      BootPhase
	generation uint64
	fatal      FatalKind
}

func bootingState(phase BootPhase) BootState { return BootState{kind: kindBooting, phase: phase} }
func readyState(gen uint64) BootState        { return BootState{kind: kindReady, generation: gen} }
func fatalState(kind FatalKind) BootState    { return BootState{kind: kindFatal, fatal: kind} }

// IsBooting reports whether the state is Booting, and if so its phase.
func (s BootState) IsBooting() (BootPhase, bool) {
	return s.phase, s.kind == kindBooting
}

// IsReady reports whether the state is Ready, and if so its generation.
func (s BootState) IsReady() (uint64, bool) {
	return s.generation, s.kind == kindReady
}

// IsFatal reports whether the state is Fatal, and if so its kind.
func (s BootState) IsFatal() (FatalKind, bool) {
	return s.fatal, s.kind == kindFatal
}

func (s BootState) String() string {
	switch s.kind {
	case kindBooting:
		return "booting{" + s.phase.String() + "}"
	case kindReady:
		return "ready{" + strconv.FormatUint(s.generation, 10) + "}"
	case kindFatal:
		return "fatal{" + s.fatal.String() + "}"
	default:
		return "unknown"
	}
}

// BootStateManager is a broadcast-on-change primitive: one current
// BootState value, observable by reading it directly or blocking on
// AwaitChange until it differs from a previously observed value.
// Timeouts, if any, are the observer's responsibility via context.
type BootStateManager struct {
	mu      sync.Mutex
	current BootState
	waiters []chan struct{}
}

// NewBootStateManager starts the machine in Booting{LoadingCells}.
func NewBootStateManager() *BootStateManager {
	return &BootStateManager{current: bootingState(PhaseLoadingCells)}
}

// Current returns the current state.
func (m *BootStateManager) Current() BootState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// AdvancePhase moves a Booting state to a new phase. It is a no-op if
// the machine has already left Booting (Ready or Fatal is terminal
// with respect to phase advancement).
func (m *BootStateManager) AdvancePhase(phase BootPhase) {
	m.transition(func(s BootState) (BootState, bool) {
		if s.kind != kindBooting {
			return s, false
		}
		return bootingState(phase), true
	})
}

// MarkReady transitions to Ready{generation}. Valid from Booting (any
// phase, generation starts at 1) or from a prior Ready (generation
// must be exactly current+1, i.e. a successful rebuild).
func (m *BootStateManager) MarkReady(generation uint64) bool {
	ok := false
	m.transition(func(s BootState) (BootState, bool) {
		switch s.kind {
		case kindBooting:
			ok = true
			return readyState(generation), true
		case kindReady:
			if generation == s.generation+1 {
				ok = true
				return readyState(generation), true
			}
			return s, false
		default:
			return s, false
		}
	})
	return ok
}

// MarkFatal transitions to the terminal Fatal state. Valid only from a
// Booting phase: Ready and Fatal are both terminal with respect to it,
// per spec.md §3 ("Ready and Fatal are terminal") and §7 (once Ready,
// a cell crash is visible as terminal errors on that cell's session
// only, not as a boot-wide regression). Cells spawn lazily on first
// use, so a cell that fails to start long after the host reached Ready
// must not be able to flip serving traffic back to a hard 500 — only
// a failure during the initial boot sequence can call this.
func (m *BootStateManager) MarkFatal(kind FatalKind) {
	m.transition(func(s BootState) (BootState, bool) {
		if s.kind != kindBooting {
			return s, false
		}
		return fatalState(kind), true
	})
}

// transition applies fn to the current state under the lock, and if it
// reports a change, swaps in the new state and wakes every waiter.
func (m *BootStateManager) transition(fn func(BootState) (BootState, bool)) {
	m.mu.Lock()
	next, changed := fn(m.current)
	if !changed {
		m.mu.Unlock()
		return
	}
	m.current = next
	waiters := m.waiters
	m.waiters = nil
	m.mu.Unlock()
	for _, w := range waiters {
		close(w)
	}
}

// AwaitChange blocks until the state differs from prev, or stop fires.
// It returns the new state, or the unchanged prev state if stop fired
// first.
func (m *BootStateManager) AwaitChange(prev BootState, stop <-chan struct{}) BootState {
	for {
		m.mu.Lock()
		if m.current != prev {
			cur := m.current
			m.mu.Unlock()
			return cur
		}
		ch := make(chan struct{})
		m.waiters = append(m.waiters, ch)
		m.mu.Unlock()

		select {
		case <-ch:
			cur := m.Current()
			if cur != prev {
				return cur
			}
		case <-stop:
			return prev
		}
	}
}
