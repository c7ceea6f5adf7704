package host

import (
	"testing"
	"time"
)

func TestBootStateProgression(t *testing.T) {
	m := NewBootStateManager()
	if phase, booting := m.Current().IsBooting(); !booting || phase != PhaseLoadingCells {
		t.Fatalf("expected initial Booting{LoadingCells}, got %v", m.Current())
	}

	m.AdvancePhase(PhaseWaitingCellsReady)
	if phase, booting := m.Current().IsBooting(); !booting || phase != PhaseWaitingCellsReady {
		t.Fatalf("expected Booting{WaitingCellsReady}, got %v", m.Current())
	}

	if !m.MarkReady(1) {
		t.Fatal("MarkReady(1) from Booting should succeed")
	}
	if gen, ready := m.Current().IsReady(); !ready || gen != 1 {
		t.Fatalf("expected Ready{1}, got %v", m.Current())
	}

	if m.MarkReady(3) {
		t.Fatal("MarkReady(3) from Ready{1} should fail (must be exactly +1)")
	}
	if !m.MarkReady(2) {
		t.Fatal("MarkReady(2) from Ready{1} should succeed")
	}
}

func TestBootStateFatalIsTerminal(t *testing.T) {
	m := NewBootStateManager()
	m.MarkFatal(FatalMissingCell)
	if kind, fatal := m.Current().IsFatal(); !fatal || kind != FatalMissingCell {
		t.Fatalf("expected Fatal{MissingCell}, got %v", m.Current())
	}
	m.AdvancePhase(PhaseBuildingRevision)
	if _, fatal := m.Current().IsFatal(); !fatal {
		t.Fatal("Fatal must be terminal: AdvancePhase must not escape it")
	}
	if m.MarkReady(1) {
		t.Fatal("Fatal must be terminal: MarkReady must not escape it")
	}
}

func TestMarkFatalNoopOnceReady(t *testing.T) {
	m := NewBootStateManager()
	if !m.MarkReady(1) {
		t.Fatal("MarkReady(1) from Booting should succeed")
	}
	m.MarkFatal(FatalCellStartupFailed)
	gen, ready := m.Current().IsReady()
	if !ready || gen != 1 {
		t.Fatalf("MarkFatal after Ready must be a no-op, got %v", m.Current())
	}
}

func TestAwaitChangeWakesOnTransition(t *testing.T) {
	m := NewBootStateManager()
	prev := m.Current()
	stop := make(chan struct{})

	changed := make(chan BootState, 1)
	go func() { changed <- m.AwaitChange(prev, stop) }()

	time.Sleep(10 * time.Millisecond)
	m.MarkReady(1)

	select {
	case s := <-changed:
		if _, ok := s.IsReady(); !ok {
			t.Fatalf("expected Ready state, got %v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("AwaitChange did not wake on transition")
	}
}
