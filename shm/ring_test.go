package shm

import (
	"sync"
	"testing"
)

func newTestSegmentMem(slotSize, slotCount, ringCapacity uint32) ([]byte, Layout) {
	layout := ComputeLayout(slotSize, slotCount, ringCapacity)
	mem := make([]byte, layout.TotalSize)
	WriteHeader(mem, layout)
	return mem, layout
}

func TestLayoutRoundTripHeader(t *testing.T) {
	mem, layout := newTestSegmentMem(256, 10, 6)
	got, err := ReadHeader(mem)
	if err != nil {
		t.Fatal(err)
	}
	if got.SlotSize != layout.SlotSize || got.SlotCount != layout.SlotCount || got.RingCapacity != layout.RingCapacity {
		t.Fatalf("layout mismatch: got %+v want %+v", got, layout)
	}
}

func TestRingPushPopFIFO(t *testing.T) {
	mem, layout := newTestSegmentMem(64, 8, 8)
	r := newRing(mem, layout.RingAOff, layout.RingCapacity, ringDescSize, nil)

	for i := uint32(0); i < layout.RingCapacity; i++ {
		if !r.push(descriptor{SlotIndex: i, Length: i + 1}) {
			t.Fatalf("push %d failed unexpectedly", i)
		}
	}
	if r.push(descriptor{SlotIndex: 99}) {
		t.Fatal("push into full ring should fail")
	}
	for i := uint32(0); i < layout.RingCapacity; i++ {
		d, ok := r.pop()
		if !ok {
			t.Fatalf("pop %d: expected item", i)
		}
		if d.SlotIndex != i || d.Length != i+1 {
			t.Fatalf("pop %d: got %+v, want slot=%d len=%d", i, d, i, i+1)
		}
	}
	if _, ok := r.pop(); ok {
		t.Fatal("pop from empty ring should fail")
	}
}

func TestFreeListSlotConservation(t *testing.T) {
	mem, layout := newTestSegmentMem(64, 16, 8)
	fl := newFreeList(mem, layout.FreeListOff, layout.SlotCount, nil)
	fl.seedAll()

	claimed := make([]uint32, 0, layout.SlotCount)
	for {
		idx, ok := fl.claim(true)
		if !ok {
			break
		}
		claimed = append(claimed, idx)
	}
	if uint32(len(claimed)) != layout.SlotCount {
		t.Fatalf("expected to claim all %d slots, got %d", layout.SlotCount, len(claimed))
	}
	if _, ok := fl.claim(true); ok {
		t.Fatal("claim should fail once exhausted")
	}
	for _, idx := range claimed {
		fl.release(idx)
	}
	reclaimed := 0
	for {
		if _, ok := fl.claim(true); !ok {
			break
		}
		reclaimed++
	}
	if uint32(reclaimed) != layout.SlotCount {
		t.Fatalf("expected to reclaim all %d slots, got %d", layout.SlotCount, reclaimed)
	}
}

// TestFreeListConcurrentRelease exercises the free list the way the
// host's and the cell's Transport.Recv actually use it: both sides
// call release() on the same mem concurrently. It asserts §3's "a free
// slot is owned by at most one party" and §8's slot conservation hold
// under a race — every claimed slot index comes back exactly once, and
// none is lost.
func TestFreeListConcurrentRelease(t *testing.T) {
	mem, layout := newTestSegmentMem(64, 256, 8)
	fl := newFreeList(mem, layout.FreeListOff, layout.SlotCount, nil)
	fl.seedAll()

	var claimed []uint32
	for {
		idx, ok := fl.claim(true)
		if !ok {
			break
		}
		claimed = append(claimed, idx)
	}
	if uint32(len(claimed)) != layout.SlotCount {
		t.Fatalf("expected to claim all %d slots, got %d", layout.SlotCount, len(claimed))
	}

	var wg sync.WaitGroup
	for _, idx := range claimed {
		wg.Add(1)
		go func(idx uint32) {
			defer wg.Done()
			fl.release(idx)
		}(idx)
	}
	wg.Wait()

	seen := make(map[uint32]int, len(claimed))
	for {
		idx, ok := fl.claim(true)
		if !ok {
			break
		}
		seen[idx]++
	}
	if len(seen) != len(claimed) {
		t.Fatalf("expected %d distinct reclaimed slots, got %d", len(claimed), len(seen))
	}
	for idx, n := range seen {
		if n != 1 {
			t.Fatalf("slot %d published %d times, want exactly 1 (double-claim hazard)", idx, n)
		}
	}
	if _, ok := fl.claim(true); ok {
		t.Fatal("claim should fail once every concurrently-released slot has been reclaimed")
	}
}

func TestFreeListReservesSessionSlots(t *testing.T) {
	mem, layout := newTestSegmentMem(64, 16, 8)
	fl := newFreeList(mem, layout.FreeListOff, layout.SlotCount, nil)
	fl.seedAll()

	// Drain everything except the reserved fraction using tunnel-style
	// (non-reserved-allowed) claims.
	drained := 0
	for {
		if _, ok := fl.claim(false); !ok {
			break
		}
		drained++
	}
	if uint32(drained) != layout.SlotCount-fl.reserved {
		t.Fatalf("expected to drain %d non-reserved slots, got %d", layout.SlotCount-fl.reserved, drained)
	}
	// Session-level traffic can still claim from the reserved pool.
	if _, ok := fl.claim(true); !ok {
		t.Fatal("session-level claim should still succeed from reserved pool")
	}
}
