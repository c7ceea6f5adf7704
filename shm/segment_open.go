package shm

import "fmt"

// Role identifies which side of the ring pair a process plays. The
// host is always RoleA (odd channel-id allocator in the RPC layer);
// the cell is always RoleB (even channel-id allocator).
type Role byte

const (
	RoleA Role = 'A' // host: writes RingA (A->B), reads RingB (B->A)
	RoleB Role = 'B' // cell: writes RingB (B->A), reads RingA (A->B)
)

func (r Role) String() string { return string(r) }

// ParseRole parses the single-character role string from a ticket.
func ParseRole(s string) (Role, error) {
	switch s {
	case "A":
		return RoleA, nil
	case "B":
		return RoleB, nil
	default:
		return 0, fmt.Errorf("shm: invalid role %q, want \"A\" or \"B\"", s)
	}
}

// Segment is one attached shared-memory ring pair: the mapped memory,
// its computed layout, the two data rings, and the shared free list.
// Exactly two processes ever hold a Segment for the same underlying
// mapping: the host (RoleA) and one cell (RoleB).
type Segment struct {
	mem    []byte
	layout Layout
	fd     int
	role   Role
	path   string

	ringA *Ring // host -> cell
	ringB *Ring // cell -> host
	free  *freeList

	// send/recv return the rings this segment's role should use.
	send *Ring
	recv *Ring
}

// Create allocates a brand-new segment sized for the given parameters,
// seeds its free list, and returns it attached with RoleA (the host
// always creates; cells always attach to an existing segment).
func Create(name string, slotSize, slotCount, ringCapacity uint32) (*Segment, error) {
	layout := ComputeLayout(slotSize, slotCount, ringCapacity)
	fd, path, err := createAnonymous(name, layout.TotalSize)
	if err != nil {
		return nil, err
	}
	mem, err := mmapFd(fd, layout.TotalSize)
	if err != nil {
		return nil, err
	}
	WriteHeader(mem, layout)

	db := NewDoorbell()
	seg := &Segment{
		mem: mem, layout: layout, fd: fd, role: RoleA, path: path,
		ringA: newRing(mem, layout.RingAOff, layout.RingCapacity, ringDescSize, db),
		ringB: newRing(mem, layout.RingBOff, layout.RingCapacity, ringDescSize, db),
		free:  newFreeList(mem, layout.FreeListOff, layout.SlotCount, db),
	}
	seg.free.seedAll()
	seg.send, seg.recv = seg.ringA, seg.ringB
	return seg, nil
}

// Attach maps an existing segment located at path, takes its
// parameters from the segment header (rejecting a bad magic or an
// unsupported version), and returns a Segment with rings assigned for
// the given role.
func Attach(path string, role Role) (*Segment, error) {
	fd, err := openByPath(path)
	if err != nil {
		return nil, err
	}
	// A first small mapping to read the header and learn TotalSize,
	// then a second full mapping — mirrors the two-step discovery a
	// reader must do for any self-describing shared segment.
	probe, err := mmapFd(fd, headerSize)
	if err != nil {
		return nil, err
	}
	layout, err := ReadHeader(probe)
	munmap(probe)
	if err != nil {
		return nil, err
	}
	mem, err := mmapFd(fd, layout.TotalSize)
	if err != nil {
		return nil, err
	}

	db := NewDoorbell()
	seg := &Segment{
		mem: mem, layout: layout, fd: fd, role: role, path: path,
		ringA: newRing(mem, layout.RingAOff, layout.RingCapacity, ringDescSize, db),
		ringB: newRing(mem, layout.RingBOff, layout.RingCapacity, ringDescSize, db),
		free:  newFreeList(mem, layout.FreeListOff, layout.SlotCount, db),
	}
	if role == RoleA {
		seg.send, seg.recv = seg.ringA, seg.ringB
	} else {
		seg.send, seg.recv = seg.ringB, seg.ringA
	}
	return seg, nil
}

// Close unmaps the segment. It does not remove the backing file/fd
// name; the creator (host) owns that lifecycle and removes it once
// both sides have detached.
func (s *Segment) Close() error {
	return munmap(s.mem)
}

// Path returns the backing path used for Attach by the peer side.
func (s *Segment) Path() string { return s.path }

// Layout returns the segment's computed layout.
func (s *Segment) Layout() Layout { return s.layout }

func (s *Segment) slotBuf(index uint32) []byte {
	off := s.layout.SlotsOff + int64(index)*int64(s.layout.SlotSize)
	return s.mem[off : off+int64(s.layout.SlotSize)]
}
