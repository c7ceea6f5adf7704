package shm

// freeList is the third ring described by the transport: a ring of
// plain slot indices, shared by both directions, that both the host
// and the cell draw free payload buffers from and return them to.
// Unlike the two data rings, both sides push and pop it, so its
// cursors are guarded with a CAS loop rather than the single-writer
// assumption the SPSC data rings make.
type freeList struct {
	mem       []byte
	off       int64
	slotCount uint32
	mask      uint32
	doorbell  Doorbell
	// reserved holds back a fraction of slots for session-level traffic
	// so a large tunnel cannot starve Request/Response frames — the
	// policy decision recorded for the spec's open tunnel back-pressure
	// question.
	reserved uint32
}

func newFreeList(mem []byte, off int64, slotCount uint32, db Doorbell) *freeList {
	reserved := slotCount / 8
	if reserved < 1 {
		reserved = 1
	}
	return &freeList{
		mem:       mem,
		off:       off,
		slotCount: slotCount,
		mask:      slotCount - 1,
		doorbell:  db,
		reserved:  reserved,
	}
}

func (f *freeList) descOffset(index uint64) int64 {
	return f.off + ringControlFixedSize + int64(index&uint64(f.mask))*freeDescSize
}

// seq is the per-slot publish sequence number at the cell the given
// absolute cursor value currently addresses, stored 8 bytes into the
// 16-byte descriptor (after the 4-byte slot index, padded to an 8-byte
// boundary).
func (f *freeList) seqOffset(index uint64) int64 {
	return f.descOffset(index) + 8
}

// seedAll populates the free list with every slot index 0..slotCount-1
// and primes each descriptor's sequence number as if it had just been
// released by tail value i, the way RingBuffer.NewRingBuffer primes
// cell.sequence to its index before any Enqueue has run. That is what
// lets the very first claim() (consumer cursor 0) see the sequence
// value it expects (1) without a producer ever calling release().
// Called exactly once, by the segment's creator, before either side
// begins sending.
func (f *freeList) seedAll() {
	for i := uint64(0); i < uint64(f.slotCount); i++ {
		storeU32(f.mem, f.descOffset(i), uint32(i))
		storeU64(f.mem, f.seqOffset(i), i+1)
	}
	storeU64(f.mem, f.off+ringOffProducer, uint64(f.slotCount))
	storeU64(f.mem, f.off+ringOffConsumer, 0)
}

// claim pops one free slot index, reserving `reserved` slots for
// session-level traffic unless allowReserved is set (used by the
// session's own control-plane sends, never by tunnel writers). It
// follows the teacher's RingBuffer.Dequeue shape: the consumer cursor
// is CAS'd first, and the per-slot sequence number (not just the
// cursor delta) gates whether the cell this consumer just claimed has
// actually been published yet, since a concurrent release() may have
// won its cursor CAS but not yet written the slot index.
func (f *freeList) claim(allowReserved bool) (uint32, bool) {
	for {
		head := loadU64(f.mem, f.off+ringOffConsumer)
		tail := loadU64(f.mem, f.off+ringOffProducer)
		avail := tail - head
		if avail == 0 {
			return 0, false
		}
		if !allowReserved && avail <= uint64(f.reserved) {
			return 0, false
		}

		seq := loadU64(f.mem, f.seqOffset(head))
		diff := int64(seq) - int64(head+1)
		switch {
		case diff == 0:
			if casU64(f.mem, f.off+ringOffConsumer, head, head+1) {
				slotIndex := loadU32(f.mem, f.descOffset(head))
				// Free the cell for the lap that will next publish
				// here, i.e. when tail reaches head+slotCount.
				storeU64(f.mem, f.seqOffset(head), head+uint64(f.slotCount))
				return slotIndex, true
			}
			// lost the cursor race to another claimer; retry.
		case diff < 0:
			// Producer CAS'd tail but hasn't published this cell yet.
			return 0, false
		default:
			// Another claimer already took this cell; reload head.
		}
	}
}

// release returns a slot index to the free list. It follows the
// teacher's RingBuffer.Enqueue shape: the producer cursor is CAS'd
// first, and only the winner of that CAS writes the slot index and
// publishes it by storing the cell's sequence number — this is what
// makes concurrent release() calls from both the host's and the
// cell's Transport.Recv safe on the same mmap'd segment. Without the
// CAS-then-publish ordering, two concurrent releases racing on the
// same tail value can drop one slot forever and publish the other
// twice, letting two Send() calls claim and write into the same
// payload buffer at once.
func (f *freeList) release(slotIndex uint32) {
	for {
		tail := loadU64(f.mem, f.off+ringOffProducer)
		seq := loadU64(f.mem, f.seqOffset(tail))
		diff := int64(seq) - int64(tail)
		switch {
		case diff == 0:
			if casU64(f.mem, f.off+ringOffProducer, tail, tail+1) {
				storeU32(f.mem, f.descOffset(tail), slotIndex)
				storeU64(f.mem, f.seqOffset(tail), tail+1)
				if f.doorbell != nil {
					f.doorbell.Wake(f.mem, f.off+ringOffDoorbell)
				}
				return
			}
			// lost the cursor race to another releaser; retry.
		case diff < 0:
			// Free list is momentarily full (consumer hasn't caught
			// up); spin until a claim() frees this cell's next lap.
		default:
			// Another releaser already claimed this tail; reload.
		}
	}
}

func (f *freeList) waitAvailable(timeoutMs int) {
	if f.doorbell != nil {
		f.doorbell.Wait(f.mem, f.off+ringOffDoorbell, timeoutMs)
	}
}
