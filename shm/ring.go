package shm

// Ring is a single-producer/single-consumer descriptor ring living
// inside a shared-memory segment. Its cursor arithmetic is adapted
// from the lock-free MPMC ring used elsewhere in this codebase's
// lineage, simplified to SPSC: exactly one process ever produces into
// a given Ring and exactly one ever consumes from it, so the producer
// cursor is only ever advanced by Push and the consumer cursor only
// ever advanced by Pop.
type Ring struct {
	mem      []byte
	off      int64 // control block offset
	capacity uint32
	mask     uint32
	descSize int64
	doorbell Doorbell
}

// descriptor is the payload a Ring carries: a slot index into the
// segment's slot array, and the length of the data written there.
type descriptor struct {
	SlotIndex uint32
	Length    uint32
}

const (
	ringOffProducer = 0
	ringOffConsumer = 8
	ringOffDoorbell = 16
)

func newRing(mem []byte, off int64, capacity uint32, descSize int64, db Doorbell) *Ring {
	return &Ring{
		mem:      mem,
		off:      off,
		capacity: capacity,
		mask:     capacity - 1,
		descSize: descSize,
		doorbell: db,
	}
}

func (r *Ring) descOffset(index uint64) int64 {
	return r.off + ringControlFixedSize + int64(index&uint64(r.mask))*r.descSize
}

func (r *Ring) producer() uint64 { return loadU64(r.mem, r.off+ringOffProducer) }
func (r *Ring) consumer() uint64 { return loadU64(r.mem, r.off+ringOffConsumer) }

// push writes one descriptor for the sole producer of this ring.
// Returns false if the ring is full (consumer has not kept up).
func (r *Ring) push(d descriptor) bool {
	tail := loadU64(r.mem, r.off+ringOffProducer)
	head := loadU64(r.mem, r.off+ringOffConsumer)
	if tail-head >= uint64(r.capacity) {
		return false // full
	}
	do := r.descOffset(tail)
	storeU32(r.mem, do, d.SlotIndex)
	storeU32(r.mem, do+4, d.Length)
	// Release: publish the descriptor before advancing the cursor the
	// consumer polls.
	storeU64(r.mem, r.off+ringOffProducer, tail+1)
	r.ringDoorbell()
	return true
}

// pop reads one descriptor for the sole consumer of this ring.
// Returns false if the ring is empty.
func (r *Ring) pop() (descriptor, bool) {
	head := loadU64(r.mem, r.off+ringOffConsumer)
	tail := loadU64(r.mem, r.off+ringOffProducer)
	if head >= tail {
		return descriptor{}, false // empty
	}
	do := r.descOffset(head)
	d := descriptor{
		SlotIndex: loadU32(r.mem, do),
		Length:    loadU32(r.mem, do+4),
	}
	storeU64(r.mem, r.off+ringOffConsumer, head+1)
	return d, true
}

// ringDoorbell wakes a consumer that may be sleeping on this ring.
func (r *Ring) ringDoorbell() {
	if r.doorbell != nil {
		r.doorbell.Wake(r.mem, r.off+ringOffDoorbell)
	}
}

// waitNotEmpty blocks until the ring is observed non-empty or the
// doorbell wait times out (the caller decides whether a timeout is a
// terminal condition, e.g. during shutdown).
func (r *Ring) waitNotEmpty(timeoutMs int) {
	if r.doorbell == nil {
		return
	}
	r.doorbell.Wait(r.mem, r.off+ringOffDoorbell, timeoutMs)
}

// Len reports the number of unconsumed descriptors.
func (r *Ring) Len() int {
	return int(r.producer() - r.consumer())
}

// Cap reports the fixed capacity of the ring.
func (r *Ring) Cap() int { return int(r.capacity) }
