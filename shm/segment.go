// Package shm implements the shared-memory ring-pair transport that
// carries RPC frames between the host and a cell process: a fixed
// header, two single-producer/single-consumer descriptor rings (one
// per direction), a free-slot ring shared by both directions, and a
// doorbell primitive used to wake a sleeping consumer.
//
// Layout and slot-descriptor arithmetic are grounded in the same
// mmap'd-ring-over-shared-memory idiom used for kernel/userspace ring
// buffers: a fixed header followed by control blocks and a flat array
// of fixed-size payload slots, addressed by byte offset into one
// contiguous mapping.
package shm

import (
	"encoding/binary"
	"fmt"
)

// Magic identifies a Dodeca SHM segment; Version gates layout changes.
const (
	Magic   uint32 = 0x44444341 // "DDCA"
	Version uint32 = 1
)

// headerSize is the fixed byte length of the segment header. It is
// rounded up to a multiple of 8 so everything that follows it begins
// on an 8-byte boundary, which atomic 64-bit cursor access requires on
// several architectures.
const headerSize = 64

// ringDescSize is the byte size of one data-ring descriptor: a 32-bit
// slot index and a 32-bit length.
const ringDescSize = 8

// freeDescSize is the byte size of one free-list descriptor: a 32-bit
// slot index (padded to 8 bytes) followed by a 64-bit per-slot publish
// sequence number, the way the teacher's RingBuffer cell carries a
// sequence alongside its data so a multi-producer Enqueue/Dequeue pair
// can tell "CAS'd the cursor" apart from "finished publishing".
const freeDescSize = 16

// ringControlFixedSize is the byte size of a ring control block's fixed
// portion: producer cursor (8) + consumer cursor (8) + doorbell word,
// padded to 8 bytes (8).
const ringControlFixedSize = 24

// Layout describes the computed byte offsets of every region within a
// segment, derived once from the segment's parameters so both the host
// (creator) and the cell (attacher) compute identical offsets.
type Layout struct {
	SlotSize     uint32
	SlotCount    uint32
	RingCapacity uint32

	RingAOff    int64 // host -> cell ring control block
	RingBOff    int64 // cell -> host ring control block
	FreeListOff int64
	SlotsOff    int64
	TotalSize   int64
}

// ComputeLayout derives a Layout from segment parameters. RingCapacity
// and SlotCount are rounded up to the next power of two, matching the
// ring buffer sizing convention used throughout the fabric's transport
// layer so index masking can replace modulo division.
func ComputeLayout(slotSize, slotCount, ringCapacity uint32) Layout {
	slotCount = nextPow2(slotCount)
	ringCapacity = nextPow2(ringCapacity)

	ringSize := int64(ringControlFixedSize) + int64(ringCapacity)*ringDescSize
	freeListSize := int64(ringControlFixedSize) + int64(slotCount)*freeDescSize

	l := Layout{
		SlotSize:     slotSize,
		SlotCount:    slotCount,
		RingCapacity: ringCapacity,
	}
	l.RingAOff = headerSize
	l.RingBOff = l.RingAOff + align8(ringSize)
	l.FreeListOff = l.RingBOff + align8(ringSize)
	l.SlotsOff = l.FreeListOff + align8(freeListSize)
	l.TotalSize = l.SlotsOff + int64(slotCount)*int64(slotSize)
	return l
}

func align8(n int64) int64 {
	return (n + 7) &^ 7
}

func nextPow2(n uint32) uint32 {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

// WriteHeader encodes the segment header (magic, version, parameters)
// into the first headerSize bytes of mem.
func WriteHeader(mem []byte, l Layout) {
	binary.LittleEndian.PutUint32(mem[0:4], Magic)
	binary.LittleEndian.PutUint32(mem[4:8], Version)
	binary.LittleEndian.PutUint32(mem[8:12], l.SlotSize)
	binary.LittleEndian.PutUint32(mem[12:16], l.SlotCount)
	binary.LittleEndian.PutUint32(mem[16:20], l.RingCapacity)
}

// ReadHeader parses and validates the header at the start of mem,
// returning the Layout both sides must agree on. A bad magic or an
// unsupported version is returned as a plain error; the stored
// parameters are not compared against any expected values.
func ReadHeader(mem []byte) (Layout, error) {
	if len(mem) < headerSize {
		return Layout{}, fmt.Errorf("shm: segment too small for header: %d bytes", len(mem))
	}
	magic := binary.LittleEndian.Uint32(mem[0:4])
	version := binary.LittleEndian.Uint32(mem[4:8])
	if magic != Magic {
		return Layout{}, fmt.Errorf("shm: bad magic %#x, want %#x", magic, Magic)
	}
	if version != Version {
		return Layout{}, fmt.Errorf("shm: unsupported version %d, want %d", version, Version)
	}
	slotSize := binary.LittleEndian.Uint32(mem[8:12])
	slotCount := binary.LittleEndian.Uint32(mem[12:16])
	ringCapacity := binary.LittleEndian.Uint32(mem[16:20])
	return ComputeLayout(slotSize, slotCount, ringCapacity), nil
}
