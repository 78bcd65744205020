package mem

import (
	"encoding/binary"
	"unsafe"
)

// poolNone marks the end of the pool's intrusive free list.
const poolNone = ^uint32(0)

// PoolArena hands out fixed-size slots. The free list is threaded through the
// slots themselves: each free slot stores the index of the next free slot in
// its first four bytes, so the arena needs no side table beyond a liveness
// bitset used to reject double frees.
type PoolArena struct {
	block     []byte
	baseOff   int // offset of the first aligned slot within block
	slotSize  int
	stride    int
	slotCount int
	freeHead  uint32
	freeSlot  []bool
	live      int
	alignment int
}

// NewPool creates a pool arena with slotCount slots of slotSize bytes each.
func NewPool(slotCount, slotSize, alignment int) (*PoolArena, error) {
	if slotCount <= 0 || slotSize <= 0 {
		return nil, ErrInvalidCapacity
	}
	if alignment == 0 {
		alignment = int(unsafe.Alignof(uintptr(0)))
	}
	if !isPowerOfTwo(alignment) {
		return nil, ErrInvalidCapacity
	}
	// A free slot must be able to hold the next-index link.
	minSlot := slotSize
	if minSlot < 4 {
		minSlot = 4
	}
	stride := int(alignUp(uintptr(minSlot), uintptr(alignment)))
	block := make([]byte, slotCount*stride+alignment-1)
	base := uintptr(unsafe.Pointer(&block[0]))
	baseOff := int(alignUp(base, uintptr(alignment)) - base)

	a := &PoolArena{
		block:     block,
		baseOff:   baseOff,
		slotSize:  slotSize,
		stride:    stride,
		slotCount: slotCount,
		freeSlot:  make([]bool, slotCount),
		alignment: alignment,
	}
	a.seedFreeList()
	return a, nil
}

// seedFreeList threads the next-index links through all slots, lowest first.
func (a *PoolArena) seedFreeList() {
	a.freeHead = poolNone
	for i := a.slotCount - 1; i >= 0; i-- {
		binary.LittleEndian.PutUint32(a.slot(i)[:4], a.freeHead)
		a.freeHead = uint32(i)
		a.freeSlot[i] = true
	}
	a.live = 0
}

func (a *PoolArena) slot(i int) []byte {
	off := a.baseOff + i*a.stride
	return a.block[off : off+a.stride]
}

func (a *PoolArena) Allocate(size, align int) ([]byte, error) {
	align, err := checkRequest(size, align, a.alignment)
	if err != nil {
		return nil, err
	}
	if size > a.slotSize || align > a.alignment {
		return nil, ErrSizeMismatch
	}
	if a.freeHead == poolNone {
		return nil, ErrOutOfMemory
	}
	i := int(a.freeHead)
	a.freeHead = binary.LittleEndian.Uint32(a.slot(i)[:4])
	a.freeSlot[i] = false
	a.live++
	s := a.slot(i)
	return s[:size:a.slotSize], nil
}

// Free pushes b's slot back on the free list. The range must be slot-aligned
// within this arena and not already free.
func (a *PoolArena) Free(b []byte) error {
	off, ok := sliceOffset(a.block, b)
	if !ok {
		return ErrInvalidRelease
	}
	off -= a.baseOff
	if off < 0 || off%a.stride != 0 {
		return ErrInvalidRelease
	}
	i := off / a.stride
	if i >= a.slotCount || a.freeSlot[i] {
		return ErrInvalidRelease
	}
	binary.LittleEndian.PutUint32(a.slot(i)[:4], a.freeHead)
	a.freeHead = uint32(i)
	a.freeSlot[i] = true
	a.live--
	return nil
}

func (a *PoolArena) Reset() error {
	a.seedFreeList()
	return nil
}

func (a *PoolArena) Kind() Kind    { return Pool }
func (a *PoolArena) Capacity() int { return a.slotCount * a.stride }

func (a *PoolArena) Stats() Stats {
	return Stats{
		Used:            a.live * a.stride,
		Capacity:        a.slotCount * a.stride,
		LiveAllocations: a.live,
	}
}
