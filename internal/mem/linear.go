package mem

import "unsafe"

// LinearArena is a bump allocator over a single owned block. Allocations move
// a monotonic offset forward; individual Free is a documented no-op and the
// only way to reclaim space is Reset. Each allocation carries a small size
// header so AllocationSize can answer diagnostics queries.
type LinearArena struct {
	block     []byte
	offset    int
	live      int
	alignment int
}

// NewLinear creates a linear arena owning capacity bytes.
func NewLinear(capacity, alignment int) (*LinearArena, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if alignment == 0 {
		alignment = int(unsafe.Alignof(uintptr(0)))
	}
	if !isPowerOfTwo(alignment) {
		return nil, ErrInvalidCapacity
	}
	return &LinearArena{
		block:     make([]byte, capacity),
		alignment: alignment,
	}, nil
}

func (a *LinearArena) Allocate(size, align int) ([]byte, error) {
	align, err := checkRequest(size, align, a.alignment)
	if err != nil {
		return nil, err
	}
	base := uintptr(unsafe.Pointer(&a.block[0]))
	user := alignUp(base+uintptr(a.offset+allocHeaderSize), uintptr(align))
	userOff := int(user - base)
	end := userOff + size
	if end > len(a.block) {
		return nil, ErrOutOfMemory
	}
	writeAllocSize(a.block, userOff, size)
	a.offset = end
	a.live++
	return a.block[userOff:end:end], nil
}

// Free releases nothing on a linear arena. It still validates ownership so a
// misdirected release surfaces instead of silently succeeding elsewhere.
func (a *LinearArena) Free(b []byte) error {
	if _, ok := sliceOffset(a.block, b); !ok {
		return ErrInvalidRelease
	}
	return nil
}

// Reset rolls the offset back to zero, invalidating every prior allocation.
func (a *LinearArena) Reset() error {
	a.offset = 0
	a.live = 0
	return nil
}

// AllocationSize reports the size recorded in b's allocation header.
func (a *LinearArena) AllocationSize(b []byte) (int, error) {
	off, ok := sliceOffset(a.block, b)
	if !ok || off < allocHeaderSize {
		return 0, ErrInvalidRelease
	}
	return readAllocSize(a.block, off), nil
}

func (a *LinearArena) Kind() Kind    { return Linear }
func (a *LinearArena) Capacity() int { return len(a.block) }

func (a *LinearArena) Stats() Stats {
	return Stats{Used: a.offset, Capacity: len(a.block), LiveAllocations: a.live}
}
