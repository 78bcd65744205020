package mem

import (
	"encoding/binary"
	"unsafe"
)

// stackHeaderSize is the metadata in front of each stack allocation:
// previous offset, allocation size, and allocation sequence number, each a
// little-endian uint32. The sequence number enforces strict LIFO release.
const stackHeaderSize = 12

// Marker is a saved position in a stack arena. ResetTo rolls the arena back
// to it in O(1), invalidating everything allocated since the marker was taken.
type Marker struct {
	owner  *StackArena
	offset int
	seq    uint32
}

// StackArena extends the linear strategy with LIFO rollback: individual Free
// is allowed only for the most recent allocation, and markers allow bulk
// rollback of everything allocated after a saved point.
type StackArena struct {
	block     []byte
	offset    int
	seq       uint32 // sequence number of the most recent live allocation
	alignment int
}

// NewStack creates a stack arena owning capacity bytes.
func NewStack(capacity, alignment int) (*StackArena, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if alignment == 0 {
		alignment = int(unsafe.Alignof(uintptr(0)))
	}
	if !isPowerOfTwo(alignment) {
		return nil, ErrInvalidCapacity
	}
	return &StackArena{
		block:     make([]byte, capacity),
		alignment: alignment,
	}, nil
}

func (a *StackArena) Allocate(size, align int) ([]byte, error) {
	align, err := checkRequest(size, align, a.alignment)
	if err != nil {
		return nil, err
	}
	base := uintptr(unsafe.Pointer(&a.block[0]))
	user := alignUp(base+uintptr(a.offset+stackHeaderSize), uintptr(align))
	userOff := int(user - base)
	end := userOff + size
	if end > len(a.block) {
		return nil, ErrOutOfMemory
	}
	a.seq++
	hdr := a.block[userOff-stackHeaderSize : userOff]
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(a.offset))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(size))
	binary.LittleEndian.PutUint32(hdr[8:12], a.seq)
	a.offset = end
	return a.block[userOff:end:end], nil
}

// Free releases b if and only if it is the most recent live allocation.
func (a *StackArena) Free(b []byte) error {
	userOff, ok := sliceOffset(a.block, b)
	if !ok || userOff < stackHeaderSize {
		return ErrInvalidRelease
	}
	hdr := a.block[userOff-stackHeaderSize : userOff]
	if binary.LittleEndian.Uint32(hdr[8:12]) != a.seq {
		return ErrInvalidRelease
	}
	a.offset = int(binary.LittleEndian.Uint32(hdr[0:4]))
	a.seq--
	return nil
}

// Mark saves the current position for a later ResetTo.
func (a *StackArena) Mark() Marker {
	return Marker{owner: a, offset: a.offset, seq: a.seq}
}

// ResetTo rolls the arena back to m. A marker from another arena, or one
// invalidated by an earlier rollback, is rejected.
func (a *StackArena) ResetTo(m Marker) error {
	if m.owner != a || m.offset > a.offset || m.seq > a.seq {
		return ErrInvalidRelease
	}
	a.offset = m.offset
	a.seq = m.seq
	return nil
}

func (a *StackArena) Reset() error {
	a.offset = 0
	a.seq = 0
	return nil
}

// AllocationSize reports the size recorded in b's allocation header.
func (a *StackArena) AllocationSize(b []byte) (int, error) {
	off, ok := sliceOffset(a.block, b)
	if !ok || off < stackHeaderSize {
		return 0, ErrInvalidRelease
	}
	return int(binary.LittleEndian.Uint32(a.block[off-8 : off-4])), nil
}

func (a *StackArena) Kind() Kind    { return Stack }
func (a *StackArena) Capacity() int { return len(a.block) }

func (a *StackArena) Stats() Stats {
	return Stats{Used: a.offset, Capacity: len(a.block), LiveAllocations: int(a.seq)}
}

// base returns the address of the backing block, used by the debug wrapper to
// relate allocation records to marker offsets.
func (a *StackArena) base() uintptr {
	return uintptr(unsafe.Pointer(&a.block[0]))
}
