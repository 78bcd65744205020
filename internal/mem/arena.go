// Package mem implements the arena allocators backing the runtime: a linear
// (bump) arena, a stack arena with rollback markers, a fixed-slot pool, and a
// first-fit free-list arena, plus a debug wrapper that adds guard bytes and
// live-allocation tracking. All arenas carve sub-ranges out of one owned byte
// block; no allocation from the same arena ever overlaps another live one.
//
// Arenas are not safe for concurrent use. Callers that allocate from multiple
// workers must give each worker a private arena or serialize allocation.
package mem

import (
	"encoding/binary"
	"unsafe"
)

// Kind selects the allocation strategy of an arena.
type Kind uint8

const (
	Linear Kind = iota // monotonic offset, reset-only release
	Stack              // linear plus LIFO rollback via markers
	Pool               // fixed slot size, free-list of slot indices
	FreeList           // first-fit search with coalescing on release
)

func (k Kind) String() string {
	switch k {
	case Linear:
		return "linear"
	case Stack:
		return "stack"
	case Pool:
		return "pool"
	case FreeList:
		return "freelist"
	}
	return "unknown"
}

// Stats is a point-in-time snapshot of an arena's usage.
type Stats struct {
	Used            int
	Capacity        int
	LiveAllocations int
}

// Arena is the capability interface shared by every allocator kind.
// Allocate returns a byte range of exactly size bytes whose first byte is
// aligned to align (0 means the arena's default alignment). Free releases a
// range previously returned by Allocate; linear arenas document it as a no-op.
// Reset releases everything at once and returns the arena to its initial state.
type Arena interface {
	Allocate(size, align int) ([]byte, error)
	Free(b []byte) error
	Reset() error
	Kind() Kind
	Capacity() int
	Stats() Stats
}

// allocHeaderSize is the per-allocation metadata written immediately in front
// of the user range by the linear and stack arenas: the allocation size as a
// little-endian uint32.
const allocHeaderSize = 4

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func alignUp(p, align uintptr) uintptr {
	mask := align - 1
	return (p + mask) &^ mask
}

// sliceOffset returns the byte offset of b's first element inside block, or
// false if b does not point into block.
func sliceOffset(block, b []byte) (int, bool) {
	if len(b) == 0 || len(block) == 0 {
		return 0, false
	}
	base := uintptr(unsafe.Pointer(&block[0]))
	p := uintptr(unsafe.Pointer(&b[0]))
	if p < base || p >= base+uintptr(len(block)) {
		return 0, false
	}
	return int(p - base), true
}

// checkRequest validates the size/alignment pair of an allocation request and
// resolves align 0 to the arena default.
func checkRequest(size, align, def int) (int, error) {
	if size <= 0 {
		return 0, ErrInvalidCapacity
	}
	if align == 0 {
		align = def
	}
	if !isPowerOfTwo(align) {
		return 0, ErrInvalidCapacity
	}
	return align, nil
}

func readAllocSize(block []byte, userOff int) int {
	return int(binary.LittleEndian.Uint32(block[userOff-allocHeaderSize : userOff]))
}

func writeAllocSize(block []byte, userOff, size int) {
	binary.LittleEndian.PutUint32(block[userOff-allocHeaderSize:userOff], uint32(size))
}
