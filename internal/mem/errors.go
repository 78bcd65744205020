package mem

import "errors"

// Allocator error taxonomy. Every arena operation returns one of these
// sentinels (possibly wrapped with context); none of them is fatal to the
// process, the caller decides whether to abort.
var (
	// ErrOutOfMemory is returned when the remaining space or free blocks of
	// an arena cannot satisfy an allocation request.
	ErrOutOfMemory = errors.New("mem: out of memory")

	// ErrInvalidCapacity is returned for a zero or negative capacity, a
	// non-positive allocation size, or an alignment that is not a power of two.
	ErrInvalidCapacity = errors.New("mem: invalid capacity")

	// ErrInvalidRelease is returned when freeing memory the arena does not
	// own, freeing out of LIFO order on a stack arena, double-freeing, or
	// rolling back to a stale marker.
	ErrInvalidRelease = errors.New("mem: invalid release")

	// ErrArenaInUse is returned when destroying an arena that still has live
	// allocations without forcing, or by a debug arena configured to fail
	// hard on leaks.
	ErrArenaInUse = errors.New("mem: arena in use")

	// ErrCorruptionDetected is returned by the debug wrapper when a guard
	// region around an allocation has been overwritten.
	ErrCorruptionDetected = errors.New("mem: corruption detected")

	// ErrSizeMismatch is returned by a pool arena when a request exceeds the
	// configured slot size or alignment.
	ErrSizeMismatch = errors.New("mem: size mismatch")
)
