package mem

import (
	"fmt"
	"unsafe"

	"go.uber.org/zap"
)

const (
	// guardSize is the width of the guard region written on each side of a
	// debug allocation. Fixed at 8 bytes across builds.
	guardSize = 8
	// guardByte is the canary pattern filling guard regions.
	guardByte = 0xCA
)

// AllocationRecord is the diagnostic metadata the debug wrapper keeps for
// every allocation it has handed out.
type AllocationRecord struct {
	Addr  uintptr
	Size  int
	Align int
	Tag   string
	Live  bool

	raw     []byte // the padded range obtained from the wrapped arena
	userOff int    // offset of the user range within raw
}

// DebugArena decorates any Arena with guard bytes, live-allocation tracking,
// and leak reporting. The address handed to the caller differs from the
// wrapped arena's only by the accounted guard padding. When debug mode is off
// the registry hands out the raw arena instead, so the disabled path costs
// nothing.
type DebugArena struct {
	inner    Arena
	log      *zap.Logger
	failHard bool
	records  map[uintptr]*AllocationRecord
	order    []*AllocationRecord
}

// NewDebug wraps inner. When failHard is set, Close reports leaks as an
// ErrArenaInUse error instead of only logging them.
func NewDebug(inner Arena, log *zap.Logger, failHard bool) *DebugArena {
	if log == nil {
		log = zap.NewNop()
	}
	return &DebugArena{
		inner:    inner,
		log:      log,
		failHard: failHard,
		records:  make(map[uintptr]*AllocationRecord, 64),
	}
}

func (d *DebugArena) Allocate(size, align int) ([]byte, error) {
	return d.AllocateTagged(size, align, "")
}

// AllocateTagged allocates like Allocate and attaches a source tag to the
// allocation record, so leak reports can name the call site.
func (d *DebugArena) AllocateTagged(size, align int, tag string) ([]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidCapacity
	}
	effAlign := align
	if effAlign <= 0 {
		effAlign = guardSize
	}
	if !isPowerOfTwo(effAlign) {
		return nil, ErrInvalidCapacity
	}
	extra := 0
	if effAlign > guardSize {
		extra = effAlign - 1
	}
	raw, err := d.inner.Allocate(size+2*guardSize+extra, effAlign)
	if err != nil {
		return nil, err
	}
	base := uintptr(unsafe.Pointer(&raw[0]))
	userAddr := alignUp(base+guardSize, uintptr(effAlign))
	userOff := int(userAddr - base)
	for i := userOff - guardSize; i < userOff; i++ {
		raw[i] = guardByte
	}
	for i := userOff + size; i < userOff+size+guardSize; i++ {
		raw[i] = guardByte
	}
	rec := &AllocationRecord{
		Addr:    userAddr,
		Size:    size,
		Align:   align,
		Tag:     tag,
		Live:    true,
		raw:     raw,
		userOff: userOff,
	}
	d.records[userAddr] = rec
	d.order = append(d.order, rec)
	return raw[userOff : userOff+size : userOff+size], nil
}

func (d *DebugArena) Free(b []byte) error {
	if len(b) == 0 {
		return ErrInvalidRelease
	}
	addr := uintptr(unsafe.Pointer(&b[0]))
	rec, ok := d.records[addr]
	if !ok || !rec.Live {
		return ErrInvalidRelease
	}
	guardErr := d.checkGuards(rec)
	// The allocation stays tracked until the wrapped arena accepts the free,
	// so a rejected free still shows up in leak reports and stats.
	if err := d.inner.Free(rec.raw); err != nil {
		return err
	}
	rec.Live = false
	delete(d.records, addr)
	return guardErr
}

// checkGuards verifies both guard regions of rec and reports the first
// stomped byte it finds.
func (d *DebugArena) checkGuards(rec *AllocationRecord) error {
	front := rec.raw[rec.userOff-guardSize : rec.userOff]
	back := rec.raw[rec.userOff+rec.Size : rec.userOff+rec.Size+guardSize]
	for i, v := range front {
		if v != guardByte {
			return d.corruption(rec, "front", rec.Addr-uintptr(guardSize-i))
		}
	}
	for i, v := range back {
		if v != guardByte {
			return d.corruption(rec, "back", rec.Addr+uintptr(rec.Size+i))
		}
	}
	return nil
}

func (d *DebugArena) corruption(rec *AllocationRecord, side string, at uintptr) error {
	d.log.Error("guard bytes overwritten",
		zap.String("side", side),
		zap.Uintptr("at", at),
		zap.Uintptr("allocation", rec.Addr),
		zap.Int("size", rec.Size),
		zap.String("tag", rec.Tag),
	)
	return fmt.Errorf("%w: %s guard of allocation %#x (size %d, tag %q) stomped at %#x",
		ErrCorruptionDetected, side, rec.Addr, rec.Size, rec.Tag, at)
}

// Reset verifies the guards of every live allocation, then resets the wrapped
// arena. A corruption finding is returned but does not prevent the reset.
func (d *DebugArena) Reset() error {
	err := d.verifyLive()
	d.records = make(map[uintptr]*AllocationRecord, 64)
	d.order = d.order[:0]
	if rerr := d.inner.Reset(); rerr != nil {
		return rerr
	}
	return err
}

func (d *DebugArena) verifyLive() error {
	var first error
	for _, rec := range d.order {
		if !rec.Live {
			continue
		}
		if err := d.checkGuards(rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Mark delegates to the wrapped stack arena.
func (d *DebugArena) Mark() (Marker, error) {
	s, ok := d.inner.(*StackArena)
	if !ok {
		return Marker{}, ErrInvalidRelease
	}
	return s.Mark(), nil
}

// ResetTo verifies and drops every allocation made after m, then rolls the
// wrapped stack arena back.
func (d *DebugArena) ResetTo(m Marker) error {
	s, ok := d.inner.(*StackArena)
	if !ok {
		return ErrInvalidRelease
	}
	limit := s.base() + uintptr(m.offset)
	var first error
	kept := d.order[:0]
	for _, rec := range d.order {
		if rec.Live && rec.Addr >= limit {
			if err := d.checkGuards(rec); err != nil && first == nil {
				first = err
			}
			rec.Live = false
			delete(d.records, rec.Addr)
			continue
		}
		kept = append(kept, rec)
	}
	d.order = kept
	if err := s.ResetTo(m); err != nil {
		return err
	}
	return first
}

// Close reports every still-live allocation as a leak. The full list is
// logged; the call fails only when the arena was configured to fail hard.
func (d *DebugArena) Close() error {
	leaks := 0
	for _, rec := range d.order {
		if !rec.Live {
			continue
		}
		leaks++
		d.log.Warn("leaked allocation",
			zap.Uintptr("addr", rec.Addr),
			zap.Int("size", rec.Size),
			zap.String("tag", rec.Tag),
		)
	}
	if leaks > 0 {
		d.log.Warn("arena closed with live allocations",
			zap.String("kind", d.inner.Kind().String()),
			zap.Int("leaks", leaks),
		)
		if d.failHard {
			return fmt.Errorf("%w: %d leaked allocations", ErrArenaInUse, leaks)
		}
	}
	return nil
}

// Records returns the live allocation records in allocation order.
func (d *DebugArena) Records() []*AllocationRecord {
	out := make([]*AllocationRecord, 0, len(d.records))
	for _, rec := range d.order {
		if rec.Live {
			out = append(out, rec)
		}
	}
	return out
}

func (d *DebugArena) Kind() Kind    { return d.inner.Kind() }
func (d *DebugArena) Capacity() int { return d.inner.Capacity() }

func (d *DebugArena) Stats() Stats {
	st := d.inner.Stats()
	st.LiveAllocations = len(d.records)
	return st
}
