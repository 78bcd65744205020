package mem

import (
	"errors"
	"testing"
	"unsafe"

	"go.uber.org/zap"
)

func newDebugLinear(t *testing.T, capacity int, failHard bool) *DebugArena {
	t.Helper()
	inner, err := NewLinear(capacity, 8)
	if err != nil {
		t.Fatal(err)
	}
	return NewDebug(inner, zap.NewNop(), failHard)
}

func TestDebugCleanFree(t *testing.T) {
	d := newDebugLinear(t, 4096, false)
	b, err := d.AllocateTagged(128, 8, "clean")
	if err != nil {
		t.Fatal(err)
	}
	for i := range b {
		b[i] = 0xFF // writes inside the range never trip the guards
	}
	if err := d.Free(b); err != nil {
		t.Fatalf("free of untouched guards: %v", err)
	}
}

// Writing one byte past the requested size must surface as corruption.
func TestDebugOverflowDetected(t *testing.T) {
	d := newDebugLinear(t, 4096, false)
	b, err := d.AllocateTagged(64, 8, "overflow")
	if err != nil {
		t.Fatal(err)
	}
	// Step one byte into the back guard.
	raw := unsafe.Slice(&b[0], 65)
	raw[64] = 0x00
	if err := d.Free(b); !errors.Is(err, ErrCorruptionDetected) {
		t.Fatalf("got %v, want ErrCorruptionDetected", err)
	}
}

func TestDebugUnderflowDetected(t *testing.T) {
	d := newDebugLinear(t, 4096, false)
	b, err := d.Allocate(64, 8)
	if err != nil {
		t.Fatal(err)
	}
	// Stomp the byte immediately before the allocation.
	ptr := unsafe.Add(unsafe.Pointer(&b[0]), -1)
	*(*byte)(ptr) = 0x00
	if err := d.Free(b); !errors.Is(err, ErrCorruptionDetected) {
		t.Fatalf("got %v, want ErrCorruptionDetected", err)
	}
}

func TestDebugResetVerifiesGuards(t *testing.T) {
	d := newDebugLinear(t, 4096, false)
	b, err := d.Allocate(32, 8)
	if err != nil {
		t.Fatal(err)
	}
	raw := unsafe.Slice(&b[0], 33)
	raw[32] = 0x00
	if err := d.Reset(); !errors.Is(err, ErrCorruptionDetected) {
		t.Fatalf("got %v, want ErrCorruptionDetected", err)
	}
	// State is intact after the diagnostic: the arena is reusable.
	if _, err := d.Allocate(32, 8); err != nil {
		t.Fatal(err)
	}
}

func TestDebugLeakReport(t *testing.T) {
	d := newDebugLinear(t, 4096, true)
	if _, err := d.AllocateTagged(16, 8, "leak-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.AllocateTagged(16, 8, "leak-b"); err != nil {
		t.Fatal(err)
	}
	recs := d.Records()
	if len(recs) != 2 {
		t.Fatalf("live records = %d, want 2", len(recs))
	}
	if recs[0].Tag != "leak-a" || recs[1].Tag != "leak-b" {
		t.Fatalf("record tags = %q, %q", recs[0].Tag, recs[1].Tag)
	}
	if err := d.Close(); !errors.Is(err, ErrArenaInUse) {
		t.Fatalf("fail-hard close with leaks: got %v, want ErrArenaInUse", err)
	}
}

func TestDebugCloseWithoutLeaks(t *testing.T) {
	d := newDebugLinear(t, 4096, true)
	b, err := d.Allocate(16, 8)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Free(b); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close without leaks: %v", err)
	}
}

func TestDebugUnknownFree(t *testing.T) {
	d := newDebugLinear(t, 1024, false)
	foreign := make([]byte, 16)
	if err := d.Free(foreign); !errors.Is(err, ErrInvalidRelease) {
		t.Fatalf("got %v, want ErrInvalidRelease", err)
	}
}

func TestDebugAlignmentPreserved(t *testing.T) {
	d := newDebugLinear(t, 8192, false)
	for _, align := range []int{8, 16, 32, 64} {
		b, err := d.Allocate(40, align)
		if err != nil {
			t.Fatalf("align %d: %v", align, err)
		}
		addr := uintptr(unsafe.Pointer(&b[0]))
		if addr%uintptr(align) != 0 {
			t.Errorf("align %d: address %#x not aligned", align, addr)
		}
	}
}

// A free the wrapped arena rejects must leave the allocation tracked, so
// later stats and leak reports still see it.
func TestDebugRejectedFreeKeepsRecord(t *testing.T) {
	inner, err := NewStack(4096, 8)
	if err != nil {
		t.Fatal(err)
	}
	d := NewDebug(inner, zap.NewNop(), false)
	first, err := d.AllocateTagged(64, 8, "first")
	if err != nil {
		t.Fatal(err)
	}
	second, err := d.AllocateTagged(64, 8, "second")
	if err != nil {
		t.Fatal(err)
	}
	// Out-of-order free against the stack fails; both allocations stay live.
	if err := d.Free(first); !errors.Is(err, ErrInvalidRelease) {
		t.Fatalf("out-of-order free: got %v, want ErrInvalidRelease", err)
	}
	if got := d.Stats().LiveAllocations; got != 2 {
		t.Fatalf("LiveAllocations = %d after rejected free, want 2", got)
	}
	if recs := d.Records(); len(recs) != 2 {
		t.Fatalf("records = %d after rejected free, want 2", len(recs))
	}
	// The proper order still works, first retry included.
	if err := d.Free(second); err != nil {
		t.Fatal(err)
	}
	if err := d.Free(first); err != nil {
		t.Fatal(err)
	}
	if got := d.Stats().LiveAllocations; got != 0 {
		t.Fatalf("LiveAllocations = %d after both frees, want 0", got)
	}
}

func TestDebugStackResetToDropsRecords(t *testing.T) {
	inner, err := NewStack(4096, 8)
	if err != nil {
		t.Fatal(err)
	}
	d := NewDebug(inner, zap.NewNop(), false)
	if _, err := d.AllocateTagged(64, 8, "kept"); err != nil {
		t.Fatal(err)
	}
	m, err := d.Mark()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.AllocateTagged(64, 8, "rolled-back"); err != nil {
		t.Fatal(err)
	}
	if err := d.ResetTo(m); err != nil {
		t.Fatal(err)
	}
	recs := d.Records()
	if len(recs) != 1 || recs[0].Tag != "kept" {
		t.Fatalf("records after rollback = %v", recs)
	}
}
