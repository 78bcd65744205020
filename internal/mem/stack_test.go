package mem

import (
	"errors"
	"testing"
	"unsafe"
)

func TestStackLIFOFree(t *testing.T) {
	a, err := NewStack(1024, 8)
	if err != nil {
		t.Fatal(err)
	}
	b0, err := a.Allocate(64, 0)
	if err != nil {
		t.Fatal(err)
	}
	b1, err := a.Allocate(64, 0)
	if err != nil {
		t.Fatal(err)
	}
	// Freeing anything but the most recent allocation is rejected.
	if err := a.Free(b0); !errors.Is(err, ErrInvalidRelease) {
		t.Fatalf("non-LIFO free: got %v, want ErrInvalidRelease", err)
	}
	if err := a.Free(b1); err != nil {
		t.Fatal(err)
	}
	if err := a.Free(b0); err != nil {
		t.Fatal(err)
	}
	if st := a.Stats(); st.Used != 0 || st.LiveAllocations != 0 {
		t.Fatalf("stats after unwinding = %+v", st)
	}
}

func TestStackFreeReusesSpace(t *testing.T) {
	a, err := NewStack(1024, 8)
	if err != nil {
		t.Fatal(err)
	}
	b0, err := a.Allocate(256, 0)
	if err != nil {
		t.Fatal(err)
	}
	addr0 := uintptr(unsafe.Pointer(&b0[0]))
	if err := a.Free(b0); err != nil {
		t.Fatal(err)
	}
	b1, err := a.Allocate(256, 0)
	if err != nil {
		t.Fatal(err)
	}
	if uintptr(unsafe.Pointer(&b1[0])) != addr0 {
		t.Fatal("allocation after free did not reuse the freed address")
	}
}

func TestStackMarkerRestoresUsed(t *testing.T) {
	a, err := NewStack(4096, 8)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Allocate(100, 0); err != nil {
		t.Fatal(err)
	}
	m := a.Mark()
	usedAtMark := a.Stats().Used

	for i := 0; i < 5; i++ {
		if _, err := a.Allocate(200, 0); err != nil {
			t.Fatal(err)
		}
	}
	if a.Stats().Used == usedAtMark {
		t.Fatal("allocations after marker did not move the offset")
	}
	if err := a.ResetTo(m); err != nil {
		t.Fatal(err)
	}
	if got := a.Stats().Used; got != usedAtMark {
		t.Fatalf("used after reset = %d, want %d", got, usedAtMark)
	}
	// The freed space is reusable.
	if _, err := a.Allocate(1000, 0); err != nil {
		t.Fatal(err)
	}
}

func TestStackStaleMarker(t *testing.T) {
	a, err := NewStack(1024, 8)
	if err != nil {
		t.Fatal(err)
	}
	m0 := a.Mark()
	if _, err := a.Allocate(64, 0); err != nil {
		t.Fatal(err)
	}
	m1 := a.Mark()
	if _, err := a.Allocate(64, 0); err != nil {
		t.Fatal(err)
	}
	if err := a.ResetTo(m0); err != nil {
		t.Fatal(err)
	}
	// m1 was taken above the point we rolled back to.
	if err := a.ResetTo(m1); !errors.Is(err, ErrInvalidRelease) {
		t.Fatalf("stale marker: got %v, want ErrInvalidRelease", err)
	}
}

func TestStackForeignMarker(t *testing.T) {
	a, err := NewStack(1024, 8)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewStack(1024, 8)
	if err != nil {
		t.Fatal(err)
	}
	m := b.Mark()
	if err := a.ResetTo(m); !errors.Is(err, ErrInvalidRelease) {
		t.Fatalf("foreign marker: got %v, want ErrInvalidRelease", err)
	}
}

func TestStackOutOfMemory(t *testing.T) {
	a, err := NewStack(128, 8)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Allocate(64, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Allocate(128, 0); !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("got %v, want ErrOutOfMemory", err)
	}
}

func TestStackAllocationSize(t *testing.T) {
	a, err := NewStack(1024, 8)
	if err != nil {
		t.Fatal(err)
	}
	b, err := a.Allocate(300, 0)
	if err != nil {
		t.Fatal(err)
	}
	got, err := a.AllocationSize(b)
	if err != nil {
		t.Fatal(err)
	}
	if got != 300 {
		t.Fatalf("AllocationSize = %d, want 300", got)
	}
}
