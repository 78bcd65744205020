package mem

import (
	"errors"
	"testing"
	"unsafe"
)

func TestLinearInvalidCapacity(t *testing.T) {
	if _, err := NewLinear(0, 8); !errors.Is(err, ErrInvalidCapacity) {
		t.Fatalf("capacity 0: got %v, want ErrInvalidCapacity", err)
	}
	if _, err := NewLinear(-1, 8); !errors.Is(err, ErrInvalidCapacity) {
		t.Fatalf("capacity -1: got %v, want ErrInvalidCapacity", err)
	}
	if _, err := NewLinear(1024, 3); !errors.Is(err, ErrInvalidCapacity) {
		t.Fatalf("alignment 3: got %v, want ErrInvalidCapacity", err)
	}
}

func TestLinearAllocate(t *testing.T) {
	a, err := NewLinear(1024, 8)
	if err != nil {
		t.Fatal(err)
	}
	b, err := a.Allocate(100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 100 {
		t.Fatalf("len = %d, want 100", len(b))
	}
	st := a.Stats()
	if st.LiveAllocations != 1 || st.Used == 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestLinearAlignment(t *testing.T) {
	a, err := NewLinear(4096, 8)
	if err != nil {
		t.Fatal(err)
	}
	for _, align := range []int{1, 2, 4, 8, 16, 64} {
		b, err := a.Allocate(10, align)
		if err != nil {
			t.Fatalf("align %d: %v", align, err)
		}
		addr := uintptr(unsafe.Pointer(&b[0]))
		if addr%uintptr(align) != 0 {
			t.Errorf("align %d: address %#x not aligned", align, addr)
		}
	}
}

func TestLinearOutOfMemory(t *testing.T) {
	a, err := NewLinear(64, 8)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Allocate(32, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Allocate(64, 0); !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("got %v, want ErrOutOfMemory", err)
	}
}

func TestLinearResetReusesSpace(t *testing.T) {
	a, err := NewLinear(1024, 8)
	if err != nil {
		t.Fatal(err)
	}
	b0, err := a.Allocate(64, 8)
	if err != nil {
		t.Fatal(err)
	}
	addr0 := uintptr(unsafe.Pointer(&b0[0]))
	if err := a.Reset(); err != nil {
		t.Fatal(err)
	}
	if st := a.Stats(); st.Used != 0 || st.LiveAllocations != 0 {
		t.Fatalf("stats after reset = %+v", st)
	}
	b1, err := a.Allocate(64, 8)
	if err != nil {
		t.Fatal(err)
	}
	if uintptr(unsafe.Pointer(&b1[0])) != addr0 {
		t.Fatal("allocation after reset did not reuse the same address")
	}
}

func TestLinearAllocationSize(t *testing.T) {
	a, err := NewLinear(4096, 8)
	if err != nil {
		t.Fatal(err)
	}
	for _, size := range []int{1, 17, 256, 1000} {
		b, err := a.Allocate(size, 0)
		if err != nil {
			t.Fatal(err)
		}
		got, err := a.AllocationSize(b)
		if err != nil {
			t.Fatal(err)
		}
		if got != size {
			t.Errorf("AllocationSize = %d, want %d", got, size)
		}
	}
}

func TestLinearFreeIsNoOp(t *testing.T) {
	a, err := NewLinear(256, 8)
	if err != nil {
		t.Fatal(err)
	}
	b, err := a.Allocate(16, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Free(b); err != nil {
		t.Fatalf("free of owned range: %v", err)
	}
	if st := a.Stats(); st.Used == 0 {
		t.Fatal("free must not reclaim linear arena space")
	}
	foreign := make([]byte, 16)
	if err := a.Free(foreign); !errors.Is(err, ErrInvalidRelease) {
		t.Fatalf("foreign free: got %v, want ErrInvalidRelease", err)
	}
}
