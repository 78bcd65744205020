package ecs

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/sparkgo/spark/internal/mem"
)

func newTestWorld(t *testing.T) *World {
	t.Helper()
	arenas, err := mem.NewRegistry(mem.Config{
		DefaultCapacity:  1 << 20,
		DefaultAlignment: 8,
	}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return NewWorld(arenas, zap.NewNop(), Options{
		InitialEntityCapacity:  64,
		ComponentArenaCapacity: 4096,
		Alignment:              8,
	})
}

func TestEntityIDEncoding(t *testing.T) {
	id := NewEntityID(42, 7)
	if id.Index() != 42 || id.Generation() != 7 {
		t.Fatalf("round trip = (%d, %d), want (42, 7)", id.Index(), id.Generation())
	}
}

func TestEntityRecycleBumpsGeneration(t *testing.T) {
	w := newTestWorld(t)
	e := w.CreateEntity()
	if err := w.DestroyEntity(e); err != nil {
		t.Fatal(err)
	}
	if w.Alive(e) {
		t.Fatal("destroyed handle still alive")
	}
	e2 := w.CreateEntity()
	if e2.Index() != e.Index() {
		t.Fatalf("slot not reused: index %d, want %d", e2.Index(), e.Index())
	}
	if e2.Generation() <= e.Generation() {
		t.Fatalf("generation %d not strictly greater than %d", e2.Generation(), e.Generation())
	}
	if w.Alive(e) {
		t.Fatal("stale handle alive after slot reuse")
	}
	if !w.Alive(e2) {
		t.Fatal("fresh handle not alive")
	}
}

func TestEntityDestroyStale(t *testing.T) {
	w := newTestWorld(t)
	e := w.CreateEntity()
	if err := w.DestroyEntity(e); err != nil {
		t.Fatal(err)
	}
	if err := w.DestroyEntity(e); !errors.Is(err, ErrStaleHandle) {
		t.Fatalf("double destroy: got %v, want ErrStaleHandle", err)
	}
	bogus := NewEntityID(9999, 0)
	if err := w.DestroyEntity(bogus); !errors.Is(err, ErrStaleHandle) {
		t.Fatalf("unknown handle: got %v, want ErrStaleHandle", err)
	}
}

func TestEntityLowestSlotReuse(t *testing.T) {
	w := newTestWorld(t)
	var es []EntityID
	for i := 0; i < 5; i++ {
		es = append(es, w.CreateEntity())
	}
	if err := w.DestroyEntity(es[3]); err != nil {
		t.Fatal(err)
	}
	if err := w.DestroyEntity(es[1]); err != nil {
		t.Fatal(err)
	}
	// The lowest free slot comes back first.
	if got := w.CreateEntity().Index(); got != 1 {
		t.Fatalf("reused index = %d, want 1", got)
	}
	if got := w.CreateEntity().Index(); got != 3 {
		t.Fatalf("reused index = %d, want 3", got)
	}
	if got := w.CreateEntity().Index(); got != 5 {
		t.Fatalf("fresh index = %d, want 5", got)
	}
}

func TestEntityCount(t *testing.T) {
	w := newTestWorld(t)
	for i := 0; i < 10; i++ {
		w.CreateEntity()
	}
	if w.EntityCount() != 10 {
		t.Fatalf("count = %d, want 10", w.EntityCount())
	}
}

func TestEntityDestroyDeferredDuringTick(t *testing.T) {
	w := newTestWorld(t)
	e := w.CreateEntity()
	w.BeginTick()
	if err := w.DestroyEntity(e); err != nil {
		t.Fatal(err)
	}
	if !w.Alive(e) {
		t.Fatal("destruction must defer until the tick ends")
	}
	w.EndTick()
	if w.Alive(e) {
		t.Fatal("queued destruction not applied at end-of-tick")
	}
}
