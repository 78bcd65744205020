package event

import (
	"testing"

	"github.com/sparkgo/spark/internal/core/ecs"
)

func TestBusDeliversNextSwap(t *testing.T) {
	b := NewBus()
	var got []ecs.EntityID
	Subscribe(b, func(ev EntityCreated) {
		got = append(got, ev.Entity)
	})

	Emit(b, EntityCreated{Entity: ecs.NewEntityID(1, 0)})
	Emit(b, EntityCreated{Entity: ecs.NewEntityID(2, 0)})
	if b.Pending() != 2 {
		t.Fatalf("Pending = %d, want 2", b.Pending())
	}

	// Nothing moves before the swap.
	b.DispatchAll()
	if len(got) != 0 {
		t.Fatalf("delivered %d events before swap", len(got))
	}

	b.SwapBuffers()
	b.DispatchAll()
	if len(got) != 2 {
		t.Fatalf("delivered %d events, want 2", len(got))
	}
	if got[0].Index() != 1 || got[1].Index() != 2 {
		t.Fatalf("delivery order = %v", got)
	}

	// The next swap drops the already-delivered batch.
	b.SwapBuffers()
	b.DispatchAll()
	if len(got) != 2 {
		t.Fatalf("events redelivered: %d", len(got))
	}
}

func TestBusTypedRouting(t *testing.T) {
	b := NewBus()
	created, destroyed := 0, 0
	Subscribe(b, func(EntityCreated) { created++ })
	Subscribe(b, func(EntityDestroyed) { destroyed++ })

	Emit(b, EntityCreated{})
	Emit(b, EntityDestroyed{})
	Emit(b, EntityDestroyed{})
	b.SwapBuffers()
	b.DispatchAll()

	if created != 1 || destroyed != 2 {
		t.Fatalf("created = %d, destroyed = %d", created, destroyed)
	}
}

func TestBusMultipleHandlers(t *testing.T) {
	b := NewBus()
	calls := 0
	Subscribe(b, func(EntityCreated) { calls++ })
	Subscribe(b, func(EntityCreated) { calls++ })
	Emit(b, EntityCreated{})
	b.SwapBuffers()
	b.DispatchAll()
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}
