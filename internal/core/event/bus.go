// Package event is a double-buffered, typed publish/subscribe bus for engine
// lifecycle notifications. Events emitted during tick N are delivered at the
// start of tick N+1, so handlers never observe a world mid-mutation.
package event

import (
	"reflect"
	"sync"
)

// Bus buffers events by concrete type. SwapBuffers rotates the buffers once
// per tick; emission goes to the back buffer, delivery drains the front.
type Bus struct {
	mu       sync.Mutex // only protects handler registration
	front    map[reflect.Type][]any
	back     map[reflect.Type][]any
	handlers map[reflect.Type][]any
}

func NewBus() *Bus {
	return &Bus{
		front:    make(map[reflect.Type][]any),
		back:     make(map[reflect.Type][]any),
		handlers: make(map[reflect.Type][]any),
	}
}

// Emit queues an event for delivery on the next tick.
func Emit[T any](b *Bus, ev T) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.back[t] = append(b.back[t], ev)
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.handlers[t] = append(b.handlers[t], fn)
}

// SwapBuffers rotates back to front and clears the new back buffer. Called
// once at tick start, before DispatchAll.
func (b *Bus) SwapBuffers() {
	b.front, b.back = b.back, b.front
	for k := range b.back {
		b.back[k] = b.back[k][:0]
	}
}

// DispatchAll delivers every front-buffer event to its subscribed handlers.
func (b *Bus) DispatchAll() {
	for t, events := range b.front {
		handlers := b.handlers[t]
		for _, ev := range events {
			for _, h := range handlers {
				// Subscribe and Emit key on the same type, so the
				// handler signature matches the event.
				callHandler(h, ev)
			}
		}
	}
}

// Pending returns how many events await the next swap.
func (b *Bus) Pending() int {
	n := 0
	for _, evs := range b.back {
		n += len(evs)
	}
	return n
}

func callHandler(handler any, ev any) {
	reflect.ValueOf(handler).Call([]reflect.Value{reflect.ValueOf(ev)})
}
