package ecs

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/sparkgo/spark/internal/mem"
)

// ComponentID is the index of a component type in the world's closed
// registry. Ids are assigned at registration time; there is no runtime
// reflection anywhere on the component path.
type ComponentID uint32

// MaxComponentTypes bounds the registry to what a Mask can represent.
const MaxComponentTypes = 256

// initialStoreCapacity is the dense capacity a store starts with on its
// first Add.
const initialStoreCapacity = 8

// anyStore is the type-erased face of a typed store, used by the world for
// destroy-time cleanup and by the query engine to drive iteration.
type anyStore interface {
	componentID() ComponentID
	storeName() string
	length() int
	entityAt(i int) EntityID
	detach(e EntityID)
	lock()
	unlock()
	isLocked() bool
	releaseStorage() error
}

// typedStore is a sparse set: a dense column of T viewed over arena memory,
// the dense entity list, and a sparse entity-index -> dense-slot table.
// The dense column never has gaps; its length always equals the number of
// entities holding the component.
type typedStore[T any] struct {
	id      ComponentID
	name    string
	w       *World
	arenaID mem.ArenaID

	buf       []byte
	view      []T // full-capacity view over buf
	n         int
	capacity  int
	elemSize  int
	elemAlign int

	entities []EntityID
	sparse   []int32
	locks    int32 // atomic; read by flushIfIdle from other workers
	zero     T
}

// Component is the typed handle returned by Register. All component access
// goes through it; the id doubles as the bit used in entity masks and
// scheduler access sets.
type Component[T any] struct {
	id ComponentID
	s  *typedStore[T]
	w  *World
}

// Register adds a component type to the world under name and returns its
// handle. The store's dense column draws from a dedicated arena created in
// the world's registry; storage is created here, lazily sized on first use,
// and destroyed with the world.
func Register[T any](w *World, name string) (*Component[T], error) {
	if _, ok := w.byName[name]; ok {
		return nil, fmt.Errorf("component %q already registered", name)
	}
	if len(w.stores) >= MaxComponentTypes {
		return nil, fmt.Errorf("cannot register component %q: limit of %d types reached",
			name, MaxComponentTypes)
	}
	var zero T
	id := ComponentID(len(w.stores))
	s := &typedStore[T]{
		id:        id,
		name:      name,
		w:         w,
		elemSize:  int(unsafe.Sizeof(zero)),
		elemAlign: int(unsafe.Alignof(zero)),
	}
	if s.elemSize > 0 {
		arenaID, err := w.arenas.Create("component:"+name, mem.Options{
			Kind:      mem.Linear,
			Capacity:  w.opts.ComponentArenaCapacity,
			Alignment: w.opts.Alignment,
		})
		if err != nil {
			return nil, fmt.Errorf("create arena for component %q: %w", name, err)
		}
		s.arenaID = arenaID
	}
	w.stores = append(w.stores, s)
	w.byName[name] = id
	return &Component[T]{id: id, s: s, w: w}, nil
}

// ID returns the component's registry id.
func (c *Component[T]) ID() ComponentID { return c.id }

// Add attaches v to e. It fails with ErrStaleHandle for a dead handle and
// ErrDuplicateComponent if e already has the component; a failed Add leaves
// the storage unchanged. While the store is under an in-flight query the
// operation is queued and applied at end-of-tick instead.
func (c *Component[T]) Add(e EntityID, v T) error {
	rec, err := c.w.pool.lookup(e)
	if err != nil {
		return err
	}
	if rec.mask.Has(uint8(c.id)) {
		return ErrDuplicateComponent
	}
	if c.s.isLocked() {
		c.w.enqueue(func() error { return c.Add(e, v) })
		return nil
	}
	if err := c.s.append(e, v); err != nil {
		return err
	}
	rec.mask.Set(uint8(c.id))
	return nil
}

// Remove detaches the component from e with a swap-remove: the last dense
// element moves into the freed slot and its entity's mapping is fixed up.
// Deferred like Add while the store is under an in-flight query.
func (c *Component[T]) Remove(e EntityID) error {
	rec, err := c.w.pool.lookup(e)
	if err != nil {
		return err
	}
	if !rec.mask.Has(uint8(c.id)) {
		return ErrMissingComponent
	}
	if c.s.isLocked() {
		c.w.enqueue(func() error { return c.Remove(e) })
		return nil
	}
	c.s.detach(e)
	rec.mask.Clear(uint8(c.id))
	return nil
}

// Get returns a pointer to e's component. The pointer stays valid until the
// next structural change (add, remove, destroy) on this component type.
func (c *Component[T]) Get(e EntityID) (*T, error) {
	rec, err := c.w.pool.lookup(e)
	if err != nil {
		return nil, err
	}
	if !rec.mask.Has(uint8(c.id)) {
		return nil, ErrMissingComponent
	}
	if c.s.elemSize == 0 {
		return &c.s.zero, nil
	}
	return &c.s.view[c.s.sparse[e.Index()]], nil
}

// Has reports whether e holds the component.
func (c *Component[T]) Has(e EntityID) bool {
	rec, err := c.w.pool.lookup(e)
	if err != nil {
		return false
	}
	return rec.mask.Has(uint8(c.id))
}

// Len returns the number of entities holding the component.
func (c *Component[T]) Len() int { return c.s.n }

func (s *typedStore[T]) append(e EntityID, v T) error {
	if s.n == s.capacity {
		if err := s.grow(); err != nil {
			return err
		}
	}
	if s.elemSize > 0 {
		s.view[s.n] = v
	}
	s.entities = append(s.entities, e)
	s.ensureSparse(e.Index())
	s.sparse[e.Index()] = int32(s.n)
	s.n++
	return nil
}

// grow doubles the dense capacity, relocating the column into a fresh arena
// block. When the backing arena cannot serve the larger block the registry
// replaces it with a doubled one and the elements move there.
func (s *typedStore[T]) grow() error {
	newCap := s.capacity * 2
	if newCap == 0 {
		newCap = initialStoreCapacity
	}
	if s.elemSize == 0 {
		s.capacity = newCap
		return nil
	}
	need := newCap * s.elemSize
	arena := s.w.arenas.Get(s.arenaID)
	buf, err := arena.Allocate(need, s.elemAlign)
	if errors.Is(err, mem.ErrOutOfMemory) {
		// Leave headroom for the allocation header and alignment padding.
		arena, err = s.w.arenas.Grow(s.arenaID, need+s.elemAlign+16)
		if err != nil {
			return err
		}
		buf, err = arena.Allocate(need, s.elemAlign)
	}
	if err != nil {
		return err
	}
	view := unsafe.Slice((*T)(unsafe.Pointer(&buf[0])), newCap)
	copy(view[:s.n], s.view[:s.n])
	s.buf = buf
	s.view = view
	s.capacity = newCap
	return nil
}

func (s *typedStore[T]) ensureSparse(idx uint32) {
	for int(idx) >= len(s.sparse) {
		s.sparse = append(s.sparse, -1)
	}
}

func (s *typedStore[T]) detach(e EntityID) {
	idx := int(s.sparse[e.Index()])
	last := s.n - 1
	lastEnt := s.entities[last]
	if idx != last {
		s.entities[idx] = lastEnt
		if s.elemSize > 0 {
			s.view[idx] = s.view[last]
		}
		s.sparse[lastEnt.Index()] = int32(idx)
	}
	s.entities = s.entities[:last]
	s.sparse[e.Index()] = -1
	s.n = last
}

// releaseStorage hands the dense column back to the arena. The store is
// unusable afterwards; only world teardown calls this.
func (s *typedStore[T]) releaseStorage() error {
	s.buf = nil
	s.view = nil
	s.entities = nil
	s.sparse = nil
	s.n = 0
	s.capacity = 0
	if s.elemSize == 0 {
		return nil
	}
	arena := s.w.arenas.Get(s.arenaID)
	if arena == nil {
		return nil
	}
	return arena.Reset()
}

func (s *typedStore[T]) componentID() ComponentID { return s.id }
func (s *typedStore[T]) storeName() string        { return s.name }
func (s *typedStore[T]) length() int              { return s.n }
func (s *typedStore[T]) entityAt(i int) EntityID  { return s.entities[i] }
func (s *typedStore[T]) lock()                    { atomic.AddInt32(&s.locks, 1) }
func (s *typedStore[T]) unlock()                  { atomic.AddInt32(&s.locks, -1) }
func (s *typedStore[T]) isLocked() bool           { return atomic.LoadInt32(&s.locks) > 0 }
