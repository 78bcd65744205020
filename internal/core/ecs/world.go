// Package ecs implements the entity-component runtime: generational entity
// handles, arena-backed sparse-set component storage, and the mask-filtered
// query engine. The world is the composition root tying those to the arena
// registry that owns their memory.
package ecs

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sparkgo/spark/internal/mem"
)

// Options sizes a new world.
type Options struct {
	// InitialEntityCapacity pre-sizes the entity record table.
	InitialEntityCapacity int
	// ComponentArenaCapacity is the starting capacity, in bytes, of the
	// arena created for each registered component type.
	ComponentArenaCapacity int
	// Alignment is the default allocation alignment for component arenas.
	Alignment int
}

// World owns the entity pool and the component stores, and routes their
// memory through an arena registry. It also carries the deferred command
// buffer and destroy queue flushed at end-of-tick; the registry's lifetime
// is managed by whoever constructed it, not by the world.
type World struct {
	log    *zap.Logger
	arenas *mem.Registry
	pool   *EntityPool
	stores []anyStore
	byName map[string]ComponentID
	opts   Options

	ticking bool

	// mu guards the deferral state below. Systems with disjoint access sets
	// run concurrently during a parallel tick and all of them queue here.
	mu           sync.Mutex
	deferred     []func() error
	destroyQueue []EntityID
}

func NewWorld(arenas *mem.Registry, log *zap.Logger, opts Options) *World {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.ComponentArenaCapacity <= 0 {
		opts.ComponentArenaCapacity = 64 * 1024
	}
	return &World{
		log:          log,
		arenas:       arenas,
		pool:         NewEntityPool(opts.InitialEntityCapacity),
		byName:       make(map[string]ComponentID, 16),
		opts:         opts,
		destroyQueue: make([]EntityID, 0, 64),
	}
}

// CreateEntity allocates a handle, recycling the lowest free slot first.
func (w *World) CreateEntity() EntityID {
	return w.pool.Create()
}

// DestroyEntity removes every component e holds, frees its slot, and bumps
// the generation so the handle goes stale. The destruction is queued instead
// of applied while a tick is running or while a query holds any store the
// entity occupies; the handle check still happens immediately.
func (w *World) DestroyEntity(e EntityID) error {
	rec, err := w.pool.lookup(e)
	if err != nil {
		return err
	}
	if w.ticking || w.maskedStoreLocked(rec.mask) {
		w.mu.Lock()
		w.destroyQueue = append(w.destroyQueue, e)
		w.mu.Unlock()
		return nil
	}
	w.destroyNow(e, rec)
	return nil
}

// maskedStoreLocked reports whether any store the mask covers is held by an
// in-flight query. Detaching from such a store would swap-remove under the
// iteration.
func (w *World) maskedStoreLocked(m Mask) bool {
	for _, s := range w.stores {
		if m.Has(uint8(s.componentID())) && s.isLocked() {
			return true
		}
	}
	return false
}

func (w *World) destroyNow(e EntityID, rec *entityRecord) {
	for _, s := range w.stores {
		if rec.mask.Has(uint8(s.componentID())) {
			s.detach(e)
		}
	}
	w.pool.release(e.Index())
}

// Alive is an O(1) generation comparison.
func (w *World) Alive(e EntityID) bool {
	return w.pool.Alive(e)
}

// EntityCount returns the number of live entities.
func (w *World) EntityCount() int {
	return w.pool.AliveCount()
}

// ComponentID resolves a registered component name.
func (w *World) ComponentID(name string) (ComponentID, bool) {
	id, ok := w.byName[name]
	return id, ok
}

// ArenaStats snapshots the stats of every arena the world allocates from.
func (w *World) ArenaStats() map[string]mem.Stats {
	return w.arenas.StatsAll()
}

// BeginTick marks the start of a tick: entity destruction defers until
// EndTick from here on.
func (w *World) BeginTick() {
	w.ticking = true
}

// EndTick flushes the deferred command buffer, then the destroy queue.
// Failures of deferred operations are diagnostic: they are logged and do not
// stop the flush.
func (w *World) EndTick() {
	w.ticking = false
	w.runDeferred()
	w.drainDestroyQueue()
}

// enqueue adds an operation to the end-of-tick command buffer.
func (w *World) enqueue(op func() error) {
	w.mu.Lock()
	w.deferred = append(w.deferred, op)
	w.mu.Unlock()
}

func (w *World) runDeferred() {
	w.mu.Lock()
	ops := w.deferred
	w.deferred = nil
	w.mu.Unlock()
	for _, op := range ops {
		if err := op(); err != nil {
			w.log.Warn("deferred operation failed", zap.Error(err))
		}
	}
}

func (w *World) drainDestroyQueue() {
	w.mu.Lock()
	queue := w.destroyQueue
	w.destroyQueue = make([]EntityID, 0, 64)
	w.mu.Unlock()
	for _, e := range queue {
		rec, err := w.pool.lookup(e)
		if err != nil {
			continue // destroyed twice before the flush
		}
		w.destroyNow(e, rec)
	}
}

// Close returns every component store's memory to its arena so the registry
// can destroy them without reporting the columns as leaks. The world must not
// be used afterwards.
func (w *World) Close() error {
	var errs []error
	for _, s := range w.stores {
		if err := s.releaseStorage(); err != nil {
			errs = append(errs, fmt.Errorf("release store %q: %w", s.storeName(), err))
		}
	}
	return errors.Join(errs...)
}

// flushIfIdle applies queued operations as soon as no tick and no query is
// holding the stores, so standalone query use does not strand its deferrals.
func (w *World) flushIfIdle() {
	if w.ticking {
		return
	}
	w.mu.Lock()
	pending := len(w.deferred) + len(w.destroyQueue)
	w.mu.Unlock()
	if pending == 0 {
		return
	}
	for _, s := range w.stores {
		if s.isLocked() {
			return
		}
	}
	w.runDeferred()
	w.drainDestroyQueue()
}
