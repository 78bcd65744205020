package mem

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ArenaID identifies an arena owned by a Registry.
type ArenaID int32

// DefaultArenaName is the name of the arena every registry creates at
// construction time. Its lifetime is the registry's lifetime; there is no
// lazily-initialized global arena anywhere in the runtime.
const DefaultArenaName = "default"

// Options describes an arena to create. Capacity is in bytes, except for
// Pool where it counts slots of SlotSize bytes each.
type Options struct {
	Kind      Kind
	Capacity  int
	Alignment int
	SlotSize  int // Pool only
}

// Config controls registry-wide behavior.
type Config struct {
	Debug            bool // wrap every arena in a DebugArena
	FailHardOnLeak   bool // leaks on destroy become ErrArenaInUse
	DefaultCapacity  int  // capacity of the default arena
	DefaultAlignment int
}

type regEntry struct {
	name  string
	opts  Options
	arena Arena
}

// Registry owns named arena instances. It creates the default arena up front,
// applies debug wrapping per configuration, and tears everything down in
// Close. The registry is not safe for concurrent use; arenas are created
// during world construction and grown only from the owning storage.
type Registry struct {
	log     *zap.Logger
	cfg     Config
	entries []*regEntry
	byName  map[string]ArenaID
}

// NewRegistry creates a registry and its default linear arena.
func NewRegistry(cfg Config, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		log:    log,
		cfg:    cfg,
		byName: make(map[string]ArenaID, 8),
	}
	_, err := r.Create(DefaultArenaName, Options{
		Kind:      Linear,
		Capacity:  cfg.DefaultCapacity,
		Alignment: cfg.DefaultAlignment,
	})
	if err != nil {
		return nil, fmt.Errorf("create default arena: %w", err)
	}
	return r, nil
}

// Create builds a new arena under name and returns its id.
func (r *Registry) Create(name string, opts Options) (ArenaID, error) {
	if _, ok := r.byName[name]; ok {
		return 0, fmt.Errorf("arena %q already exists", name)
	}
	arena, err := r.build(opts)
	if err != nil {
		return 0, err
	}
	id := ArenaID(len(r.entries))
	r.entries = append(r.entries, &regEntry{name: name, opts: opts, arena: arena})
	r.byName[name] = id
	r.log.Debug("arena created",
		zap.String("name", name),
		zap.String("kind", opts.Kind.String()),
		zap.Int("capacity", opts.Capacity),
	)
	return id, nil
}

func (r *Registry) build(opts Options) (Arena, error) {
	var (
		arena Arena
		err   error
	)
	switch opts.Kind {
	case Linear:
		arena, err = NewLinear(opts.Capacity, opts.Alignment)
	case Stack:
		arena, err = NewStack(opts.Capacity, opts.Alignment)
	case Pool:
		arena, err = NewPool(opts.Capacity, opts.SlotSize, opts.Alignment)
	case FreeList:
		arena, err = NewFreeList(opts.Capacity, opts.Alignment)
	default:
		return nil, fmt.Errorf("unknown arena kind %d", opts.Kind)
	}
	if err != nil {
		return nil, err
	}
	if r.cfg.Debug {
		arena = NewDebug(arena, r.log, r.cfg.FailHardOnLeak)
	}
	return arena, nil
}

// Get returns the arena for id, or nil if it was destroyed.
func (r *Registry) Get(id ArenaID) Arena {
	if int(id) >= len(r.entries) {
		return nil
	}
	return r.entries[id].arena
}

// Lookup resolves a name to an arena id.
func (r *Registry) Lookup(name string) (ArenaID, bool) {
	id, ok := r.byName[name]
	return id, ok
}

// Default returns the id of the registry's default arena.
func (r *Registry) Default() ArenaID { return 0 }

// Destroy tears down an arena. Unless force is set it fails with
// ErrArenaInUse when live allocations remain; a debug-wrapped arena logs its
// leak report either way.
func (r *Registry) Destroy(id ArenaID, force bool) error {
	if int(id) >= len(r.entries) || r.entries[id].arena == nil {
		return fmt.Errorf("%w: arena %d already destroyed", ErrInvalidRelease, id)
	}
	e := r.entries[id]
	if !force && e.arena.Stats().LiveAllocations > 0 {
		return fmt.Errorf("%w: arena %q has %d live allocations",
			ErrArenaInUse, e.name, e.arena.Stats().LiveAllocations)
	}
	if dbg, ok := e.arena.(*DebugArena); ok {
		if err := dbg.Close(); err != nil && !force {
			return err
		}
	}
	e.arena = nil
	delete(r.byName, e.name)
	return nil
}

// Grow replaces the arena behind id with one of at least minCapacity,
// doubling from the current capacity. The caller relocates its data out of
// the old block; the old arena is retired without a leak report since every
// allocation in it is being moved.
func (r *Registry) Grow(id ArenaID, minCapacity int) (Arena, error) {
	if int(id) >= len(r.entries) || r.entries[id].arena == nil {
		return nil, fmt.Errorf("%w: arena %d already destroyed", ErrInvalidRelease, id)
	}
	e := r.entries[id]
	opts := e.opts
	newCap := opts.Capacity * 2
	for newCap < minCapacity {
		newCap *= 2
	}
	opts.Capacity = newCap
	arena, err := r.build(opts)
	if err != nil {
		return nil, err
	}
	r.log.Debug("arena grown",
		zap.String("name", e.name),
		zap.Int("old_capacity", e.opts.Capacity),
		zap.Int("new_capacity", newCap),
	)
	e.opts = opts
	e.arena = arena
	return arena, nil
}

// StatsAll snapshots the stats of every live arena by name.
func (r *Registry) StatsAll() map[string]Stats {
	out := make(map[string]Stats, len(r.entries))
	for _, e := range r.entries {
		if e.arena != nil {
			out[e.name] = e.arena.Stats()
		}
	}
	return out
}

// Close destroys every remaining arena, aggregating leak failures.
func (r *Registry) Close() error {
	var errs []error
	for id, e := range r.entries {
		if e.arena == nil {
			continue
		}
		if err := r.Destroy(ArenaID(id), false); err != nil {
			if errors.Is(err, ErrArenaInUse) {
				errs = append(errs, err)
				_ = r.Destroy(ArenaID(id), true)
				continue
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
