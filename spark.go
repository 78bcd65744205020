// Package spark wires the arena registry, the entity-component world, and
// the system scheduler into one runtime with a defined construction and
// teardown order: arenas exist before the world, and outlive it only long
// enough for the teardown leak report.
package spark

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sparkgo/spark/internal/config"
	"github.com/sparkgo/spark/internal/core/ecs"
	"github.com/sparkgo/spark/internal/core/event"
	"github.com/sparkgo/spark/internal/core/system"
	"github.com/sparkgo/spark/internal/mem"
)

// Runtime is the assembled engine core. Arenas, World, and Systems are
// exposed directly; the wrappers below cover the common path.
type Runtime struct {
	log     *zap.Logger
	Arenas  *mem.Registry
	World   *ecs.World
	Systems *system.Scheduler
	Events  *event.Bus
}

// New builds a runtime from configuration.
func New(cfg *config.Config, log *zap.Logger) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	arenas, err := mem.NewRegistry(mem.Config{
		Debug:            cfg.Memory.Debug,
		FailHardOnLeak:   cfg.Memory.FailHardOnLeak,
		DefaultCapacity:  cfg.Memory.DefaultArenaCapacity,
		DefaultAlignment: cfg.Memory.Alignment,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("arena registry: %w", err)
	}
	world := ecs.NewWorld(arenas, log, ecs.Options{
		InitialEntityCapacity:  cfg.World.InitialEntityCapacity,
		ComponentArenaCapacity: cfg.Memory.ComponentArenaCapacity,
		Alignment:              cfg.Memory.Alignment,
	})
	sched := system.NewScheduler(world, log, system.Options{
		Parallel: cfg.Scheduler.Parallel,
		Workers:  cfg.Scheduler.Workers,
	})
	return &Runtime{
		log:     log,
		Arenas:  arenas,
		World:   world,
		Systems: sched,
		Events:  event.NewBus(),
	}, nil
}

// RegisterComponent adds a component type to the runtime's world.
func RegisterComponent[T any](r *Runtime, name string) (*ecs.Component[T], error) {
	return ecs.Register[T](r.World, name)
}

// CreateEntity allocates an entity handle and announces it on the bus.
func (r *Runtime) CreateEntity() ecs.EntityID {
	e := r.World.CreateEntity()
	event.Emit(r.Events, event.EntityCreated{Entity: e})
	return e
}

// DestroyEntity destroys an entity, deferred to end-of-tick while ticking.
// Accepted destructions go out on the bus for delivery next tick.
func (r *Runtime) DestroyEntity(e ecs.EntityID) error {
	if err := r.World.DestroyEntity(e); err != nil {
		return err
	}
	event.Emit(r.Events, event.EntityDestroyed{Entity: e})
	return nil
}

// Alive reports whether a handle is still valid.
func (r *Runtime) Alive(e ecs.EntityID) bool { return r.World.Alive(e) }

// Query iterates the entities holding all the given component types.
func (r *Runtime) Query(ids ...ecs.ComponentID) *ecs.Query { return r.World.Query(ids...) }

// RegisterSystem registers a per-tick callback with its declared access sets.
func (r *Runtime) RegisterSystem(name string, reads, writes []ecs.ComponentID, fn system.Func) error {
	return r.Systems.Register(name, reads, writes, fn)
}

// Tick delivers last tick's events, runs every system once, and flushes
// deferred structural changes.
func (r *Runtime) Tick(dt time.Duration) {
	r.Events.SwapBuffers()
	r.Events.DispatchAll()
	r.Systems.Tick(dt)
}

// Stats snapshots every arena's usage.
func (r *Runtime) Stats() map[string]mem.Stats { return r.World.ArenaStats() }

// Close tears the runtime down: the world returns its storage to the arenas,
// then the arenas are destroyed. Leaks found by debug arenas are logged here.
func (r *Runtime) Close() error {
	if err := r.World.Close(); err != nil {
		r.log.Warn("world teardown", zap.Error(err))
	}
	if err := r.Arenas.Close(); err != nil {
		r.log.Warn("arena teardown reported leaks", zap.Error(err))
		return err
	}
	return nil
}
