// Package system runs the per-tick update callbacks against the world.
// Systems declare the component sets they read and write; the scheduler
// turns conflicting access into a registration-time error instead of a
// runtime race, and in parallel mode partitions systems into stages whose
// members touch disjoint data.
package system

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sparkgo/spark/internal/core/ecs"
)

// ErrSystemConflict is returned at registration time when a system's
// declared access sets overlap another system's within the same parallel
// stage (write/write, or write against read).
var ErrSystemConflict = errors.New("system: conflicting access sets")

// Func is a per-tick system callback. It must confine itself to the
// component types it declared; a long-running system blocks the tick.
type Func func(dt time.Duration)

type systemEntry struct {
	name   string
	reads  ecs.Mask
	writes ecs.Mask
	fn     Func
	stage  int
}

// Options configures a scheduler.
type Options struct {
	// Parallel dispatches each stage on the worker pool instead of running
	// every system sequentially in registration order.
	Parallel bool
	// Workers is the fixed worker pool size for parallel mode.
	Workers int
}

// Scheduler owns the registered systems and drives them once per Tick.
// Baseline execution is single-threaded in registration order. In parallel
// mode the stages run in order, each stage's members concurrently on the
// worker pool, with a join barrier after every stage; all systems complete
// before the tick returns.
type Scheduler struct {
	world    *ecs.World
	log      *zap.Logger
	parallel bool
	workers  int
	systems  []*systemEntry
	stages   [][]*systemEntry
	ticks    uint64
}

func NewScheduler(world *ecs.World, log *zap.Logger, opts Options) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Scheduler{
		world:    world,
		log:      log,
		parallel: opts.Parallel,
		workers:  opts.Workers,
	}
}

// Register adds a system. The scheduler places it in the first stage whose
// members it does not conflict with, so auto-placed systems never fail the
// conflict check.
func (s *Scheduler) Register(name string, reads, writes []ecs.ComponentID, fn Func) error {
	entry, err := s.newEntry(name, reads, writes, fn)
	if err != nil {
		return err
	}
	stage := 0
	for ; stage < len(s.stages); stage++ {
		if !s.stageConflicts(stage, entry) {
			break
		}
	}
	s.place(entry, stage)
	return nil
}

// RegisterInStage adds a system to an explicit parallel stage. It fails with
// ErrSystemConflict when the declared sets overlap a member of that stage.
func (s *Scheduler) RegisterInStage(name string, stage int, reads, writes []ecs.ComponentID, fn Func) error {
	if stage < 0 {
		return fmt.Errorf("system %q: negative stage %d", name, stage)
	}
	entry, err := s.newEntry(name, reads, writes, fn)
	if err != nil {
		return err
	}
	if s.stageConflicts(stage, entry) {
		return fmt.Errorf("%w: system %q in stage %d", ErrSystemConflict, name, stage)
	}
	s.place(entry, stage)
	return nil
}

func (s *Scheduler) newEntry(name string, reads, writes []ecs.ComponentID, fn Func) (*systemEntry, error) {
	if fn == nil {
		return nil, fmt.Errorf("system %q: nil callback", name)
	}
	for _, e := range s.systems {
		if e.name == name {
			return nil, fmt.Errorf("system %q already registered", name)
		}
	}
	return &systemEntry{
		name:   name,
		reads:  ecs.MaskOf(reads...),
		writes: ecs.MaskOf(writes...),
		fn:     fn,
	}, nil
}

func (s *Scheduler) stageConflicts(stage int, entry *systemEntry) bool {
	if stage >= len(s.stages) {
		return false
	}
	for _, member := range s.stages[stage] {
		if conflicts(member, entry) {
			return true
		}
	}
	return false
}

func conflicts(a, b *systemEntry) bool {
	return a.writes.Overlaps(b.writes) ||
		a.writes.Overlaps(b.reads) ||
		a.reads.Overlaps(b.writes)
}

func (s *Scheduler) place(entry *systemEntry, stage int) {
	for len(s.stages) <= stage {
		s.stages = append(s.stages, nil)
	}
	entry.stage = stage
	s.stages[stage] = append(s.stages[stage], entry)
	s.systems = append(s.systems, entry)
	s.log.Debug("system registered",
		zap.String("name", entry.name),
		zap.Int("stage", stage),
	)
}

// Len returns the number of registered systems.
func (s *Scheduler) Len() int { return len(s.systems) }

// Tick runs every system once. Structural mutations systems issue are
// flushed by the world when the tick ends.
func (s *Scheduler) Tick(dt time.Duration) {
	s.world.BeginTick()
	if s.parallel {
		s.tickParallel(dt)
	} else {
		for _, e := range s.systems {
			e.fn(dt)
		}
	}
	s.world.EndTick()
	s.ticks++
}

// tickParallel runs the stages in order. Each stage's systems go to the
// fixed worker pool, one system per worker at a time, and the stage joins
// before the next one starts.
func (s *Scheduler) tickParallel(dt time.Duration) {
	for _, stage := range s.stages {
		if len(stage) == 0 {
			continue
		}
		var g errgroup.Group
		g.SetLimit(s.workers)
		for _, e := range stage {
			fn := e.fn
			g.Go(func() error {
				fn(dt)
				return nil
			})
		}
		// Systems return no errors; Wait is only the join barrier.
		_ = g.Wait()
	}
}

// Ticks returns how many ticks have completed.
func (s *Scheduler) Ticks() uint64 { return s.ticks }
