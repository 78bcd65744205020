package bench

import (
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/sparkgo/spark"
	"github.com/sparkgo/spark/internal/core/ecs"
	"github.com/sparkgo/spark/internal/mem"
)

// Position is world placement, benchmark edition.
type Position struct {
	X, Y, Z float32
}

// Velocity moves a Position every tick.
type Velocity struct {
	DX, DY, DZ float32
}

// Health decays every tick and marks the entity for churn when empty.
type Health struct {
	HP, MaxHP int32
}

// Report summarizes one scenario run.
type Report struct {
	Scenario  string
	Entities  int
	Ticks     int
	Elapsed   time.Duration
	TicksSec  float64
	ArenaUsed map[string]mem.Stats
}

// Runner executes scenarios against a fresh runtime each.
type Runner struct {
	rt  *spark.Runtime
	log *zap.Logger
	rng *rand.Rand

	pos *ecs.Component[Position]
	vel *ecs.Component[Velocity]
	hp  *ecs.Component[Health]

	entities []ecs.EntityID
}

// NewRunner wires the benchmark components and systems into rt. The runtime
// is borrowed; the caller closes it.
func NewRunner(rt *spark.Runtime, log *zap.Logger) (*Runner, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runner{rt: rt, log: log, rng: rand.New(rand.NewSource(1))}

	var err error
	if r.pos, err = spark.RegisterComponent[Position](rt, "position"); err != nil {
		return nil, err
	}
	if r.vel, err = spark.RegisterComponent[Velocity](rt, "velocity"); err != nil {
		return nil, err
	}
	if r.hp, err = spark.RegisterComponent[Health](rt, "health"); err != nil {
		return nil, err
	}
	if err := r.registerSystems(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runner) registerSystems() error {
	err := r.rt.RegisterSystem("movement",
		[]ecs.ComponentID{r.vel.ID()},
		[]ecs.ComponentID{r.pos.ID()},
		func(dt time.Duration) {
			step := float32(dt.Seconds())
			q := r.rt.Query(r.pos.ID(), r.vel.ID())
			for q.Next() {
				e := q.Entity()
				p, _ := r.pos.Get(e)
				v, _ := r.vel.Get(e)
				p.X += v.DX * step
				p.Y += v.DY * step
				p.Z += v.DZ * step
			}
		})
	if err != nil {
		return fmt.Errorf("register movement: %w", err)
	}
	err = r.rt.RegisterSystem("decay",
		nil,
		[]ecs.ComponentID{r.hp.ID()},
		func(dt time.Duration) {
			q := r.rt.Query(r.hp.ID())
			for q.Next() {
				h, _ := r.hp.Get(q.Entity())
				if h.HP > 0 {
					h.HP--
				}
			}
		})
	if err != nil {
		return fmt.Errorf("register decay: %w", err)
	}
	return nil
}

// Run spawns the scenario's population, ticks it, and reports timing and
// arena usage. The population is torn down before returning so back-to-back
// scenarios start clean.
func (r *Runner) Run(sc Scenario) (*Report, error) {
	if err := r.spawn(sc.Entities, sc); err != nil {
		return nil, fmt.Errorf("scenario %q: %w", sc.Name, err)
	}
	r.log.Info("scenario start",
		zap.String("scenario", sc.Name),
		zap.Int("entities", sc.Entities),
		zap.Int("ticks", sc.Ticks),
	)

	const dt = 16 * time.Millisecond
	start := time.Now()
	for tick := 0; tick < sc.Ticks; tick++ {
		r.rt.Tick(dt)
		if sc.ChurnPerTick > 0 {
			if err := r.churn(sc); err != nil {
				return nil, fmt.Errorf("scenario %q tick %d: %w", sc.Name, tick, err)
			}
		}
	}
	elapsed := time.Since(start)

	rep := &Report{
		Scenario:  sc.Name,
		Entities:  sc.Entities,
		Ticks:     sc.Ticks,
		Elapsed:   elapsed,
		TicksSec:  float64(sc.Ticks) / elapsed.Seconds(),
		ArenaUsed: r.rt.Stats(),
	}
	if err := r.teardown(); err != nil {
		return nil, err
	}
	return rep, nil
}

func (r *Runner) spawn(n int, sc Scenario) error {
	for i := 0; i < n; i++ {
		e := r.rt.CreateEntity()
		r.entities = append(r.entities, e)
		if err := r.attach(e, i, sc); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) attach(e ecs.EntityID, i int, sc Scenario) error {
	if i%100 < sc.PositionPct {
		if err := r.pos.Add(e, Position{X: float32(i)}); err != nil {
			return fmt.Errorf("attach position: %w", err)
		}
	}
	if i%100 < sc.VelocityPct {
		if err := r.vel.Add(e, Velocity{DX: 1, DY: float32(i % 7)}); err != nil {
			return fmt.Errorf("attach velocity: %w", err)
		}
	}
	if i%100 < sc.HealthPct {
		if err := r.hp.Add(e, Health{HP: 100, MaxHP: 100}); err != nil {
			return fmt.Errorf("attach health: %w", err)
		}
	}
	return nil
}

// churn destroys random entities and respawns replacements, keeping the
// population size steady while recycling handle slots.
func (r *Runner) churn(sc Scenario) error {
	for i := 0; i < sc.ChurnPerTick; i++ {
		slot := r.rng.Intn(len(r.entities))
		if err := r.rt.DestroyEntity(r.entities[slot]); err != nil {
			return err
		}
		e := r.rt.CreateEntity()
		if err := r.attach(e, r.rng.Intn(100), sc); err != nil {
			return err
		}
		r.entities[slot] = e
	}
	return nil
}

func (r *Runner) teardown() error {
	for _, e := range r.entities {
		if err := r.rt.DestroyEntity(e); err != nil {
			return fmt.Errorf("teardown: %w", err)
		}
	}
	r.entities = r.entities[:0]
	return nil
}
