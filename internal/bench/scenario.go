// Package bench loads benchmark scenarios from YAML and drives them through
// the runtime, exercising the allocator and entity paths the way a game loop
// would.
package bench

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario describes one benchmark workload: how many entities to spawn,
// which share of them carries each component, and how much per-tick churn to
// apply.
type Scenario struct {
	Name     string `yaml:"name"`
	Entities int    `yaml:"entities"`
	Ticks    int    `yaml:"ticks"`

	// Component coverage, in percent of the spawned entities.
	PositionPct int `yaml:"position_pct"`
	VelocityPct int `yaml:"velocity_pct"`
	HealthPct   int `yaml:"health_pct"`

	// ChurnPerTick entities are destroyed and respawned every tick.
	ChurnPerTick int `yaml:"churn_per_tick"`
}

type scenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadScenarios loads scenario definitions from YAML.
func LoadScenarios(path string) ([]Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bench: read %s: %w", path, err)
	}

	var f scenarioFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("bench: parse %s: %w", path, err)
	}
	if len(f.Scenarios) == 0 {
		return nil, fmt.Errorf("bench: %s defines no scenarios", path)
	}
	for i := range f.Scenarios {
		if err := f.Scenarios[i].validate(); err != nil {
			return nil, fmt.Errorf("bench: %s: %w", path, err)
		}
	}
	return f.Scenarios, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario without a name")
	}
	if s.Entities <= 0 {
		return fmt.Errorf("scenario %q: entities must be positive", s.Name)
	}
	if s.Ticks <= 0 {
		return fmt.Errorf("scenario %q: ticks must be positive", s.Name)
	}
	for _, pct := range []int{s.PositionPct, s.VelocityPct, s.HealthPct} {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("scenario %q: component percentages must be 0..100", s.Name)
		}
	}
	if s.ChurnPerTick < 0 || s.ChurnPerTick > s.Entities {
		return fmt.Errorf("scenario %q: churn_per_tick must be 0..entities", s.Name)
	}
	return nil
}
