// Package config loads the runtime configuration from TOML, merging the
// file over built-in defaults.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Memory    MemoryConfig    `toml:"memory"`
	World     WorldConfig     `toml:"world"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Logging   LoggingConfig   `toml:"logging"`
	Bench     BenchConfig     `toml:"bench"`
}

type MemoryConfig struct {
	// Debug wraps every arena with guard bytes and allocation tracking.
	Debug bool `toml:"debug"`
	// FailHardOnLeak turns leak reports on teardown into errors.
	FailHardOnLeak bool `toml:"fail_hard_on_leak"`
	// DefaultArenaCapacity is the byte size of the registry's default arena.
	DefaultArenaCapacity int `toml:"default_arena_capacity"`
	// ComponentArenaCapacity is the starting byte size of each per-component arena.
	ComponentArenaCapacity int `toml:"component_arena_capacity"`
	// Alignment is the default allocation alignment.
	Alignment int `toml:"alignment"`
}

type WorldConfig struct {
	InitialEntityCapacity int `toml:"initial_entity_capacity"`
}

type SchedulerConfig struct {
	Parallel bool `toml:"parallel"`
	Workers  int  `toml:"workers"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // console or json
}

type BenchConfig struct {
	Ticks        int    `toml:"ticks"`
	ScenarioFile string `toml:"scenario_file"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Memory: MemoryConfig{
			Debug:                  true,
			FailHardOnLeak:         false,
			DefaultArenaCapacity:   4 * 1024 * 1024,
			ComponentArenaCapacity: 64 * 1024,
			Alignment:              8,
		},
		World: WorldConfig{
			InitialEntityCapacity: 1024,
		},
		Scheduler: SchedulerConfig{
			Parallel: false,
			Workers:  4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Bench: BenchConfig{
			Ticks:        1000,
			ScenarioFile: "bench/scenarios.yaml",
		},
	}
}
