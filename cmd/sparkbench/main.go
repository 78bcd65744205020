// Command sparkbench runs the YAML benchmark scenarios against the engine
// runtime and prints per-scenario timing and arena usage.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pkg/profile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sparkgo/spark"
	"github.com/sparkgo/spark/internal/bench"
	"github.com/sparkgo/spark/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Output helpers ────────────────────────────────────────────────

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label, value string) {
	dotsLen := 42 - len(label) - len(value)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), value)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

// ── Benchmark driver ──────────────────────────────────────────────

func run() error {
	var (
		cfgPath   = flag.String("config", "config/spark.toml", "runtime configuration file")
		scenarios = flag.String("scenarios", "", "scenario file (overrides the config)")
		profMode  = flag.String("profile", "", "enable profiling: cpu or mem")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *scenarios != "" {
		cfg.Bench.ScenarioFile = *scenarios
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	switch *profMode {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
	default:
		return fmt.Errorf("unknown profile mode %q", *profMode)
	}

	scs, err := bench.LoadScenarios(cfg.Bench.ScenarioFile)
	if err != nil {
		return err
	}
	printOK(fmt.Sprintf("loaded %d scenarios from %s", len(scs), cfg.Bench.ScenarioFile))

	for _, sc := range scs {
		rt, err := spark.New(cfg, log)
		if err != nil {
			return fmt.Errorf("build runtime: %w", err)
		}
		runner, err := bench.NewRunner(rt, log)
		if err != nil {
			rt.Close()
			return fmt.Errorf("build runner: %w", err)
		}
		rep, err := runner.Run(sc)
		if err != nil {
			rt.Close()
			return err
		}
		printReport(rep)
		if err := rt.Close(); err != nil {
			return fmt.Errorf("scenario %q teardown: %w", sc.Name, err)
		}
	}
	return nil
}

func printReport(rep *bench.Report) {
	fmt.Println()
	printSection(rep.Scenario)
	printStat("entities", fmt.Sprintf("%d", rep.Entities))
	printStat("ticks", fmt.Sprintf("%d", rep.Ticks))
	printStat("elapsed", rep.Elapsed.Round(time.Microsecond).String())
	printStat("ticks/sec", fmt.Sprintf("%.0f", rep.TicksSec))

	names := make([]string, 0, len(rep.ArenaUsed))
	for name := range rep.ArenaUsed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := rep.ArenaUsed[name]
		printStat("arena "+name, fmt.Sprintf("%d/%d B", st.Used, st.Capacity))
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
