// Package config provides configuration loading for cortexd.
package config

import (
	"fmt"

	"github.com/fyrsmithlabs/cortexd/internal/dispatch"
	"github.com/fyrsmithlabs/cortexd/internal/engine"
	"github.com/fyrsmithlabs/cortexd/internal/feedback"
	"github.com/fyrsmithlabs/cortexd/internal/learning"
	"github.com/fyrsmithlabs/cortexd/internal/metacog"
	"github.com/fyrsmithlabs/cortexd/internal/monitor"
	"github.com/fyrsmithlabs/cortexd/internal/planning"
	"github.com/fyrsmithlabs/cortexd/internal/understanding"
)

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`
}

// TelemetryConfig controls the OTEL provider.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// MemoryConfig sizes the per-user memory store.
type MemoryConfig struct {
	MaxTurns          int `koanf:"max_turns"`
	MaxClarifications int `koanf:"max_clarifications"`
}

// Config is the full cortexd configuration. Every cognitive component's
// heuristic constants are exposed here; the defaults mirror the platform's
// original uncalibrated literals.
type Config struct {
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`

	Memory        MemoryConfig         `koanf:"memory"`
	Understanding understanding.Config `koanf:"understanding"`
	Planning      planning.Config      `koanf:"planning"`
	Monitor       monitor.Config       `koanf:"monitor"`
	Feedback      feedback.Config      `koanf:"feedback"`
	Learning      learning.Config      `koanf:"learning"`
	MetaCog       metacog.Config       `koanf:"metacog"`
	Dispatch      dispatch.Config      `koanf:"dispatch"`
	Engine        engine.Config        `koanf:"engine"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Logging:   LoggingConfig{Level: "info", Format: "json"},
		Telemetry: TelemetryConfig{ServiceName: "cortexd"},
		Memory: MemoryConfig{
			MaxTurns:          20,
			MaxClarifications: 50,
		},
		Understanding: understanding.DefaultConfig(),
		Planning:      planning.DefaultConfig(),
		Monitor:       monitor.DefaultConfig(),
		Feedback:      feedback.DefaultConfig(),
		Learning:      learning.DefaultConfig(),
		MetaCog:       metacog.DefaultConfig(),
		Dispatch:      dispatch.DefaultConfig(),
		Engine:        engine.DefaultConfig(),
	}
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format %q", c.Logging.Format)
	}
	if c.Dispatch.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("dispatch.max_concurrent_tasks must be positive")
	}
	if c.Feedback.MaxIterations <= 0 {
		return fmt.Errorf("feedback.max_iterations must be positive")
	}
	if c.Monitor.SampleInterval <= 0 {
		return fmt.Errorf("monitor.sample_interval must be positive")
	}
	if c.Memory.MaxTurns <= 0 {
		return fmt.Errorf("memory.max_turns must be positive")
	}
	return nil
}
