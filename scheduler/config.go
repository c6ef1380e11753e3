package scheduler

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Mode selects how Scheduler.Start drives the dispatch loop.
type Mode string

const (
	// ModeBackground starts the dispatch loop on its own goroutine and
	// returns immediately.
	ModeBackground Mode = "background"
	// ModeForeground runs the dispatch loop on the caller's goroutine,
	// blocking Start until Stop is called or ctx is cancelled.
	ModeForeground Mode = "foreground"
)

// Config holds the Scheduler's environment-overridable defaults, following
// the same env/envDefault-tagged-struct convention core/queue/config.go
// uses for its worker/scheduler/enqueuer defaults.
type Config struct {
	Mode          Mode          `env:"SCHEDULER_MODE" envDefault:"background"`
	CheckInterval time.Duration `env:"SCHEDULER_CHECK_INTERVAL" envDefault:"100ms"`
	ShutdownGrace time.Duration `env:"SCHEDULER_SHUTDOWN_GRACE" envDefault:"5s"`
}

// DefaultConfig returns the built-in defaults from spec.md §6, without
// touching the environment.
func DefaultConfig() Config {
	return Config{
		Mode:          ModeBackground,
		CheckInterval: 100 * time.Millisecond,
		ShutdownGrace: 5 * time.Second,
	}
}

// LoadConfig returns DefaultConfig overridden by any matching environment
// variables. Unlike the teacher's core/config package (a generic,
// cross-type caching loader), this module has exactly one configuration
// type, so there's no cache to maintain — LoadConfig is a direct
// env.Parse call every time it's invoked.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load scheduler config: %w", err)
	}
	return cfg, nil
}

// MustLoadConfig is LoadConfig, panicking on error. Intended for startup
// paths where a misconfigured environment should fail fast.
func MustLoadConfig() Config {
	cfg, err := LoadConfig()
	if err != nil {
		panic(err)
	}
	return cfg
}
