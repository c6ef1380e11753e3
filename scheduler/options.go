package scheduler

import (
	"io"
	"log/slog"
	"time"
)

// Option configures a Scheduler at construction time, in the teacher's
// functional-options style (core/queue/scheduler_options.go,
// worker_options.go): each Option mutates a private options struct, and a
// zero/invalid value is simply ignored rather than rejected, so callers
// can pass through possibly-unset config fields without special-casing
// them.
type Option func(*schedulerOptions)

type schedulerOptions struct {
	mode          Mode
	checkInterval time.Duration
	shutdownGrace time.Duration
	clock         Clock
	logger        *slog.Logger
}

// WithMode overrides the dispatch mode (foreground/background).
func WithMode(mode Mode) Option {
	return func(o *schedulerOptions) {
		if mode == ModeForeground || mode == ModeBackground {
			o.mode = mode
		}
	}
}

// WithCheckInterval overrides how frequently the dispatch loop scans for
// due tasks. Must be positive to take effect.
func WithCheckInterval(d time.Duration) Option {
	return func(o *schedulerOptions) {
		if d > 0 {
			o.checkInterval = d
		}
	}
}

// WithShutdownGrace overrides how long Stop waits for in-flight
// invocations to finish before abandoning them.
func WithShutdownGrace(d time.Duration) Option {
	return func(o *schedulerOptions) {
		if d > 0 {
			o.shutdownGrace = d
		}
	}
}

// WithClock injects a Clock, overriding the real system clock. Intended
// for tests; see FixedClock.
func WithClock(clock Clock) Option {
	return func(o *schedulerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the structured logger used for scheduler/task lifecycle
// events. The default is a no-op logger, matching core/queue's default of
// slog.New(slog.NewTextHandler(io.Discard, nil)) — this module carries no
// logging back-end of its own (spec.md §1 lists one as an external
// collaborator).
func WithLogger(logger *slog.Logger) Option {
	return func(o *schedulerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func defaultSchedulerOptions(cfg Config) *schedulerOptions {
	return &schedulerOptions{
		mode:          cfg.Mode,
		checkInterval: cfg.CheckInterval,
		shutdownGrace: cfg.ShutdownGrace,
		clock:         SystemClock(),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}
