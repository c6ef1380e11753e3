package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// SchedulerStats is a point-in-time summary of the scheduler's task set,
// the supplemented counterpart to core/queue/scheduler.go's SchedulerStats.
type SchedulerStats struct {
	TasksRegistered int
	TasksRunning    int
	TasksPaused     int
	TasksStopped    int
	TasksCancelled  int
	CallbackErrors  int64
}

// Scheduler holds a registry of periodic Tasks and drives their dispatch.
// It is safe for concurrent use: Register/Deregister/Start/Stop/Stats may
// all be called from different goroutines.
//
// Following core/queue/scheduler.go's shape: a registry guarded by mu, an
// atomic running flag so a second Start is rejected, Stop is idempotent,
// and both are cheap to query, an
// errgroup supervising the background dispatch-loop goroutine, and the
// Executor's own WaitGroup (see executor.go) draining in-flight task
// invocations on Stop.
type Scheduler struct {
	opts *schedulerOptions

	mu    sync.RWMutex
	tasks map[string]*Task
	order []string // registration order, for stable priority-tie dispatch order

	executor *Executor
	loop     *dispatchLoop

	running atomic.Bool
	cancel  context.CancelFunc
	eg      *errgroup.Group
}

// New builds a Scheduler from cfg, applying opts on top of cfg's defaults.
// It does not start dispatching; call Start for that.
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	o := defaultSchedulerOptions(cfg)
	for _, opt := range opts {
		opt(o)
	}
	if o.checkInterval <= 0 {
		return nil, fmt.Errorf("%w: check interval must be positive, got %s", ErrInvalidSpec, o.checkInterval)
	}

	s := &Scheduler{
		opts:     o,
		tasks:    make(map[string]*Task),
		executor: newExecutor(o.logger),
	}
	s.loop = newDispatchLoop(s.executor, o.clock, o.checkInterval, o.logger, s.snapshotTasks)
	return s, nil
}

// snapshotTasks returns the registered tasks in registration order. Called
// by dispatchLoop.Tick on every pass; takes the read lock only long enough
// to copy the slice.
func (s *Scheduler) snapshotTasks() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Task, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tasks[name])
	}
	return out
}

// Register adds a new periodic task running fn on the cadence and
// constraints described by spec, returning the Task handle used to
// subscribe callbacks and control its lifecycle. If spec.Name is empty, a
// name is derived from fn's own identity (core/queue/utils.go's
// qualifiedStructName pattern, applied to a func value instead of a
// struct). Registering a duplicate name returns ErrDuplicateName.
func (s *Scheduler) Register(fn TaskFunc, spec TaskSpec) (*Task, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: task function must not be nil", ErrInvalidSpec)
	}
	if spec.Name == "" {
		spec.Name = funcName(fn)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[spec.Name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateName, spec.Name)
	}

	task := newTask(spec, fn, s.opts.clock)
	s.tasks[spec.Name] = task
	s.order = append(s.order, spec.Name)
	s.opts.logger.Info("task registered",
		slog.String("task", spec.Name),
		slog.Duration("interval", spec.Interval),
		slog.String("priority", spec.Priority.String()))
	return task, nil
}

// funcName derives a human-readable identity for an anonymous TaskFunc,
// the same %T/reflect-based approach core/queue/utils.go uses for handler
// names, adapted to funcs (which have no struct type to format).
func funcName(fn TaskFunc) string {
	ptr := reflect.ValueOf(fn).Pointer()
	if rf := runtime.FuncForPC(ptr); rf != nil {
		return rf.Name()
	}
	return fmt.Sprintf("task-%d", ptr)
}

// Deregister removes a task by name. It always marks the task CANCELLED
// immediately (Task.Cancel, synchronously, from any status). If the task
// was RUNNING at that instant, the in-flight invocation runs to completion
// (or timeout) and the registry removal is deferred until that invocation's
// goroutine actually settles — tracked via currentRunDone, which is
// distinct from the synchronous status-change notification Cancel() fires
// — per spec.md §4.7 ("marks it CANCELLED and removes after the current run
// finishes"). Otherwise removal is immediate. Deregistering an unknown name
// returns ErrNotFound.
func (s *Scheduler) Deregister(name string) error {
	s.mu.RLock()
	task, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	done := task.currentRunDone()
	task.Cancel()

	if done == nil {
		s.mu.Lock()
		s.removeLocked(name)
		s.mu.Unlock()
		s.opts.logger.Info("task deregistered", slog.String("task", name))
		return nil
	}

	go func() {
		<-done
		s.mu.Lock()
		s.removeLocked(name)
		s.mu.Unlock()
		s.opts.logger.Info("task deregistered after in-flight run finished", slog.String("task", name))
	}()
	return nil
}

// removeLocked deletes name from the registry and registration order.
// Caller must hold s.mu.
func (s *Scheduler) removeLocked(name string) {
	delete(s.tasks, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Task returns the handle for a registered task by name.
func (s *Scheduler) Task(name string) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[name]
	return task, ok
}

// Tasks returns every registered task, in registration order.
func (s *Scheduler) Tasks() []*Task {
	return s.snapshotTasks()
}

// Start begins dispatching registered tasks. In ModeBackground (the
// default) it launches the dispatch loop on its own goroutine and returns
// immediately; in ModeForeground it blocks on the caller's goroutine until
// ctx is cancelled or Stop is called, mirroring core/queue/scheduler.go's
// Start. Calling Start twice returns ErrAlreadyStarted.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.opts.logger.Info("scheduler starting", slog.String("mode", string(s.opts.mode)), slog.Duration("check_interval", s.opts.checkInterval))

	if s.opts.mode == ModeForeground {
		s.loop.Run(runCtx)
		s.running.Store(false)
		s.opts.logger.Info("scheduler stopped")
		return nil
	}

	eg, egCtx := errgroup.WithContext(runCtx)
	s.eg = eg
	eg.Go(func() error {
		s.loop.Run(egCtx)
		return nil
	})
	return nil
}

// Run adapts Start/Stop to the errgroup.Group.Go idiom
// core/queue/service.go uses: the returned func starts the scheduler in
// ModeForeground-equivalent blocking fashion and only returns once ctx is
// cancelled or Stop is called, making `g.Go(sched.Run(ctx))` the natural way to fold a
// Scheduler into a larger supervised goroutine group.
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error {
		if !s.running.CompareAndSwap(false, true) {
			return ErrAlreadyStarted
		}
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.loop.Run(runCtx)
		s.running.Store(false)
		return nil
	}
}

// Stop signals the dispatch loop to stop selecting new work, requests
// cooperative cancellation of every currently RUNNING task's token (the
// same Task.Stop used by an individual handle), and waits up to
// ShutdownGrace for both the background goroutine (ModeBackground only)
// and the Executor's WaitGroup of in-flight invocations to drain — mirroring
// core/queue/scheduler.go's Stop, which races its own s.wg.Wait() against a
// shutdown-timeout timer. Calling Stop when not started is a no-op.
func (s *Scheduler) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.opts.logger.Info("scheduler stopping", slog.Duration("shutdown_grace", s.opts.shutdownGrace))
	if s.cancel != nil {
		s.cancel()
	}

	for _, task := range s.snapshotTasks() {
		if task.Status() == StatusRunning {
			_ = task.Stop()
		}
	}

	done := make(chan struct{})
	go func() {
		if s.eg != nil {
			_ = s.eg.Wait()
		}
		s.executor.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.opts.shutdownGrace)
	defer timer.Stop()

	select {
	case <-done:
		s.opts.logger.Info("scheduler stopped")
		return nil
	case <-timer.C:
		s.opts.logger.Warn("scheduler shutdown grace period exceeded", slog.Duration("shutdown_grace", s.opts.shutdownGrace))
		return fmt.Errorf("%w: dispatch loop did not stop within %s", ErrIllegalState, s.opts.shutdownGrace)
	}
}

// RunOnce performs a single dispatch pass at the given instant, bypassing
// the real ticker entirely. It is the deterministic-testing entry point
// built on the synchronous Tick described in SPEC_FULL.md §4: combined with
// FixedClock, it lets a test drive the scheduler tick-by-tick without
// waiting on wall-clock time.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) {
	s.loop.Tick(ctx, now)
}

// Running reports whether Start has been called without a matching Stop.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Stats summarizes the current task set.
func (s *Scheduler) Stats() SchedulerStats {
	tasks := s.snapshotTasks()
	stats := SchedulerStats{TasksRegistered: len(tasks)}
	var callbackErrors int64
	for _, t := range tasks {
		switch t.Status() {
		case StatusRunning:
			stats.TasksRunning++
		case StatusPaused:
			stats.TasksPaused++
		case StatusStopped:
			stats.TasksStopped++
		case StatusCancelled:
			stats.TasksCancelled++
		}
		callbackErrors += t.callbacks.CallbackErrors()
	}
	stats.CallbackErrors = callbackErrors
	return stats
}

// Healthcheck reports whether the scheduler is running and has at least
// one registered task, mirroring core/queue/scheduler.go's Healthcheck
// (an error wrapping both ErrHealthcheckFailed and the specific cause).
func (s *Scheduler) Healthcheck(ctx context.Context) error {
	if !s.Running() {
		return fmt.Errorf("%w: %w", ErrHealthcheckFailed, ErrSchedulerNotRunning)
	}
	s.mu.RLock()
	n := len(s.tasks)
	s.mu.RUnlock()
	if n == 0 {
		return fmt.Errorf("%w: %w", ErrHealthcheckFailed, ErrNoTasksRegistered)
	}
	return nil
}

// namesSorted returns every registered task name in lexical order,
// regardless of registration order. Nothing in this package calls it.
func (s *Scheduler) namesSorted() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
