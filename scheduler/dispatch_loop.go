package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// dispatchLoop periodically scans the registered task set, selects tasks
// that are due and admitted, orders them by priority, and hands each to an
// Executor. It is deliberately small and stateless beyond its
// configuration: Scheduler owns the task registry, and dispatchLoop only
// knows how to turn "the registered tasks, right now" into dispatched
// invocations, once per Tick call or on the real ticker that Run creates.
type dispatchLoop struct {
	executor      *Executor
	clock         Clock
	checkInterval time.Duration
	logger        *slog.Logger

	snapshot func() []*Task // supplied by Scheduler; returns tasks in registration order
}

// newDispatchLoop builds a dispatchLoop. snapshot must return the
// currently-registered tasks in stable registration order, used as the
// final tie-breaker in candidate sort order.
func newDispatchLoop(executor *Executor, clock Clock, checkInterval time.Duration, logger *slog.Logger, snapshot func() []*Task) *dispatchLoop {
	return &dispatchLoop{
		executor:      executor,
		clock:         clock,
		checkInterval: checkInterval,
		logger:        logger,
		snapshot:      snapshot,
	}
}

// Run ticks the loop on a real ticker until ctx is cancelled. It ticks
// once immediately on entry (so a freshly started scheduler doesn't wait a
// full check_interval for its first pass), matching
// core/queue/scheduler.go's Start behavior.
func (l *dispatchLoop) Run(ctx context.Context) {
	l.Tick(ctx, l.clock.Now())

	ticker := time.NewTicker(l.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick(ctx, l.clock.Now())
		}
	}
}

// Tick performs exactly one scan/admit/sort/dispatch pass at the given
// instant. It is the unit tests (and Scheduler.RunOnce) drive directly
// against an injected Clock, instead of waiting on a real ticker — the
// same role core/queue's tyemirov-utils-style RunOnce plays for scheduler
// tests in the retrieved pack.
func (l *dispatchLoop) Tick(ctx context.Context, now time.Time) {
	tasks := l.snapshot()

	type candidate struct {
		task  *Task
		index int // registration order, for stable tie-breaking
	}
	candidates := make([]candidate, 0, len(tasks))
	for i, task := range tasks {
		if l.isCandidate(task, now) {
			candidates = append(candidates, candidate{task: task, index: i})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		pa, pb := a.task.spec.Priority, b.task.spec.Priority
		if pa != pb {
			return pa > pb // priority descending
		}
		da, db := a.task.Snapshot().NextDueAt, b.task.Snapshot().NextDueAt
		if !da.Equal(db) {
			return da.Before(db) // earlier due time first
		}
		return a.index < b.index // stable registration order
	})

	if len(candidates) == 0 {
		l.logger.DebugContext(ctx, "dispatch tick found no due tasks", slog.Int("registered", len(tasks)))
		return
	}

	l.logger.DebugContext(ctx, "dispatch tick selected candidates",
		slog.Int("candidates", len(candidates)), slog.Int("registered", len(tasks)))
	for _, c := range candidates {
		l.logger.DebugContext(ctx, "dispatching task", slog.String("task", c.task.spec.Name))
		l.executor.Dispatch(c.task, now)
	}
}

// isCandidate is a cheap, lock-protected due+admitted pre-check used only
// to build the sorted candidate list; the authoritative check happens
// again inside Executor.Dispatch's compare-and-set, which is why a
// candidate here can still be silently skipped at launch time (the
// admission race documented in spec.md §4.6).
func (l *dispatchLoop) isCandidate(task *Task, now time.Time) bool {
	view := task.Snapshot()
	if !view.Status.schedulable() {
		return false
	}
	if now.Before(view.NextDueAt) {
		return false
	}
	return AdmitsAny(task.spec.TimeWindows, TimeOfDayOf(now))
}
