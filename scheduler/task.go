package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a task's lifecycle state. See the doc comment on Task for the
// invariants, and Task's methods (Pause, Resume, Stop, Cancel, Reset) plus
// the executor for the transitions.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusPaused
	StatusStopped
	StatusCancelled
)

// String returns a human-readable name for s.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusPaused:
		return "paused"
	case StatusStopped:
		return "stopped"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// schedulable reports whether a task in this status is eligible to be
// considered for dispatch (the set from spec.md §4.3's "Due-ness" rule).
func (s Status) schedulable() bool {
	return s == StatusPending || s == StatusCompleted || s == StatusFailed
}

// TaskFunc is a user-supplied callable run periodically by the scheduler.
// It receives a context that is cancelled, cooperatively, on stop() or on
// max_running_time expiry; well-behaved callables should observe ctx.Done().
type TaskFunc func(ctx context.Context) error

// TaskView is a read-only snapshot of a Task's observable state, the shape
// delivered to callbacks and returned by Task.Snapshot.
type TaskView struct {
	Name              string
	Status            Status
	RunCount          int64
	SuccessCount      int64
	ErrorCount        int64
	LastError         error
	LastRunStartedAt  *time.Time
	LastRunFinishedAt *time.Time
	NextDueAt         time.Time
}

// Task is one registered periodic task: its immutable TaskSpec, its
// callable, and its mutable runtime state (status, counters, timestamps,
// callbacks).
//
// Invariants upheld by every method on Task (spec.md §3):
//  1. At most one execution of a given Task runs at a time.
//  2. Status is RUNNING iff the body is currently executing.
//  3. run_count == success_count + error_count + (1 if currently running else 0).
//  4. COMPLETED/FAILED pass through PENDING (with a status-change
//     notification) when the first dispatch at or after next_due_at begins;
//     until then they keep reading COMPLETED/FAILED.
//  5. STOPPED/CANCELLED are sticky until reset().
//  6. PAUSED is sticky until resume().
//
// Two mutexes cooperate: mu guards the field values themselves; notifyMu
// serializes the mutate-then-notify sequence of a full transition so that
// concurrent transitions are delivered to status-change callbacks in the
// same order they were applied, without ever holding mu while user callback
// code runs (core/queue's CallbackRegistry snapshot-on-notify policy,
// generalized to preserve ordering across goroutines).
type Task struct {
	spec  TaskSpec
	fn    TaskFunc
	clock Clock

	notifyMu sync.Mutex

	mu                sync.Mutex
	status            Status
	nextDueAt         time.Time
	lastRunStartedAt  *time.Time
	lastRunFinishedAt *time.Time
	runCount          int64
	successCount      int64
	errorCount        int64
	lastError         *TaskError
	cancelRun         context.CancelFunc
	stopRequested     bool
	runDone           chan struct{} // non-nil while an invocation is in flight; closed by finishRun

	callbacks *CallbackRegistry
}

// newTask constructs a Task in its initial PENDING state, per spec.md §4.3:
// next_due_at is now if StartImmediately, else now+interval.
func newTask(spec TaskSpec, fn TaskFunc, clock Clock) *Task {
	now := clock.Now()
	due := now
	if !spec.StartImmediately {
		due = now.Add(spec.Interval)
	}
	return &Task{
		spec:      spec,
		fn:        fn,
		clock:     clock,
		status:    StatusPending,
		nextDueAt: due,
		callbacks: newCallbackRegistry(),
	}
}

// Name returns the task's registered name.
func (t *Task) Name() string { return t.spec.Name }

// Spec returns the task's immutable configuration.
func (t *Task) Spec() TaskSpec { return t.spec }

// Status returns the task's current lifecycle state.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// currentRunDone returns the channel that finishRun closes when the
// in-flight invocation, if any, actually returns. It is nil if no invocation
// is currently in flight. Unlike a status-change notification — which for
// Cancel() fires synchronously, before the body has returned — this
// reflects when the goroutine itself settles, which is what Deregister
// needs to wait on before it is safe to drop the task from the registry.
func (t *Task) currentRunDone() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runDone
}

// Snapshot returns a read-only view of the task's current observable state.
func (t *Task) Snapshot() TaskView {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.viewLocked()
}

// viewLocked builds a TaskView. Caller must hold t.mu.
func (t *Task) viewLocked() TaskView {
	var lastErr error
	if t.lastError != nil {
		lastErr = t.lastError
	}
	return TaskView{
		Name:              t.spec.Name,
		Status:            t.status,
		RunCount:          t.runCount,
		SuccessCount:      t.successCount,
		ErrorCount:        t.errorCount,
		LastError:         lastErr,
		LastRunStartedAt:  t.lastRunStartedAt,
		LastRunFinishedAt: t.lastRunFinishedAt,
		NextDueAt:         t.nextDueAt,
	}
}

// OnStatusChange subscribes to every status transition of this task.
func (t *Task) OnStatusChange(fn StatusChangeFunc) uuid.UUID { return t.callbacks.AddStatusChange(fn) }

// OnSuccess subscribes to successful completions of this task.
func (t *Task) OnSuccess(fn SuccessFunc) uuid.UUID { return t.callbacks.AddSuccess(fn) }

// OnFailure subscribes to failed completions (including timeouts) of this task.
func (t *Task) OnFailure(fn FailureFunc) uuid.UUID { return t.callbacks.AddFailure(fn) }

// RemoveCallback unsubscribes a previously registered callback by its token.
func (t *Task) RemoveCallback(id uuid.UUID) { t.callbacks.Remove(id) }

// withNotifyOrder serializes a mutate-then-notify sequence against every
// other transition of this task, without holding t.mu while fn's
// notification calls run.
func (t *Task) withNotifyOrder(fn func()) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()
	fn()
}

// Pause moves a schedulable (PENDING/COMPLETED/FAILED) task to PAUSED. It
// fails with ErrIllegalState if the task is RUNNING, already PAUSED, or
// sticky (STOPPED/CANCELLED).
func (t *Task) Pause() error {
	var retErr error
	t.withNotifyOrder(func() {
		t.mu.Lock()
		if !t.status.schedulable() {
			retErr = fmt.Errorf("%w: cannot pause task %q in status %s", ErrIllegalState, t.spec.Name, t.status)
			t.mu.Unlock()
			return
		}
		old := t.status
		t.status = StatusPaused
		view := t.viewLocked()
		t.mu.Unlock()
		t.callbacks.notifyStatusChange(view, old, StatusPaused)
	})
	return retErr
}

// Resume moves a PAUSED task back to PENDING, preserving next_due_at (so an
// overdue task resumes immediately eligible for dispatch).
func (t *Task) Resume() error {
	var retErr error
	t.withNotifyOrder(func() {
		t.mu.Lock()
		if t.status != StatusPaused {
			retErr = fmt.Errorf("%w: cannot resume task %q in status %s", ErrIllegalState, t.spec.Name, t.status)
			t.mu.Unlock()
			return
		}
		t.status = StatusPending
		view := t.viewLocked()
		t.mu.Unlock()
		t.callbacks.notifyStatusChange(view, StatusPaused, StatusPending)
	})
	return retErr
}

// Stop requests the task stop being scheduled. If the task is currently
// RUNNING, the in-flight invocation's context is cancelled cooperatively
// and the transition to STOPPED happens once that invocation returns (no
// success/failure callback fires for it). Otherwise the transition to
// STOPPED is immediate. STOPPED is sticky until Reset.
func (t *Task) Stop() error {
	var retErr error
	t.withNotifyOrder(func() {
		t.mu.Lock()
		switch t.status {
		case StatusStopped:
			t.mu.Unlock()
			return // idempotent
		case StatusRunning:
			t.stopRequested = true
			cancel := t.cancelRun
			t.mu.Unlock()
			if cancel != nil {
				cancel()
			}
			return // actual STOPPED transition happens in finishRun
		case StatusPending, StatusCompleted, StatusFailed, StatusPaused:
			old := t.status
			t.status = StatusStopped
			view := t.viewLocked()
			t.mu.Unlock()
			t.callbacks.notifyStatusChange(view, old, StatusStopped)
		default:
			old := t.status
			retErr = fmt.Errorf("%w: cannot stop task %q in status %s", ErrIllegalState, t.spec.Name, old)
			t.mu.Unlock()
		}
	})
	return retErr
}

// Cancel immediately transitions the task to CANCELLED from any state. If
// the task is RUNNING, its invocation's context is cancelled cooperatively,
// but (unlike Stop) the status transition happens right away rather than
// waiting for the invocation to return; the eventual finishRun call will
// see the task already CANCELLED and leave it alone. CANCELLED is sticky
// until Reset.
func (t *Task) Cancel() {
	t.withNotifyOrder(func() {
		t.mu.Lock()
		if t.status == StatusCancelled {
			t.mu.Unlock()
			return
		}
		old := t.status
		var cancel context.CancelFunc
		if old == StatusRunning {
			cancel = t.cancelRun
		}
		t.status = StatusCancelled
		view := t.viewLocked()
		t.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		t.callbacks.notifyStatusChange(view, old, StatusCancelled)
	})
}

// Reset returns a STOPPED or CANCELLED task to PENDING, re-deriving
// next_due_at exactly as at construction (now, or now+interval, depending
// on StartImmediately). Accumulated counters (run/success/error counts)
// persist across Reset.
func (t *Task) Reset() error {
	var retErr error
	t.withNotifyOrder(func() {
		t.mu.Lock()
		if t.status != StatusStopped && t.status != StatusCancelled {
			retErr = fmt.Errorf("%w: cannot reset task %q in status %s", ErrIllegalState, t.spec.Name, t.status)
			t.mu.Unlock()
			return
		}
		old := t.status
		now := t.clock.Now()
		if t.spec.StartImmediately {
			t.nextDueAt = now
		} else {
			t.nextDueAt = now.Add(t.spec.Interval)
		}
		t.status = StatusPending
		t.stopRequested = false
		view := t.viewLocked()
		t.mu.Unlock()
		t.callbacks.notifyStatusChange(view, old, StatusPending)
	})
	return retErr
}
