package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Executor runs a single task invocation in isolation: it performs the
// dispatch-time compare-and-set onto RUNNING, launches the callable on its
// own goroutine, enforces max_running_time if set, and records the outcome.
// It holds no per-task state of its own — everything it touches lives on
// the Task passed to Dispatch — so a single Executor safely serves every
// task in a scheduler.
//
// wg tracks every goroutine started by Dispatch so Scheduler.Stop can wait
// for in-flight invocations to settle before returning, the same shutdown
// draining core/queue/scheduler.go does with its own WaitGroup.
type Executor struct {
	logger *slog.Logger
	wg     sync.WaitGroup
}

// newExecutor returns an Executor that logs through logger.
func newExecutor(logger *slog.Logger) *Executor {
	return &Executor{logger: logger}
}

// Dispatch attempts to launch task's callable for this tick. If the
// compare-and-set onto RUNNING fails — the task was no longer due, was
// paused/stopped/cancelled concurrently, or its admission window closed
// between selection and launch — the attempt is abandoned silently, per
// spec.md §4.5 step 1 and §4.6's admission race note. Dispatch itself never
// blocks: the callable runs on its own goroutine, tracked on e.wg until it
// settles.
func (e *Executor) Dispatch(task *Task, now time.Time) {
	ctx, cancel, ok := task.tryBeginRun(now)
	if !ok {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(task, ctx, cancel)
	}()
}

// Wait blocks until every goroutine started by Dispatch has returned. Used
// by Scheduler.Stop to drain in-flight invocations under its shutdown
// grace timeout.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// run executes one invocation to completion (or to timeout) and reports the
// outcome back onto the task. cancel is always invoked at least once, so the
// run context is never left un-cancelled: on the timeout path it is called
// immediately, waking the in-flight body's ctx.Done() before the outcome is
// recorded (the deferred call then runs as well, harmlessly); the deferred
// call covers the normal-completion path and any early return.
func (e *Executor) run(task *Task, ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	var timer *time.Timer
	timedOut := make(chan struct{})
	if d := task.spec.MaxRunningTime; d > 0 {
		timer = time.AfterFunc(d, func() { close(timedOut) })
		defer timer.Stop()
	}

	done := make(chan error, 1)
	go func() {
		done <- e.invoke(task, ctx)
	}()

	select {
	case err := <-done:
		task.finishRun(task.clock.Now(), err, false)
	case <-timedOut:
		cancel() // wake the in-flight body via ctx.Done() before recording the timeout
		e.logger.Warn("task exceeded max running time",
			slog.String("task", task.spec.Name),
			slog.Duration("max_running_time", task.spec.MaxRunningTime))
		task.finishRun(task.clock.Now(), nil, true)
		// The callable's own goroutine is left running (detached): forced
		// termination isn't portable. It will eventually observe ctx.Done(),
		// return, and write to done, which is buffered, so it never leaks
		// blocked on a send.
	}
}

// invoke calls the task's callable, converting a panic into a USER_EXCEPTION
// outcome so a single bad callable can't crash the dispatch loop.
func (e *Executor) invoke(task *Task, ctx context.Context) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic in task %q: %v", task.spec.Name, r)
			e.logger.Warn("recovered panic in task", slog.String("task", task.spec.Name), slog.Any("panic", r))
		}
	}()
	return task.fn(ctx)
}

// tryBeginRun performs the compare-and-set described in spec.md §4.5 step 1:
// it re-checks due-ness and window admission at this instant (not the
// instant the DispatchLoop selected the task at), auto-transitions a
// COMPLETED/FAILED task to PENDING first if needed (invariant 4), then to
// RUNNING, and returns a cooperative-cancellation context for the
// invocation.
func (t *Task) tryBeginRun(now time.Time) (context.Context, context.CancelFunc, bool) {
	var ctx context.Context
	var cancel context.CancelFunc
	var ok bool

	t.withNotifyOrder(func() {
		t.mu.Lock()
		if !t.status.schedulable() || now.Before(t.nextDueAt) {
			t.mu.Unlock()
			return
		}
		if !AdmitsAny(t.spec.TimeWindows, TimeOfDayOf(now)) {
			// Admission window closed between selection and launch: skip
			// without counting a run, and advance past this occurrence.
			t.nextDueAt = t.nextDueAt.Add(t.spec.Interval)
			t.mu.Unlock()
			return
		}

		terminalOld := t.status
		if terminalOld == StatusCompleted || terminalOld == StatusFailed {
			terminalView := func() TaskView { v := t.viewLocked(); v.Status = StatusPending; return v }()
			t.status = StatusPending
			t.mu.Unlock()
			t.callbacks.notifyStatusChange(terminalView, terminalOld, StatusPending)
			t.mu.Lock()
		}

		old := t.status
		t.status = StatusRunning
		t.runCount++
		started := now
		t.lastRunStartedAt = &started
		runCtx, cancelFn := context.WithCancel(context.Background())
		t.cancelRun = cancelFn
		t.stopRequested = false
		t.runDone = make(chan struct{})
		view := t.viewLocked()
		t.mu.Unlock()

		t.callbacks.notifyStatusChange(view, old, StatusRunning)
		ctx, cancel, ok = runCtx, cancelFn, true
	})

	return ctx, cancel, ok
}

// finishRun records the outcome of one invocation: success, user error, or
// timeout. If the task has since been explicitly Cancel()-ed, the override
// is respected and no outcome/callback is recorded here. If Stop() was
// requested mid-run, the task settles into STOPPED instead of
// COMPLETED/FAILED and no success/failure callback fires — only the
// status-change. Either way, runDone is closed last so anyone blocked in
// currentRunDone's channel (Deregister) unblocks only once the outcome has
// been fully recorded.
func (t *Task) finishRun(finishedAt time.Time, bodyErr error, timedOut bool) {
	t.withNotifyOrder(func() {
		t.mu.Lock()
		doneCh := t.runDone
		t.runDone = nil
		defer func() {
			if doneCh != nil {
				close(doneCh)
			}
		}()
		if t.status != StatusRunning {
			// Cancel() already moved this task to CANCELLED (or some other
			// sticky override) while the body was in flight.
			finished := finishedAt
			t.lastRunFinishedAt = &finished
			t.mu.Unlock()
			return
		}

		finished := finishedAt
		t.lastRunFinishedAt = &finished
		t.nextDueAt = finished.Add(t.spec.Interval) // finish-anchored, spec.md §4.5/§9
		t.cancelRun = nil

		if t.stopRequested {
			old := t.status
			t.status = StatusStopped
			t.stopRequested = false
			view := t.viewLocked()
			t.mu.Unlock()
			t.callbacks.notifyStatusChange(view, old, StatusStopped)
			return
		}

		switch {
		case timedOut:
			old := t.status
			t.status = StatusFailed
			t.errorCount++
			t.lastError = newTimeoutError()
			view := t.viewLocked()
			t.mu.Unlock()
			t.callbacks.notifyStatusChange(view, old, StatusFailed)
			t.callbacks.notifyFailure(view, t.lastError)
		case bodyErr != nil:
			old := t.status
			t.status = StatusFailed
			t.errorCount++
			t.lastError = newUserExceptionError(bodyErr)
			view := t.viewLocked()
			t.mu.Unlock()
			t.callbacks.notifyStatusChange(view, old, StatusFailed)
			t.callbacks.notifyFailure(view, t.lastError)
		default:
			old := t.status
			t.status = StatusCompleted
			t.successCount++
			t.lastError = nil
			view := t.viewLocked()
			t.mu.Unlock()
			t.callbacks.notifyStatusChange(view, old, StatusCompleted)
			t.callbacks.notifySuccess(view)
		}
	})
}
