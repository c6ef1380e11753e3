package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopFn(ctx context.Context) error { return nil }

func newTestTask(t *testing.T, spec TaskSpec, clock Clock) *Task {
	t.Helper()
	return newTask(spec, noopFn, clock)
}

func TestNewTask_InitialState(t *testing.T) {
	clock := NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	immediate, err := NewTaskSpec(time.Minute, WithName("immediate"))
	require.NoError(t, err)
	task := newTestTask(t, immediate, clock)
	assert.Equal(t, StatusPending, task.Status())
	assert.Equal(t, clock.Now(), task.Snapshot().NextDueAt)

	deferred, err := NewTaskSpec(time.Minute, WithName("deferred"), WithStartImmediately(false))
	require.NoError(t, err)
	task2 := newTestTask(t, deferred, clock)
	assert.Equal(t, clock.Now().Add(time.Minute), task2.Snapshot().NextDueAt)
}

func TestTask_PauseResume(t *testing.T) {
	clock := NewFixedClock(time.Now())
	spec, err := NewTaskSpec(time.Minute)
	require.NoError(t, err)
	task := newTestTask(t, spec, clock)

	require.NoError(t, task.Pause())
	assert.Equal(t, StatusPaused, task.Status())

	// Pausing an already-paused task is illegal.
	assert.ErrorIs(t, task.Pause(), ErrIllegalState)

	require.NoError(t, task.Resume())
	assert.Equal(t, StatusPending, task.Status())

	// Resuming a non-paused task is illegal.
	assert.ErrorIs(t, task.Resume(), ErrIllegalState)
}

func TestTask_PauseRejectsRunning(t *testing.T) {
	clock := NewFixedClock(time.Now())
	spec, err := NewTaskSpec(time.Minute)
	require.NoError(t, err)
	task := newTestTask(t, spec, clock)

	_, _, ok := task.tryBeginRun(clock.Now())
	require.True(t, ok)

	assert.ErrorIs(t, task.Pause(), ErrIllegalState)
}

func TestTask_StopFromPending(t *testing.T) {
	clock := NewFixedClock(time.Now())
	spec, err := NewTaskSpec(time.Minute)
	require.NoError(t, err)
	task := newTestTask(t, spec, clock)

	require.NoError(t, task.Stop())
	assert.Equal(t, StatusStopped, task.Status())

	// Sticky: stopping again is a no-op, stays STOPPED.
	require.NoError(t, task.Stop())
	assert.Equal(t, StatusStopped, task.Status())
}

func TestTask_StopWhileRunningDefersTransition(t *testing.T) {
	clock := NewFixedClock(time.Now())
	spec, err := NewTaskSpec(time.Minute)
	require.NoError(t, err)
	task := newTestTask(t, spec, clock)

	ctx, _, ok := task.tryBeginRun(clock.Now())
	require.True(t, ok)

	require.NoError(t, task.Stop())
	// The transition to STOPPED doesn't happen until the invocation
	// reports back via finishRun; until then the task still reads RUNNING.
	assert.Equal(t, StatusRunning, task.Status())
	assert.Error(t, ctx.Err()) // cooperative cancellation fired already

	task.finishRun(clock.Now(), nil, false)
	assert.Equal(t, StatusStopped, task.Status())
}

func TestTask_CancelOverridesInFlightOutcome(t *testing.T) {
	clock := NewFixedClock(time.Now())
	spec, err := NewTaskSpec(time.Minute)
	require.NoError(t, err)
	task := newTestTask(t, spec, clock)

	_, _, ok := task.tryBeginRun(clock.Now())
	require.True(t, ok)

	var sawFailure, sawSuccess bool
	task.OnFailure(func(view TaskView, err error) { sawFailure = true })
	task.OnSuccess(func(view TaskView) { sawSuccess = true })

	task.Cancel()
	assert.Equal(t, StatusCancelled, task.Status())

	// A late outcome must not clobber the cancellation or fire callbacks.
	task.finishRun(clock.Now(), assertErr, false)
	assert.Equal(t, StatusCancelled, task.Status())
	assert.False(t, sawFailure)
	assert.False(t, sawSuccess)
}

var assertErr = &TaskError{Kind: ErrorKindUserException, Message: "late"}

func TestTask_ResetFromStopped(t *testing.T) {
	clock := NewFixedClock(time.Now())
	spec, err := NewTaskSpec(time.Minute, WithStartImmediately(false))
	require.NoError(t, err)
	task := newTestTask(t, spec, clock)

	require.NoError(t, task.Stop())
	require.NoError(t, task.Reset())
	assert.Equal(t, StatusPending, task.Status())
	assert.Equal(t, clock.Now().Add(time.Minute), task.Snapshot().NextDueAt)
}

func TestTask_ResetFromCancelled(t *testing.T) {
	clock := NewFixedClock(time.Now())
	spec, err := NewTaskSpec(time.Minute)
	require.NoError(t, err)
	task := newTestTask(t, spec, clock)

	task.Cancel()
	require.NoError(t, task.Reset())
	assert.Equal(t, StatusPending, task.Status())
}

func TestTask_ResetRejectsNonTerminal(t *testing.T) {
	clock := NewFixedClock(time.Now())
	spec, err := NewTaskSpec(time.Minute)
	require.NoError(t, err)
	task := newTestTask(t, spec, clock)

	assert.ErrorIs(t, task.Reset(), ErrIllegalState)
}

func TestTask_RunCountInvariant(t *testing.T) {
	clock := NewFixedClock(time.Now())
	spec, err := NewTaskSpec(time.Minute)
	require.NoError(t, err)
	task := newTestTask(t, spec, clock)

	_, _, ok := task.tryBeginRun(clock.Now())
	require.True(t, ok)
	view := task.Snapshot()
	assert.Equal(t, int64(1), view.RunCount)
	assert.Equal(t, int64(0), view.SuccessCount+view.ErrorCount)

	task.finishRun(clock.Now(), nil, false)
	view = task.Snapshot()
	assert.Equal(t, int64(1), view.RunCount)
	assert.Equal(t, int64(1), view.SuccessCount+view.ErrorCount)
}

func TestTask_FinishAnchoredRescheduling(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := NewFixedClock(start)
	spec, err := NewTaskSpec(time.Minute)
	require.NoError(t, err)
	task := newTestTask(t, spec, clock)

	_, _, ok := task.tryBeginRun(start)
	require.True(t, ok)

	finishedAt := start.Add(90 * time.Second) // ran long
	task.finishRun(finishedAt, nil, false)

	assert.Equal(t, finishedAt.Add(time.Minute), task.Snapshot().NextDueAt)
}

func TestTask_CallbackRemoval(t *testing.T) {
	clock := NewFixedClock(time.Now())
	spec, err := NewTaskSpec(time.Minute)
	require.NoError(t, err)
	task := newTestTask(t, spec, clock)

	called := false
	id := task.OnStatusChange(func(view TaskView, old, new Status) { called = true })
	task.RemoveCallback(id)

	require.NoError(t, task.Pause())
	assert.False(t, called)
}
