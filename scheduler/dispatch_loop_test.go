package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchLoop_TickOrdersByPriorityThenDueTimeThenRegistration(t *testing.T) {
	clock := NewFixedClock(time.Now())

	// Dispatch order is observed through the RUNNING transition, which
	// Executor.Dispatch fires synchronously inside Tick; the bodies
	// themselves run on separate goroutines in no defined order.
	var order []string
	record := func(view TaskView, old, new Status) {
		if new == StatusRunning {
			order = append(order, view.Name)
		}
	}

	lowSpec, err := NewTaskSpec(time.Minute, WithName("low"), WithPriority(PriorityLow))
	require.NoError(t, err)
	highSpec, err := NewTaskSpec(time.Minute, WithName("high"), WithPriority(PriorityHigh))
	require.NoError(t, err)
	normalFirstSpec, err := NewTaskSpec(time.Minute, WithName("normal-first"), WithPriority(PriorityNormal))
	require.NoError(t, err)
	normalSecondSpec, err := NewTaskSpec(time.Minute, WithName("normal-second"), WithPriority(PriorityNormal))
	require.NoError(t, err)

	low := newTask(lowSpec, noopFn, clock)
	high := newTask(highSpec, noopFn, clock)
	normalFirst := newTask(normalFirstSpec, noopFn, clock)
	normalSecond := newTask(normalSecondSpec, noopFn, clock)

	tasks := []*Task{low, high, normalFirst, normalSecond}
	for _, task := range tasks {
		task.OnStatusChange(record)
	}
	loop := newDispatchLoop(newExecutor(testLogger()), clock, time.Hour, testLogger(), func() []*Task { return tasks })

	loop.Tick(context.Background(), clock.Now())

	require.Eventually(t, func() bool {
		for _, task := range tasks {
			if task.Status() != StatusCompleted {
				return false
			}
		}
		return true
	}, time.Second, time.Millisecond)

	require.Equal(t, []string{"high", "normal-first", "normal-second", "low"}, order)
}

func TestDispatchLoop_TickSkipsNotDueAndPaused(t *testing.T) {
	clock := NewFixedClock(time.Now())

	dueSpec, err := NewTaskSpec(time.Minute, WithName("due"))
	require.NoError(t, err)
	notDueSpec, err := NewTaskSpec(time.Minute, WithName("not-due"), WithStartImmediately(false))
	require.NoError(t, err)

	due := newTask(dueSpec, noopFn, clock)
	notDue := newTask(notDueSpec, noopFn, clock)
	paused := newTask(dueSpec, noopFn, clock)
	require.NoError(t, paused.Pause())

	tasks := []*Task{due, notDue, paused}
	loop := newDispatchLoop(newExecutor(testLogger()), clock, time.Hour, testLogger(), func() []*Task { return tasks })

	loop.Tick(context.Background(), clock.Now())

	require.Eventually(t, func() bool {
		return due.Status() == StatusCompleted
	}, time.Second, time.Millisecond)

	assert.Equal(t, StatusPending, notDue.Status())
	assert.Equal(t, StatusPaused, paused.Status())
}

func TestDispatchLoop_TickRespectsTimeWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	clock := NewFixedClock(now)

	window := TimeWindow{Start: NewTimeOfDay(9, 0, 0), End: NewTimeOfDay(17, 0, 0)}
	spec, err := NewTaskSpec(time.Minute, WithName("windowed"), WithTimeWindows(window))
	require.NoError(t, err)
	task := newTask(spec, noopFn, clock)

	loop := newDispatchLoop(newExecutor(testLogger()), clock, time.Hour, testLogger(), func() []*Task { return []*Task{task} })
	loop.Tick(context.Background(), clock.Now())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StatusPending, task.Status())
}
