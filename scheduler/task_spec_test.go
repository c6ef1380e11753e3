package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskSpec_Defaults(t *testing.T) {
	spec, err := NewTaskSpec(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, spec.Interval)
	assert.Equal(t, PriorityDefault, spec.Priority)
	assert.True(t, spec.StartImmediately)
	assert.Empty(t, spec.TimeWindows)
	assert.Zero(t, spec.MaxRunningTime)
}

func TestNewTaskSpec_Options(t *testing.T) {
	window := TimeWindow{Start: NewTimeOfDay(9, 0, 0), End: NewTimeOfDay(17, 0, 0)}
	spec, err := NewTaskSpec(
		5*time.Second,
		WithName("nightly-report"),
		WithPriority(PriorityHigh),
		WithTimeWindows(window),
		WithStartImmediately(false),
		WithMaxRunningTime(2*time.Second),
	)
	require.NoError(t, err)
	assert.Equal(t, "nightly-report", spec.Name)
	assert.Equal(t, PriorityHigh, spec.Priority)
	assert.Equal(t, []TimeWindow{window}, spec.TimeWindows)
	assert.False(t, spec.StartImmediately)
	assert.Equal(t, 2*time.Second, spec.MaxRunningTime)
}

func TestNewTaskSpec_RejectsNonPositiveInterval(t *testing.T) {
	_, err := NewTaskSpec(0)
	assert.ErrorIs(t, err, ErrInvalidSpec)

	_, err = NewTaskSpec(-time.Second)
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestNewTaskSpec_RejectsInvalidPriority(t *testing.T) {
	_, err := NewTaskSpec(time.Second, WithPriority(Priority(99)))
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestNewTaskSpec_RejectsNegativeMaxRunningTime(t *testing.T) {
	_, err := NewTaskSpec(time.Second, WithMaxRunningTime(-time.Second))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSpec))
}
