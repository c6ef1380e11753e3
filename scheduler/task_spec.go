package scheduler

import (
	"fmt"
	"time"
)

// TaskSpec is the immutable configuration of a periodic task, validated at
// construction time via NewTaskSpec. Once registered it never changes;
// mutable runtime state lives on Task instead.
type TaskSpec struct {
	Name             string
	Interval         time.Duration
	Priority         Priority
	TimeWindows      []TimeWindow
	StartImmediately bool
	MaxRunningTime   time.Duration // zero means no timeout
}

// TaskSpecOption configures a TaskSpec under construction.
type TaskSpecOption func(*TaskSpec)

// WithName sets an explicit, unique task name. If omitted, NewTaskSpec
// leaves Name empty and the caller's Register call derives one from the
// registered callable's identity (see Scheduler.Register).
func WithName(name string) TaskSpecOption {
	return func(s *TaskSpec) { s.Name = name }
}

// WithPriority sets the task's dispatch priority. Default is PriorityNormal.
func WithPriority(p Priority) TaskSpecOption {
	return func(s *TaskSpec) { s.Priority = p }
}

// WithTimeWindows restricts the task to run only inside one of the given
// wall-clock admission windows. Default is no windows, meaning always
// admitted.
func WithTimeWindows(windows ...TimeWindow) TaskSpecOption {
	return func(s *TaskSpec) { s.TimeWindows = windows }
}

// WithStartImmediately controls whether the task's first due-time is "now"
// (true, the default) or "now + interval" (false).
func WithStartImmediately(start bool) TaskSpecOption {
	return func(s *TaskSpec) { s.StartImmediately = start }
}

// WithMaxRunningTime bounds a single invocation's execution time. When the
// bound is exceeded the scheduler stops waiting on the invocation and
// synthesizes a TIMEOUT failure; the callable itself is not forcibly
// terminated (spec.md §4.5/§9 — cooperative cancellation only).
func WithMaxRunningTime(d time.Duration) TaskSpecOption {
	return func(s *TaskSpec) { s.MaxRunningTime = d }
}

// NewTaskSpec builds a validated TaskSpec. interval must be positive; a
// negative MaxRunningTime is rejected. A zero MaxRunningTime, including an
// explicit WithMaxRunningTime(0), is accepted and means no timeout.
// Name uniqueness is enforced at registration time, not here, since it is a
// property of the scheduler's registry rather than of the spec in
// isolation.
func NewTaskSpec(interval time.Duration, opts ...TaskSpecOption) (TaskSpec, error) {
	if interval <= 0 {
		return TaskSpec{}, fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidSpec, interval)
	}

	spec := TaskSpec{
		Interval:         interval,
		Priority:         PriorityDefault,
		StartImmediately: true,
	}

	for _, opt := range opts {
		opt(&spec)
	}

	if !spec.Priority.Valid() {
		return TaskSpec{}, fmt.Errorf("%w: invalid priority %d", ErrInvalidSpec, spec.Priority)
	}
	if spec.MaxRunningTime < 0 {
		return TaskSpec{}, fmt.Errorf("%w: max running time must be positive, got %s", ErrInvalidSpec, spec.MaxRunningTime)
	}

	return spec, nil
}
