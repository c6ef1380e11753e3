package scheduler

import (
	"sync"

	"github.com/google/uuid"
)

// StatusChangeFunc is notified on every status transition of a task.
type StatusChangeFunc func(view TaskView, oldStatus, newStatus Status)

// SuccessFunc is notified when a task's invocation completes successfully.
type SuccessFunc func(view TaskView)

// FailureFunc is notified when a task's invocation fails, including on
// timeout.
type FailureFunc func(view TaskView, err error)

// CallbackRegistry holds three independent fan-out sets for a single task:
// status-change, success, and failure subscribers. Each subscriber is
// identified by an opaque uuid.UUID token returned from Add, usable with
// Remove — the same "opaque identity token" shape core/queue/worker.go
// uses for its workerID.
//
// Notification iterates a snapshot of the current subscriber set, so
// Add/Remove calls made from inside a callback are safe and take effect
// starting with the next notification, never the one in progress.
// Concurrent NotifyAll calls from multiple goroutines are permitted;
// subscriber functions must tolerate concurrent invocation, since nothing
// here serializes them against each other.
type CallbackRegistry struct {
	mu             sync.Mutex
	statusChange   map[uuid.UUID]StatusChangeFunc
	success        map[uuid.UUID]SuccessFunc
	failure        map[uuid.UUID]FailureFunc
	callbackErrors int64
}

// newCallbackRegistry returns an empty CallbackRegistry.
func newCallbackRegistry() *CallbackRegistry {
	return &CallbackRegistry{
		statusChange: make(map[uuid.UUID]StatusChangeFunc),
		success:      make(map[uuid.UUID]SuccessFunc),
		failure:      make(map[uuid.UUID]FailureFunc),
	}
}

// AddStatusChange subscribes fn to status transitions and returns a token
// for later removal with Remove.
func (r *CallbackRegistry) AddStatusChange(fn StatusChangeFunc) uuid.UUID {
	id := uuid.New()
	r.mu.Lock()
	r.statusChange[id] = fn
	r.mu.Unlock()
	return id
}

// AddSuccess subscribes fn to successful completions and returns a token
// for later removal with Remove.
func (r *CallbackRegistry) AddSuccess(fn SuccessFunc) uuid.UUID {
	id := uuid.New()
	r.mu.Lock()
	r.success[id] = fn
	r.mu.Unlock()
	return id
}

// AddFailure subscribes fn to failed completions and returns a token for
// later removal with Remove.
func (r *CallbackRegistry) AddFailure(fn FailureFunc) uuid.UUID {
	id := uuid.New()
	r.mu.Lock()
	r.failure[id] = fn
	r.mu.Unlock()
	return id
}

// Remove unsubscribes the callback identified by id from whichever set it
// belongs to. Removing an unknown or already-removed id is a no-op.
func (r *CallbackRegistry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.statusChange, id)
	delete(r.success, id)
	delete(r.failure, id)
}

// notifyStatusChange fans out a status transition to every subscriber,
// isolating each call: a panicking subscriber is recovered, counted on the
// callback-error counter (distinct from the task's own error_count), and
// does not prevent sibling subscribers from running.
func (r *CallbackRegistry) notifyStatusChange(view TaskView, oldStatus, newStatus Status) {
	r.mu.Lock()
	snapshot := make([]StatusChangeFunc, 0, len(r.statusChange))
	for _, fn := range r.statusChange {
		snapshot = append(snapshot, fn)
	}
	r.mu.Unlock()

	for _, fn := range snapshot {
		r.isolate(func() { fn(view, oldStatus, newStatus) })
	}
}

func (r *CallbackRegistry) notifySuccess(view TaskView) {
	r.mu.Lock()
	snapshot := make([]SuccessFunc, 0, len(r.success))
	for _, fn := range r.success {
		snapshot = append(snapshot, fn)
	}
	r.mu.Unlock()

	for _, fn := range snapshot {
		r.isolate(func() { fn(view) })
	}
}

func (r *CallbackRegistry) notifyFailure(view TaskView, err error) {
	r.mu.Lock()
	snapshot := make([]FailureFunc, 0, len(r.failure))
	for _, fn := range r.failure {
		snapshot = append(snapshot, fn)
	}
	r.mu.Unlock()

	for _, fn := range snapshot {
		r.isolate(func() { fn(view, err) })
	}
}

// isolate runs fn, recovering any panic and counting it as a callback
// exception rather than letting it propagate into scheduler logic.
func (r *CallbackRegistry) isolate(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.mu.Lock()
			r.callbackErrors++
			r.mu.Unlock()
		}
	}()
	fn()
}

// CallbackErrors returns the number of subscriber panics recovered so far.
func (r *CallbackRegistry) CallbackErrors() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.callbackErrors
}
