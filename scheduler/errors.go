package scheduler

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a scheduler-level or task-level failure. These are
// the closed set of kinds from spec.md §7 — not Go error types, since
// callers (and callbacks) need to compare them across process/serialization
// boundaries the same way the teacher compares sentinel errors with
// errors.Is.
type ErrorKind string

const (
	ErrorKindInvalidSpec       ErrorKind = "INVALID_SPEC"
	ErrorKindDuplicateName     ErrorKind = "DUPLICATE_NAME"
	ErrorKindNotFound          ErrorKind = "NOT_FOUND"
	ErrorKindIllegalState      ErrorKind = "ILLEGAL_STATE"
	ErrorKindAlreadyStarted    ErrorKind = "ALREADY_STARTED"
	ErrorKindTimeout           ErrorKind = "TIMEOUT"
	ErrorKindUserException     ErrorKind = "USER_EXCEPTION"
	ErrorKindCallbackException ErrorKind = "CALLBACK_EXCEPTION"
)

// TaskError describes a task's last failure: a closed kind plus a free-form
// message. It implements error so it can be returned or wrapped directly,
// and is what TaskView.LastError exposes to callbacks.
type TaskError struct {
	Kind    ErrorKind
	Message string
}

func (e *TaskError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// newTimeoutError builds the synthesized TIMEOUT failure from spec.md §4.5:
// no user message, just the kind.
func newTimeoutError() *TaskError {
	return &TaskError{Kind: ErrorKindTimeout}
}

// newUserExceptionError wraps a task body's returned error as a
// USER_EXCEPTION outcome.
func newUserExceptionError(err error) *TaskError {
	return &TaskError{Kind: ErrorKindUserException, Message: err.Error()}
}

// Sentinel errors for registration and lifecycle operations, checkable with
// errors.Is — the same pattern core/queue/scheduler.go uses for
// ErrSchedulerNotRunning / ErrNoTasksRegistered.
var (
	ErrInvalidSpec         = errors.New("invalid task spec")
	ErrDuplicateName       = errors.New("duplicate task name")
	ErrNotFound            = errors.New("task not found")
	ErrIllegalState        = errors.New("illegal scheduler state")
	ErrAlreadyStarted      = errors.New("scheduler already started")
	ErrNotStarted          = errors.New("scheduler not started")
	ErrHealthcheckFailed   = errors.New("scheduler healthcheck failed")
	ErrSchedulerNotRunning = errors.New("scheduler not running")
	ErrNoTasksRegistered   = errors.New("no tasks registered")
)
