package engine

import (
	"errors"
	"fmt"
	"time"
)

// ErrStopped is returned by Future.Wait for operations submitted after Stop
// or still queued when Run's context was cancelled.
var ErrStopped = errors.New("engine stopped")

// RuntimeError represents a failure detected while the engine processes
// work. Runtime errors are logged rather than returned to API callers; the
// affected future resolves with its zero value.
//
// Runtime errors include:
//   - Capacity exceeded: scheduling would pass the global schedule limit
//   - Readiness timeout: the dispatcher did not answer the readiness handoff
//   - Persistence failed: a store batch was rejected
//   - Executor failed: the executor panicked during readiness or execute
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// ScheduleID identifies the affected schedule, when there is one.
	ScheduleID string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeCapacityExceeded indicates the global schedule limit was hit.
	ErrCodeCapacityExceeded RuntimeErrorCode = "CAPACITY_EXCEEDED"

	// ErrCodeReadinessTimeout indicates the readiness handoff timed out.
	ErrCodeReadinessTimeout RuntimeErrorCode = "READINESS_TIMEOUT"

	// ErrCodePersistenceFailed indicates a store operation failed.
	ErrCodePersistenceFailed RuntimeErrorCode = "PERSISTENCE_FAILED"

	// ErrCodeExecutorFailed indicates the executor panicked or errored.
	ErrCodeExecutorFailed RuntimeErrorCode = "EXECUTOR_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ScheduleID != "" {
		msg = fmt.Sprintf("%s (schedule=%s)", msg, e.ScheduleID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error { return e.Err }

// IsCapacityError returns true if the error is a capacity exceeded error.
// Uses errors.As to handle wrapped errors.
func IsCapacityError(err error) bool {
	return hasCode(err, ErrCodeCapacityExceeded)
}

// IsReadinessTimeout returns true if the error is a readiness timeout.
func IsReadinessTimeout(err error) bool {
	return hasCode(err, ErrCodeReadinessTimeout)
}

// IsPersistenceError returns true if the error is a persistence failure.
func IsPersistenceError(err error) bool {
	return hasCode(err, ErrCodePersistenceFailed)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// NewCapacityError creates a RuntimeError for a rejected schedule batch.
func NewCapacityError(requested, current, limit int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeCapacityExceeded,
		Message: fmt.Sprintf("scheduling %d would exceed limit (%d + %d > %d)", requested, current, requested, limit),
		Details: map[string]string{
			"requested": fmt.Sprintf("%d", requested),
			"current":   fmt.Sprintf("%d", current),
			"limit":     fmt.Sprintf("%d", limit),
		},
	}
}

// NewReadinessTimeoutError creates a RuntimeError for an abandoned handoff.
func NewReadinessTimeoutError(scheduleID string, timeout time.Duration) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeReadinessTimeout,
		Message:    fmt.Sprintf("readiness check did not complete within %s", timeout),
		ScheduleID: scheduleID,
	}
}

// NewPersistenceError creates a RuntimeError wrapping a store failure.
func NewPersistenceError(op, scheduleID string, err error) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodePersistenceFailed,
		Message:    op,
		ScheduleID: scheduleID,
		Err:        err,
	}
}

// NewExecutorError creates a RuntimeError for an executor failure.
func NewExecutorError(scheduleID string, cause any) *RuntimeError {
	re := &RuntimeError{
		Code:       ErrCodeExecutorFailed,
		Message:    "executor failed",
		ScheduleID: scheduleID,
	}
	if err, ok := cause.(error); ok {
		re.Err = err
	} else {
		re.Message = fmt.Sprintf("executor panicked: %v", cause)
	}
	return re
}
