package engine

import (
	"time"

	"github.com/roach88/tripwire/internal/schedule"
)

// Executor materializes schedules into runnable actions.
// Implemented by the caller; actions.Runner is the bundled implementation.
type Executor interface {
	// CreateExecutable prepares s for execution. An error means the schedule
	// cannot run now and is treated as not ready.
	CreateExecutable(s *schedule.Schedule) (Executable, error)
}

// Executable is one prepared execution of a schedule.
type Executable interface {
	// IsReady is the executor-level readiness check, asked after the
	// engine's own delay and context gates pass.
	IsReady() bool

	// Execute starts the execution and returns promptly. onComplete must be
	// called exactly once, from any goroutine, when the execution finishes.
	Execute(onComplete func())
}

// Dispatcher runs functions on the context that holds authoritative app
// state, screen and region. Dispatch must not run fn on the caller's
// goroutine unless that goroutine is itself the authoritative context.
// Dispatch must not block; it returns false when fn was not accepted.
type Dispatcher interface {
	Dispatch(fn func()) bool
}

// Environment reports the current app context. It is read only from
// functions passed to the Dispatcher.
type Environment interface {
	Foreground() bool
	Screen() string
	RegionID() string
}

// DelayedTaskScheduler runs keyed tasks at a wall-clock time.
// delay.Scheduler is the bundled implementation.
type DelayedTaskScheduler interface {
	// PostAt arms task for when, replacing any task armed under key.
	PostAt(key string, when time.Time, task func())
	// Cancel revokes the task armed under key, if any.
	Cancel(key string)
}

// inlineDispatcher runs functions on the worker goroutine.
type inlineDispatcher struct{}

func (inlineDispatcher) Dispatch(fn func()) bool {
	fn()
	return true
}
