package engine

import "time"

// Clock supplies wall-clock time to the engine.
//
// Every time comparison the engine makes (validity windows, pending
// execution dates, interval pauses) goes through the Clock so tests can
// drive time explicitly. Implementations must be safe for concurrent use:
// readiness checks read the clock on the dispatcher goroutine.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the system wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

func nowMillis(c Clock) int64 { return c.Now().UnixMilli() }
