// Package engine implements the tripwire automation engine.
//
// The engine receives normalized events, advances trigger progress, and
// drives each schedule through its execution cycle:
//
//	IDLE → PENDING_EXECUTION → EXECUTING → IDLE
//
// with PENDING_EXECUTION → IDLE when a cancellation trigger fires.
//
// ARCHITECTURE:
//
// Single-Writer Task Loop:
// Every public operation is posted as a task onto a FIFO queue and executed
// by Engine.Run in one goroutine. That goroutine is the only mutator of the
// store, so no store access needs further locking, and a cancel posted after
// a schedule call always observes the schedule.
//
// Task Processing Flow:
//  1. Callers submit tasks (schedule, cancel, event, recheck) and get a Future
//  2. Engine.Run() dequeues tasks one at a time
//  3. Events read active triggers from SQLite and update progress in one batch
//  4. Triggered schedules go through handleTriggered in priority order
//  5. Ready schedules are handed to the Executor; its completion callback is
//     posted back onto the queue as another task
//
// Readiness Handoff:
// App state, screen and region are authoritative only on the Dispatcher's
// context. The worker posts the readiness check and Execute call there and
// waits for the answer, bounded by the readiness timeout. A handoff that
// misses the deadline is abandoned and can no longer execute.
//
// Delays:
// Delayed executions are armed on a DelayedTaskScheduler keyed by schedule
// id. The firing task re-reads the schedule before acting. Timers are
// in-memory only; Run re-arms them from the store on start.
package engine
