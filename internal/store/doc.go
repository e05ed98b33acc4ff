// Package store provides SQLite-backed durable storage for schedules and
// their triggers.
//
// The store holds two tables:
//   - schedules: one row per schedule, the authored info flattened into
//     columns plus runtime state (execution state, fulfillment count,
//     pending execution date, pause deadline)
//   - triggers: one row per primary or cancellation trigger, with its
//     accumulated progress; rows cascade-delete with their schedule
//
// # Patterns
//
// Batched writes: SaveSchedules and SaveTriggers write a whole batch in one
// transaction. A failed batch leaves the database and the in-memory entries
// untouched.
//
// Grouped reads: schedule reads join trigger rows and order by schedule row
// id, then trigger id, so one ScheduleEntry is rebuilt per distinct schedule
// even when the result spans several id chunks.
//
// Chunking: id-set statements bind at most MaxParams parameters.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce the trigger cascade
package store
