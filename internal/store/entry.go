package store

import (
	"fmt"
	"time"

	"github.com/roach88/tripwire/internal/predicate"
	"github.com/roach88/tripwire/internal/schedule"
	"github.com/roach88/tripwire/internal/value"
)

// ExecutionState is the persisted position of a schedule in its execution
// cycle: IDLE → PENDING_EXECUTION → EXECUTING → IDLE.
type ExecutionState int

const (
	StateIdle ExecutionState = iota
	StatePendingExecution
	StateExecuting
)

func (s ExecutionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePendingExecution:
		return "PENDING_EXECUTION"
	case StateExecuting:
		return "EXECUTING"
	default:
		return fmt.Sprintf("ExecutionState(%d)", int(s))
	}
}

// NoPendingDate marks an entry with no pending execution date.
const NoPendingDate int64 = -1

// ScheduleEntry is the mutable, persisted form of a schedule.
//
// Mutating methods mark the entry dirty; SaveSchedules writes new and dirty
// entries and clears the mark once the batch commits.
type ScheduleEntry struct {
	RowID      int64
	ScheduleID string

	Data            value.Value
	Limit           int
	Priority        int
	Group           string
	Start           time.Time
	End             time.Time
	Interval        time.Duration
	EditGracePeriod time.Duration

	HasDelay     bool
	DelaySeconds int64
	Screen       string
	RegionID     string
	AppState     schedule.AppState

	Count                int
	ExecutionState       ExecutionState
	PendingExecutionDate int64 // epoch ms, NoPendingDate if none
	PausedUntil          int64 // epoch ms, 0 if not paused

	Triggers []*TriggerEntry

	dirty bool
}

// TriggerEntry is the persisted form of one trigger and its progress.
type TriggerEntry struct {
	ID             int64
	ScheduleID     string
	Type           schedule.TriggerType
	Goal           float64
	Predicate      *predicate.Predicate
	Progress       float64
	IsCancellation bool

	dirty bool
}

// NewScheduleEntry builds an IDLE entry for a freshly scheduled info.
// Cancellation triggers of the delay follow the primary triggers.
func NewScheduleEntry(id string, info schedule.Info) *ScheduleEntry {
	e := &ScheduleEntry{
		ScheduleID:           id,
		ExecutionState:       StateIdle,
		PendingExecutionDate: NoPendingDate,
	}
	e.setInfo(info)

	for _, t := range info.Triggers {
		e.Triggers = append(e.Triggers, newTriggerEntry(id, t, false))
	}
	if info.Delay != nil {
		for _, t := range info.Delay.CancellationTriggers {
			e.Triggers = append(e.Triggers, newTriggerEntry(id, t, true))
		}
	}
	return e
}

func newTriggerEntry(scheduleID string, t schedule.Trigger, cancellation bool) *TriggerEntry {
	return &TriggerEntry{
		ScheduleID:     scheduleID,
		Type:           t.Type,
		Goal:           t.Goal,
		Predicate:      t.Predicate,
		IsCancellation: cancellation,
	}
}

func (e *ScheduleEntry) setInfo(info schedule.Info) {
	e.Data = info.Data
	e.Limit = info.Limit
	e.Priority = info.Priority
	e.Group = info.Group
	e.Start = info.Start
	e.End = info.End
	e.Interval = info.Interval
	e.EditGracePeriod = info.EditGracePeriod

	e.HasDelay = info.Delay != nil
	e.DelaySeconds = 0
	e.Screen, e.RegionID, e.AppState = "", "", ""
	if d := info.Delay; d != nil {
		e.DelaySeconds = d.Seconds
		e.Screen = d.Screen
		e.RegionID = d.RegionID
		e.AppState = d.AppState
	}
}

// Info reconstructs the authored schedule info.
func (e *ScheduleEntry) Info() schedule.Info {
	info := schedule.Info{
		Data:            e.Data,
		Limit:           e.Limit,
		Priority:        e.Priority,
		Group:           e.Group,
		Start:           e.Start,
		End:             e.End,
		Interval:        e.Interval,
		EditGracePeriod: e.EditGracePeriod,
	}

	var cancellation []schedule.Trigger
	for _, t := range e.Triggers {
		if t.IsCancellation {
			cancellation = append(cancellation, t.Trigger())
		} else {
			info.Triggers = append(info.Triggers, t.Trigger())
		}
	}

	if e.HasDelay {
		info.Delay = &schedule.Delay{
			Seconds:              e.DelaySeconds,
			Screen:               e.Screen,
			RegionID:             e.RegionID,
			AppState:             e.AppState,
			CancellationTriggers: cancellation,
		}
	}
	return info
}

// Schedule returns the public view of the entry.
func (e *ScheduleEntry) Schedule() *schedule.Schedule {
	return &schedule.Schedule{ID: e.ScheduleID, Info: e.Info()}
}

// ApplyInfo replaces the editable info fields. Triggers and delay are kept.
func (e *ScheduleEntry) ApplyInfo(info schedule.Info) {
	hasDelay, seconds, screen, region, appState := e.HasDelay, e.DelaySeconds, e.Screen, e.RegionID, e.AppState
	e.setInfo(info)
	e.HasDelay, e.DelaySeconds, e.Screen, e.RegionID, e.AppState = hasDelay, seconds, screen, region, appState
	e.dirty = true
}

// SetState moves the entry to state with the given pending date.
func (e *ScheduleEntry) SetState(state ExecutionState, pendingDate int64) {
	e.ExecutionState = state
	e.PendingExecutionDate = pendingDate
	e.dirty = true
}

// SetCount records the fulfillment count.
func (e *ScheduleEntry) SetCount(n int) {
	e.Count = n
	e.dirty = true
}

// PauseUntil hides the entry's triggers from ActiveTriggers until ms.
func (e *ScheduleEntry) PauseUntil(ms int64) {
	e.PausedUntil = ms
	e.dirty = true
}

// ResetCancellationProgress zeroes every cancellation trigger.
func (e *ScheduleEntry) ResetCancellationProgress() {
	for _, t := range e.Triggers {
		if t.IsCancellation {
			t.SetProgress(0)
		}
	}
}

// Dirty reports whether the entry has unsaved changes.
func (e *ScheduleEntry) Dirty() bool { return e.dirty }

// Delay reports the entry's quiet period.
func (e *ScheduleEntry) Delay() time.Duration {
	return time.Duration(e.DelaySeconds) * time.Second
}

// Trigger returns the authored trigger.
func (t *TriggerEntry) Trigger() schedule.Trigger {
	return schedule.Trigger{Type: t.Type, Goal: t.Goal, Predicate: t.Predicate}
}

// AddProgress accumulates v toward the goal.
func (t *TriggerEntry) AddProgress(v float64) {
	t.Progress += v
	t.dirty = true
}

// SetProgress overwrites the accumulated progress.
func (t *TriggerEntry) SetProgress(p float64) {
	if t.Progress == p {
		return
	}
	t.Progress = p
	t.dirty = true
}

// GoalMet reports whether progress has reached the goal.
func (t *TriggerEntry) GoalMet() bool {
	return t.Progress >= t.Goal
}

// Dirty reports whether the trigger has unsaved progress.
func (t *TriggerEntry) Dirty() bool { return t.dirty }
