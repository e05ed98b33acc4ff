package store

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/roach88/tripwire/internal/schedule"
)

// scheduleColumns selects a schedule row joined with its trigger rows.
// The trigger columns are NULL only for a schedule without triggers.
const scheduleColumns = `
	s.row_id, s.schedule_id, s.data, s.schedule_limit, s.priority, s.group_name,
	s.start_ms, s.end_ms, s.interval_ms, s.edit_grace_period_ms, s.count,
	s.execution_state, s.pending_execution_date, s.paused_until,
	s.has_delay, s.delay_seconds, s.screen, s.region_id, s.app_state,
	t.id, t.type, t.goal, t.predicate, t.progress, t.is_cancellation
`

// GetSchedule returns the schedule with the given id, or nil if none exists.
func (s *Store) GetSchedule(ctx context.Context, id string) (*ScheduleEntry, error) {
	entries, err := s.querySchedules(ctx, `s.schedule_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get schedule %s: %w", id, err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0], nil
}

// GetSchedules returns the schedules with the given ids in row order.
// Unknown ids are skipped.
func (s *Store) GetSchedules(ctx context.Context, ids []string) ([]*ScheduleEntry, error) {
	entries := []*ScheduleEntry{}
	for _, chunk := range chunks(ids, MaxParams) {
		found, err := s.querySchedules(ctx,
			`s.schedule_id IN (`+placeholders(len(chunk))+`)`,
			anySlice(chunk)...,
		)
		if err != nil {
			return nil, fmt.Errorf("get schedules: %w", err)
		}
		entries = append(entries, found...)
	}
	slices.SortFunc(entries, func(a, b *ScheduleEntry) int {
		return cmp.Compare(a.RowID, b.RowID)
	})
	return entries, nil
}

// GetSchedulesByGroup returns the schedules in group in row order.
func (s *Store) GetSchedulesByGroup(ctx context.Context, group string) ([]*ScheduleEntry, error) {
	entries, err := s.querySchedules(ctx, `s.group_name = ?`, group)
	if err != nil {
		return nil, fmt.Errorf("get group %q: %w", group, err)
	}
	return entries, nil
}

// GetAllSchedules returns every schedule in row order.
func (s *Store) GetAllSchedules(ctx context.Context) ([]*ScheduleEntry, error) {
	entries, err := s.querySchedules(ctx, `1 = 1`)
	if err != nil {
		return nil, fmt.Errorf("get all schedules: %w", err)
	}
	return entries, nil
}

// GetSchedulesByState returns the schedules in any of the given states.
func (s *Store) GetSchedulesByState(ctx context.Context, states ...ExecutionState) ([]*ScheduleEntry, error) {
	if len(states) == 0 {
		return []*ScheduleEntry{}, nil
	}
	args := make([]any, len(states))
	for i, st := range states {
		args[i] = int(st)
	}
	entries, err := s.querySchedules(ctx, `s.execution_state IN (`+placeholders(len(states))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get schedules by state: %w", err)
	}
	return entries, nil
}

// CountSchedules returns the number of stored schedules.
func (s *Store) CountSchedules(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schedules`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count schedules: %w", err)
	}
	return n, nil
}

// ScheduleIDsByGroup returns the ids of the schedules in group in row order.
func (s *Store) ScheduleIDsByGroup(ctx context.Context, group string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT schedule_id FROM schedules
		WHERE group_name = ?
		ORDER BY row_id ASC
	`, group)
	if err != nil {
		return nil, fmt.Errorf("schedule ids for group %q: %w", group, err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("schedule ids for group %q: %w", group, err)
	}
	return ids, nil
}

// ActiveTriggers returns the triggers of type t that can currently make
// progress: primary triggers of IDLE or PENDING_EXECUTION schedules and
// cancellation triggers of PENDING_EXECUTION schedules, restricted to
// schedules whose start has passed and which are not paused.
//
// Results are ordered by schedule row id, then trigger id.
func (s *Store) ActiveTriggers(ctx context.Context, t schedule.TriggerType, now time.Time) ([]*TriggerEntry, error) {
	nowMs := now.UnixMilli()
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.schedule_id, t.type, t.goal, t.predicate, t.progress, t.is_cancellation
		FROM triggers t
		JOIN schedules s ON s.schedule_id = t.schedule_id
		WHERE t.type = ?
		  AND (s.start_ms IS NULL OR s.start_ms <= ?)
		  AND s.paused_until <= ?
		  AND (
		    (t.is_cancellation = 0 AND s.execution_state IN (?, ?))
		    OR (t.is_cancellation = 1 AND s.execution_state = ?)
		  )
		ORDER BY s.row_id ASC, t.id ASC
	`,
		string(t), nowMs, nowMs,
		int(StateIdle), int(StatePendingExecution),
		int(StatePendingExecution),
	)
	if err != nil {
		return nil, fmt.Errorf("active triggers %s: %w", t, err)
	}
	defer rows.Close()

	triggers := []*TriggerEntry{}
	for rows.Next() {
		var (
			te           TriggerEntry
			typ          string
			pred         sql.NullString
			cancellation int
		)
		if err := rows.Scan(&te.ID, &te.ScheduleID, &typ, &te.Goal, &pred, &te.Progress, &cancellation); err != nil {
			return nil, fmt.Errorf("active triggers %s: scan: %w", t, err)
		}
		te.Type = schedule.TriggerType(typ)
		te.IsCancellation = cancellation != 0
		if te.Predicate, err = unmarshalPredicate(pred); err != nil {
			return nil, fmt.Errorf("active triggers %s: trigger %d: %w", t, te.ID, err)
		}
		triggers = append(triggers, &te)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("active triggers %s: iterate: %w", t, err)
	}
	return triggers, nil
}

// querySchedules reads schedules matching where, each rebuilt with its
// triggers. Rows are grouped by consecutive row id, which the ORDER BY
// guarantees.
func (s *Store) querySchedules(ctx context.Context, where string, args ...any) ([]*ScheduleEntry, error) {
	var q strings.Builder
	q.WriteString(`SELECT `)
	q.WriteString(scheduleColumns)
	q.WriteString(`
		FROM schedules s
		LEFT JOIN triggers t ON t.schedule_id = s.schedule_id
		WHERE `)
	q.WriteString(where)
	q.WriteString(`
		ORDER BY s.row_id ASC, t.id ASC`)

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	entries := []*ScheduleEntry{}
	var current *ScheduleEntry
	for rows.Next() {
		e, t, err := scanScheduleRow(rows)
		if err != nil {
			return nil, err
		}
		if current == nil || current.RowID != e.RowID {
			current = e
			entries = append(entries, current)
		}
		if t != nil {
			current.Triggers = append(current.Triggers, t)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	return entries, nil
}

func scanScheduleRow(rows *sql.Rows) (*ScheduleEntry, *TriggerEntry, error) {
	var (
		e                      ScheduleEntry
		data                   string
		group, screen, region  sql.NullString
		appState               sql.NullString
		start, end             sql.NullInt64
		intervalMs, graceMs    int64
		state, hasDelay        int
		trigID                 sql.NullInt64
		trigType, trigPred     sql.NullString
		trigGoal, trigProgress sql.NullFloat64
		trigCancellation       sql.NullInt64
	)
	err := rows.Scan(
		&e.RowID, &e.ScheduleID, &data, &e.Limit, &e.Priority, &group,
		&start, &end, &intervalMs, &graceMs, &e.Count,
		&state, &e.PendingExecutionDate, &e.PausedUntil,
		&hasDelay, &e.DelaySeconds, &screen, &region, &appState,
		&trigID, &trigType, &trigGoal, &trigPred, &trigProgress, &trigCancellation,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("scan schedule: %w", err)
	}

	if e.Data, err = unmarshalData(data); err != nil {
		return nil, nil, fmt.Errorf("schedule %s: %w", e.ScheduleID, err)
	}
	e.Group = group.String
	e.Start = millisToTime(start)
	e.End = millisToTime(end)
	e.Interval = time.Duration(intervalMs) * time.Millisecond
	e.EditGracePeriod = time.Duration(graceMs) * time.Millisecond
	e.ExecutionState = ExecutionState(state)
	e.HasDelay = hasDelay != 0
	e.Screen = screen.String
	e.RegionID = region.String
	e.AppState = schedule.AppState(appState.String)

	if !trigID.Valid {
		return &e, nil, nil
	}
	t := &TriggerEntry{
		ID:             trigID.Int64,
		ScheduleID:     e.ScheduleID,
		Type:           schedule.TriggerType(trigType.String),
		Goal:           trigGoal.Float64,
		Progress:       trigProgress.Float64,
		IsCancellation: trigCancellation.Int64 != 0,
	}
	if t.Predicate, err = unmarshalPredicate(trigPred); err != nil {
		return nil, nil, fmt.Errorf("schedule %s: trigger %d: %w", e.ScheduleID, t.ID, err)
	}
	return &e, t, nil
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}
