package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SaveSchedules inserts new entries (RowID == 0) with their triggers and
// updates dirty entries and dirty triggers of existing ones, all in a single
// transaction. On failure nothing is written and the entries keep their
// dirty marks and zero ids.
func (s *Store) SaveSchedules(ctx context.Context, entries []*ScheduleEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save schedules: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	rowIDs := make(map[*ScheduleEntry]int64)
	triggerIDs := make(map[*TriggerEntry]int64)

	for _, e := range entries {
		if e.RowID == 0 {
			rowID, err := insertSchedule(ctx, tx, e)
			if err != nil {
				return fmt.Errorf("save schedules: %w", err)
			}
			rowIDs[e] = rowID
			for _, t := range e.Triggers {
				id, err := insertTrigger(ctx, tx, e.ScheduleID, t)
				if err != nil {
					return fmt.Errorf("save schedules: %w", err)
				}
				triggerIDs[t] = id
			}
			continue
		}

		if e.dirty {
			if err := updateSchedule(ctx, tx, e); err != nil {
				return fmt.Errorf("save schedules: %w", err)
			}
		}
		for _, t := range e.Triggers {
			if t.dirty {
				if err := updateTriggerProgress(ctx, tx, t); err != nil {
					return fmt.Errorf("save schedules: %w", err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save schedules: commit: %w", err)
	}

	for e, id := range rowIDs {
		e.RowID = id
	}
	for t, id := range triggerIDs {
		t.ID = id
	}
	for _, e := range entries {
		e.dirty = false
		for _, t := range e.Triggers {
			t.dirty = false
		}
	}
	return nil
}

// SaveTriggers writes the progress of every dirty trigger in one transaction.
// Triggers whose schedule was deleted in the meantime are skipped silently.
func (s *Store) SaveTriggers(ctx context.Context, triggers []*TriggerEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save triggers: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, t := range triggers {
		if !t.dirty || t.ID == 0 {
			continue
		}
		if err := updateTriggerProgress(ctx, tx, t); err != nil {
			return fmt.Errorf("save triggers: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save triggers: commit: %w", err)
	}
	for _, t := range triggers {
		t.dirty = false
	}
	return nil
}

func insertSchedule(ctx context.Context, tx *sql.Tx, e *ScheduleEntry) (int64, error) {
	data, err := marshalData(e.Data)
	if err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO schedules
		(schedule_id, data, schedule_limit, priority, group_name, start_ms, end_ms,
		 interval_ms, edit_grace_period_ms, count, execution_state, pending_execution_date,
		 paused_until, has_delay, delay_seconds, screen, region_id, app_state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ScheduleID,
		data,
		e.Limit,
		e.Priority,
		nullString(e.Group),
		timeToMillis(e.Start),
		timeToMillis(e.End),
		e.Interval.Milliseconds(),
		e.EditGracePeriod.Milliseconds(),
		e.Count,
		int(e.ExecutionState),
		e.PendingExecutionDate,
		e.PausedUntil,
		boolToInt(e.HasDelay),
		e.DelaySeconds,
		nullString(e.Screen),
		nullString(e.RegionID),
		nullString(string(e.AppState)),
	)
	if err != nil {
		return 0, fmt.Errorf("insert schedule %s: %w", e.ScheduleID, err)
	}
	rowID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert schedule %s: last insert id: %w", e.ScheduleID, err)
	}
	return rowID, nil
}

func updateSchedule(ctx context.Context, tx *sql.Tx, e *ScheduleEntry) error {
	data, err := marshalData(e.Data)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE schedules SET
			data = ?, schedule_limit = ?, priority = ?, group_name = ?, start_ms = ?, end_ms = ?,
			interval_ms = ?, edit_grace_period_ms = ?, count = ?, execution_state = ?,
			pending_execution_date = ?, paused_until = ?
		WHERE schedule_id = ?
	`,
		data,
		e.Limit,
		e.Priority,
		nullString(e.Group),
		timeToMillis(e.Start),
		timeToMillis(e.End),
		e.Interval.Milliseconds(),
		e.EditGracePeriod.Milliseconds(),
		e.Count,
		int(e.ExecutionState),
		e.PendingExecutionDate,
		e.PausedUntil,
		e.ScheduleID,
	)
	if err != nil {
		return fmt.Errorf("update schedule %s: %w", e.ScheduleID, err)
	}
	return nil
}

func insertTrigger(ctx context.Context, tx *sql.Tx, scheduleID string, t *TriggerEntry) (int64, error) {
	pred, err := marshalPredicate(t.Predicate)
	if err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO triggers
		(schedule_id, type, goal, predicate, progress, is_cancellation)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		scheduleID,
		string(t.Type),
		t.Goal,
		pred,
		t.Progress,
		boolToInt(t.IsCancellation),
	)
	if err != nil {
		return 0, fmt.Errorf("insert trigger for %s: %w", scheduleID, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert trigger for %s: last insert id: %w", scheduleID, err)
	}
	return id, nil
}

func updateTriggerProgress(ctx context.Context, tx *sql.Tx, t *TriggerEntry) error {
	if _, err := tx.ExecContext(ctx, `UPDATE triggers SET progress = ? WHERE id = ?`, t.Progress, t.ID); err != nil {
		return fmt.Errorf("update trigger %d: %w", t.ID, err)
	}
	return nil
}

// DeleteSchedules deletes the schedules with the given ids and, by cascade,
// their triggers. Unknown ids are ignored. Returns the number deleted.
func (s *Store) DeleteSchedules(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("delete schedules: begin tx: %w", err)
	}
	defer tx.Rollback()

	var deleted int64
	for _, chunk := range chunks(ids, MaxParams) {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM schedules WHERE schedule_id IN (`+placeholders(len(chunk))+`)`,
			anySlice(chunk)...,
		)
		if err != nil {
			return 0, fmt.Errorf("delete schedules: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("delete schedules: rows affected: %w", err)
		}
		deleted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("delete schedules: commit: %w", err)
	}
	return deleted, nil
}

// DeleteGroup deletes every schedule in group. Returns the number deleted.
func (s *Store) DeleteGroup(ctx context.Context, group string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE group_name = ?`, group)
	if err != nil {
		return 0, fmt.Errorf("delete group %q: %w", group, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete group %q: rows affected: %w", group, err)
	}
	return n, nil
}

// DeleteAll deletes every schedule. Returns the number deleted.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM schedules`)
	if err != nil {
		return 0, fmt.Errorf("delete all: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete all: rows affected: %w", err)
	}
	return n, nil
}

// DeleteExpired deletes schedules whose end is before now and returns their
// ids in row order.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("delete expired: begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT schedule_id FROM schedules
		WHERE end_ms IS NOT NULL AND end_ms < ?
		ORDER BY row_id ASC
	`, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("delete expired: query: %w", err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("delete expired: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM schedules WHERE end_ms IS NOT NULL AND end_ms < ?
	`, now.UnixMilli()); err != nil {
		return nil, fmt.Errorf("delete expired: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("delete expired: commit: %w", err)
	}
	return ids, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func chunks(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func anySlice(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
