package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tripwire/internal/schedule"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.FileExists(t, path)
	version, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpen_KeepsSchedulesAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	entry := NewScheduleEntry("a", testInfo(schedule.TriggerAppInit, 2))
	require.NoError(t, s.SaveSchedules(ctx, []*ScheduleEntry{entry}))
	require.NoError(t, s.Close())

	for range 3 {
		s, err = Open(path)
		require.NoError(t, err)
		n, err := s.CountSchedules(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		require.NoError(t, s.Close())
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	assert.Error(t, err)
}

func TestClose_NilDB(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	pragmas := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1", // NORMAL
		"busy_timeout": "5000",
		"foreign_keys": "1",
	}
	for name, want := range pragmas {
		assert.NoError(t, s.verifyPragma(name, want))
	}
}

func TestSchema_Columns(t *testing.T) {
	s := createTestStore(t)

	assert.Subset(t, tableColumns(t, s.db, "schedules"), []string{
		"row_id", "schedule_id", "data", "schedule_limit", "priority", "group_name",
		"start_ms", "end_ms", "interval_ms", "edit_grace_period_ms", "count",
		"execution_state", "pending_execution_date", "paused_until", "has_delay",
		"delay_seconds", "screen", "region_id", "app_state",
	})
	assert.Subset(t, tableColumns(t, s.db, "triggers"), []string{
		"id", "schedule_id", "type", "goal", "predicate", "progress", "is_cancellation",
	})
}

func TestMigrations(t *testing.T) {
	for _, from := range []int{0, 1} {
		t.Run(fmt.Sprintf("from v%d", from), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "test.db")

			db, err := sql.Open("sqlite3", path)
			require.NoError(t, err)
			_, err = db.Exec(schemaSQL)
			require.NoError(t, err)
			_, err = db.Exec("DROP INDEX IF EXISTS idx_triggers_type")
			require.NoError(t, err)
			_, err = db.Exec("PRAGMA user_version = 0")
			require.NoError(t, err)
			for _, m := range migrations {
				if m.version > from {
					break
				}
				_, err = db.Exec(m.stmt)
				require.NoError(t, err)
			}
			_, err = db.Exec(fmt.Sprintf("PRAGMA user_version = %d", from))
			require.NoError(t, err)
			require.NoError(t, db.Close())

			s, err := Open(path)
			require.NoError(t, err)
			defer s.Close()

			version, err := s.SchemaVersion()
			require.NoError(t, err)
			assert.Equal(t, currentSchemaVersion, version)
			assert.Contains(t, tableIndexes(t, s.db, "triggers"), "idx_triggers_type")
			assert.Contains(t, tableIndexes(t, s.db, "schedules"), "idx_schedules_end")
		})
	}
}

func TestForeignKeysCascade(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	insertEntries(t, s, []string{"a", "b"}, testInfo(schedule.TriggerForeground, 1))
	_, err := s.DeleteSchedules(ctx, []string{"a"})
	require.NoError(t, err)

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM triggers WHERE schedule_id = 'a'").Scan(&n))
	assert.Zero(t, n, "trigger rows go with their schedule")
}

func tableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM pragma_table_info(?)", table)
	require.NoError(t, err)
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		columns = append(columns, name)
	}
	require.NoError(t, rows.Err())
	return columns
}

func tableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	require.NoError(t, err)
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		indexes = append(indexes, name)
	}
	require.NoError(t, rows.Err())
	return indexes
}
