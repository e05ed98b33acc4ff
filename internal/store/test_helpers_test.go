package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/tripwire/internal/schedule"
	"github.com/roach88/tripwire/internal/value"
)

// createTestStore opens a fresh store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testInfo returns a minimal valid info with one trigger of type tt.
func testInfo(tt schedule.TriggerType, goal float64) schedule.Info {
	return schedule.Info{
		Triggers: []schedule.Trigger{{Type: tt, Goal: goal}},
		Data:     value.Object{"noop": value.Null{}},
		Limit:    1,
	}
}

// insertEntries saves new entries built from infos under the given ids.
func insertEntries(t *testing.T, s *Store, ids []string, infos ...schedule.Info) []*ScheduleEntry {
	t.Helper()
	entries := make([]*ScheduleEntry, len(ids))
	for i, id := range ids {
		entries[i] = NewScheduleEntry(id, infos[i%len(infos)])
	}
	if err := s.SaveSchedules(context.Background(), entries); err != nil {
		t.Fatalf("SaveSchedules() failed: %v", err)
	}
	return entries
}
