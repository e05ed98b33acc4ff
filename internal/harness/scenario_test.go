package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: smallest valid scenario
schedules:
  - name: a
    triggers: [{type: foreground, goal: 1}]
    data: 1
assertions:
  - type: remaining
    count: 1
`

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/delayed_nudge.yaml")
	require.NoError(t, err)

	assert.Equal(t, "delayed_nudge", s.Name)
	assert.Len(t, s.Schedules, 1)
	require.Len(t, s.Steps, 4)
	assert.Equal(t, "custom_event_count", s.Steps[0].Event.Type)
	assert.Equal(t, "30s", s.Steps[2].Advance)
	assert.True(t, s.Steps[3].Complete)
	assert.Len(t, s.Assertions, 3)

	start, err := s.StartTime()
	require.NoError(t, err)
	assert.Equal(t, DefaultStart, start)
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenarioRejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "\nassertion: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenarioStart(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario + "start: 2024-06-01T08:00:00+02:00\n"))
	require.NoError(t, err)
	start, err := s.StartTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC), start)
}

func TestValidateScenario(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name:    "missing name",
			src:     "description: d\nschedules: [{name: a, triggers: [{type: asap, goal: 1}], data: 1}]\nassertions: [{type: remaining}]",
			wantErr: "name is required",
		},
		{
			name:    "unnamed schedule",
			src:     "name: n\ndescription: d\nschedules: [{triggers: [{type: asap, goal: 1}], data: 1}]\nassertions: [{type: remaining}]",
			wantErr: "schedules[0]: name is required",
		},
		{
			name:    "two actions in one step",
			src:     "name: n\ndescription: d\nschedules: [{name: a}]\nsteps: [{advance: 1s, complete: true}]\nassertions: [{type: remaining}]",
			wantErr: "exactly one action",
		},
		{
			name:    "empty step",
			src:     "name: n\ndescription: d\nschedules: [{name: a}]\nsteps: [{}]\nassertions: [{type: remaining}]",
			wantErr: "exactly one action",
		},
		{
			name:    "unknown event type",
			src:     "name: n\ndescription: d\nschedules: [{name: a}]\nsteps: [{event: {type: shake}}]\nassertions: [{type: remaining}]",
			wantErr: "steps[0].event",
		},
		{
			name:    "bad advance",
			src:     "name: n\ndescription: d\nschedules: [{name: a}]\nsteps: [{advance: soon}]\nassertions: [{type: remaining}]",
			wantErr: "steps[0].advance",
		},
		{
			name:    "bad app state",
			src:     "name: n\ndescription: d\nschedules: [{name: a}]\nsteps: [{app_state: asleep}]\nassertions: [{type: remaining}]",
			wantErr: "steps[0].app_state",
		},
		{
			name:    "cancel unknown schedule",
			src:     "name: n\ndescription: d\nschedules: [{name: a}]\nsteps: [{cancel: b}]\nassertions: [{type: remaining}]",
			wantErr: `unknown schedule "b"`,
		},
		{
			name:    "no assertions",
			src:     "name: n\ndescription: d\nschedules: [{name: a}]",
			wantErr: "assertions list is required",
		},
		{
			name:    "executions without count",
			src:     "name: n\ndescription: d\nschedules: [{name: a}]\nassertions: [{type: executions, schedule: a}]",
			wantErr: "count is required",
		},
		{
			name:    "unknown assertion",
			src:     "name: n\ndescription: d\nschedules: [{name: a}]\nassertions: [{type: trace_contains}]",
			wantErr: "unknown assertion type",
		},
		{
			name:    "final state on unknown schedule",
			src:     "name: n\ndescription: d\nschedules: [{name: a}]\nassertions: [{type: final_state, schedule: z, state: IDLE}]",
			wantErr: `unknown schedule "z"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestScenarioEntries(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	entries, err := s.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Name)
	assert.Equal(t, 1, entries[0].Info.Limit)
}

func TestEventStepDefaults(t *testing.T) {
	e := &EventStep{Type: "custom_event_value"}
	assert.Equal(t, 1.0, e.value())
	p, err := e.payload()
	require.NoError(t, err)
	assert.Equal(t, "null", string(mustJSON(t, p)))

	v := 0.0
	e.Value = &v
	assert.Equal(t, 0.0, e.value())
}

func TestScenarioFixturesLoad(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	for _, p := range paths {
		_, err := LoadScenario(p)
		assert.NoError(t, err, p)
	}
	_, err = os.Stat("testdata/golden")
	assert.NoError(t, err)
}
