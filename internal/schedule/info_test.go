package schedule

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tripwire/internal/predicate"
	"github.com/roach88/tripwire/internal/value"
)

func validInfo() Info {
	return Info{
		Triggers: []Trigger{{Type: TriggerCustomEventCount, Goal: 3}},
		Data:     value.Object{"log": value.String("hello")},
		Limit:    1,
	}
}

func TestInfoValidate_OK(t *testing.T) {
	info := validInfo()
	info.Start = time.Unix(100, 0)
	info.End = time.Unix(100, 0)
	info.Delay = &Delay{
		Seconds:              60,
		AppState:             AppStateForeground,
		CancellationTriggers: []Trigger{{Type: TriggerBackground, Goal: 1}},
	}
	assert.NoError(t, info.Validate())
}

func TestInfoValidate_Errors(t *testing.T) {
	tooMany := make([]Trigger, MaxTriggers+1)
	for i := range tooMany {
		tooMany[i] = Trigger{Type: TriggerForeground, Goal: 1}
	}

	tests := []struct {
		name   string
		mutate func(*Info)
		want   error
		field  string
	}{
		{"no triggers", func(i *Info) { i.Triggers = nil }, ErrNoTriggers, "triggers"},
		{"too many triggers", func(i *Info) { i.Triggers = tooMany }, ErrTooManyTriggers, "triggers"},
		{"zero goal", func(i *Info) { i.Triggers[0].Goal = 0 }, ErrInvalidGoal, "triggers[0].goal"},
		{"unknown type", func(i *Info) { i.Triggers[0].Type = "shake" }, ErrUnknownTriggerType, "triggers[0].type"},
		{"no data", func(i *Info) { i.Data = nil }, ErrNoData, "data"},
		{"null data", func(i *Info) { i.Data = value.Null{} }, ErrNoData, "data"},
		{"zero limit", func(i *Info) { i.Limit = 0 }, ErrInvalidLimit, "limit"},
		{"inverted window", func(i *Info) {
			i.Start = time.Unix(200, 0)
			i.End = time.Unix(100, 0)
		}, ErrInvalidWindow, "start"},
		{"negative interval", func(i *Info) { i.Interval = -time.Second }, ErrInvalidDuration, "interval"},
		{"negative delay", func(i *Info) { i.Delay = &Delay{Seconds: -1} }, ErrInvalidDuration, "delay.seconds"},
		{"bad app state", func(i *Info) { i.Delay = &Delay{AppState: "sleeping"} }, ErrUnknownAppState, "delay.app_state"},
		{"too many cancellation triggers", func(i *Info) {
			i.Delay = &Delay{CancellationTriggers: tooMany}
		}, ErrTooManyCancellationTriggers, "delay.cancellation_triggers"},
		{"bad cancellation goal", func(i *Info) {
			i.Delay = &Delay{CancellationTriggers: []Trigger{{Type: TriggerBackground, Goal: -1}}}
		}, ErrInvalidGoal, "delay.cancellation_triggers[0].goal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := validInfo()
			tt.mutate(&info)

			err := info.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestInfoValidate_InvalidPredicate(t *testing.T) {
	info := validInfo()
	info.Triggers[0].Predicate = predicate.And()

	err := info.Validate()
	assert.ErrorIs(t, err, predicate.ErrInvalid)
}

func TestWithDefaults(t *testing.T) {
	info := validInfo()
	info.Limit = 0
	assert.Equal(t, DefaultLimit, info.WithDefaults().Limit)

	info.Limit = 5
	assert.Equal(t, 5, info.WithDefaults().Limit)
}

func TestExpired(t *testing.T) {
	now := time.Unix(1000, 0)
	info := validInfo()
	assert.False(t, info.Expired(now), "open window")

	info.End = now
	assert.False(t, info.Expired(now))

	info.End = now.Add(-time.Millisecond)
	assert.True(t, info.Expired(now))
}

func TestAppStateAllows(t *testing.T) {
	assert.True(t, AppStateAny.Allows(true))
	assert.True(t, AppState("").Allows(false))
	assert.True(t, AppStateForeground.Allows(true))
	assert.False(t, AppStateForeground.Allows(false))
	assert.True(t, AppStateBackground.Allows(false))
	assert.False(t, AppStateBackground.Allows(true))
}

func TestTriggerTypeText(t *testing.T) {
	var tt TriggerType
	require.NoError(t, json.Unmarshal([]byte(`"screen_view"`), &tt))
	assert.Equal(t, TriggerScreenView, tt)

	err := json.Unmarshal([]byte(`"shake"`), &tt)
	assert.ErrorIs(t, err, ErrUnknownTriggerType)

	for _, known := range TriggerTypes {
		parsed, err := ParseTriggerType(known.String())
		require.NoError(t, err)
		assert.Equal(t, known, parsed)
	}
}

func TestChangesEnvironment(t *testing.T) {
	assert.True(t, TriggerForeground.ChangesEnvironment())
	assert.True(t, TriggerRegionExit.ChangesEnvironment())
	assert.False(t, TriggerCustomEventCount.ChangesEnvironment())
	assert.False(t, TriggerASAP.ChangesEnvironment())
}

func TestHasTrigger(t *testing.T) {
	info := validInfo()
	assert.False(t, info.HasTrigger(TriggerASAP))
	info.Triggers = append(info.Triggers, Trigger{Type: TriggerASAP, Goal: 1})
	assert.True(t, info.HasTrigger(TriggerASAP))
}
