// Package schedule defines the authored schedule model: triggers, the
// schedule info with its validity window and delay, and sparse edits.
//
// Values in this package are immutable once handed to the engine. Runtime
// state (progress, execution state, fulfillment count) lives in the store.
package schedule

import (
	"fmt"
	"time"

	"github.com/roach88/tripwire/internal/value"
)

const (
	// MaxTriggers caps the primary triggers of one schedule.
	MaxTriggers = 10

	// MaxCancellationTriggers caps the cancellation triggers of one delay.
	MaxCancellationTriggers = 10

	// DefaultLimit is applied when an Info leaves Limit unset.
	DefaultLimit = 1
)

// AppState constrains execution to the foreground or background.
type AppState string

const (
	AppStateAny        AppState = "any"
	AppStateForeground AppState = "foreground"
	AppStateBackground AppState = "background"
)

// Valid reports whether s is a known app state. The empty state means any.
func (s AppState) Valid() bool {
	switch s {
	case "", AppStateAny, AppStateForeground, AppStateBackground:
		return true
	}
	return false
}

// Allows reports whether the constraint admits the current state.
func (s AppState) Allows(foreground bool) bool {
	switch s {
	case AppStateForeground:
		return foreground
	case AppStateBackground:
		return !foreground
	default:
		return true
	}
}

// UnmarshalText implements encoding.TextUnmarshaler and rejects unknown names.
func (s *AppState) UnmarshalText(text []byte) error {
	parsed := AppState(text)
	if !parsed.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAppState, string(text))
	}
	*s = parsed
	return nil
}

// Delay holds the quiet period and context gates applied after a schedule
// triggers and before it executes.
type Delay struct {
	Seconds              int64     `json:"seconds,omitempty"`
	Screen               string    `json:"screen,omitempty"`
	RegionID             string    `json:"region_id,omitempty"`
	AppState             AppState  `json:"app_state,omitempty"`
	CancellationTriggers []Trigger `json:"cancellation_triggers,omitempty"`
}

// Validate checks the delay's bounds and cancellation triggers.
func (d *Delay) Validate() error {
	if d == nil {
		return nil
	}
	if d.Seconds < 0 {
		return &ValidationError{Field: "seconds", Message: "must not be negative", Err: ErrInvalidDuration}
	}
	if !d.AppState.Valid() {
		return &ValidationError{Field: "app_state", Message: fmt.Sprintf("unknown app state %q", d.AppState), Err: ErrUnknownAppState}
	}
	if len(d.CancellationTriggers) > MaxCancellationTriggers {
		return &ValidationError{
			Field:   "cancellation_triggers",
			Message: fmt.Sprintf("%d exceeds the maximum of %d", len(d.CancellationTriggers), MaxCancellationTriggers),
			Err:     ErrTooManyCancellationTriggers,
		}
	}
	for i, t := range d.CancellationTriggers {
		if err := t.Validate(); err != nil {
			return prefixed(fmt.Sprintf("cancellation_triggers[%d]", i), err)
		}
	}
	return nil
}

// Info is an authored schedule.
//
// Zero Start and End leave the window open on that side. A zero Limit means
// DefaultLimit; apply WithDefaults before Validate.
type Info struct {
	Triggers        []Trigger     `json:"triggers"`
	Data            value.Value   `json:"data"`
	Limit           int           `json:"limit"`
	Priority        int           `json:"priority"`
	Group           string        `json:"group,omitempty"`
	Start           time.Time     `json:"start,omitzero"`
	End             time.Time     `json:"end,omitzero"`
	Delay           *Delay        `json:"delay,omitempty"`
	Interval        time.Duration `json:"interval,omitempty"`
	EditGracePeriod time.Duration `json:"edit_grace_period,omitempty"`
}

// WithDefaults returns a copy of info with unset fields defaulted.
func (info Info) WithDefaults() Info {
	if info.Limit == 0 {
		info.Limit = DefaultLimit
	}
	return info
}

// Validate checks every authored invariant. Failures are *ValidationError
// values wrapping a package sentinel.
func (info Info) Validate() error {
	if len(info.Triggers) == 0 {
		return &ValidationError{Field: "triggers", Message: "at least one trigger is required", Err: ErrNoTriggers}
	}
	if len(info.Triggers) > MaxTriggers {
		return &ValidationError{
			Field:   "triggers",
			Message: fmt.Sprintf("%d exceeds the maximum of %d", len(info.Triggers), MaxTriggers),
			Err:     ErrTooManyTriggers,
		}
	}
	for i, t := range info.Triggers {
		if err := t.Validate(); err != nil {
			return prefixed(fmt.Sprintf("triggers[%d]", i), err)
		}
	}
	if value.IsNull(info.Data) {
		return &ValidationError{Field: "data", Message: "data is required", Err: ErrNoData}
	}
	if info.Limit < 1 {
		return &ValidationError{Field: "limit", Message: fmt.Sprintf("must be at least 1, got %d", info.Limit), Err: ErrInvalidLimit}
	}
	if !info.Start.IsZero() && !info.End.IsZero() && info.Start.After(info.End) {
		return &ValidationError{Field: "start", Message: "start must not be after end", Err: ErrInvalidWindow}
	}
	if info.Interval < 0 {
		return &ValidationError{Field: "interval", Message: "must not be negative", Err: ErrInvalidDuration}
	}
	if info.EditGracePeriod < 0 {
		return &ValidationError{Field: "edit_grace_period", Message: "must not be negative", Err: ErrInvalidDuration}
	}
	if err := info.Delay.Validate(); err != nil {
		return prefixed("delay", err)
	}
	return nil
}

// HasTrigger reports whether any primary trigger has type t.
func (info Info) HasTrigger(t TriggerType) bool {
	for _, trig := range info.Triggers {
		if trig.Type == t {
			return true
		}
	}
	return false
}

// Expired reports whether the validity window closed before now.
func (info Info) Expired(now time.Time) bool {
	return !info.End.IsZero() && info.End.Before(now)
}

// Schedule is a stored schedule: an id assigned at creation plus its info.
type Schedule struct {
	ID   string `json:"id"`
	Info Info   `json:"info"`
}
