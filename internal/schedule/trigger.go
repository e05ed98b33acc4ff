package schedule

import (
	"fmt"

	"github.com/roach88/tripwire/internal/predicate"
)

// TriggerType is the kind of event stream a trigger counts.
type TriggerType string

const (
	TriggerForeground       TriggerType = "foreground"
	TriggerBackground       TriggerType = "background"
	TriggerAppInit          TriggerType = "app_init"
	TriggerRegionEnter      TriggerType = "region_enter"
	TriggerRegionExit       TriggerType = "region_exit"
	TriggerCustomEventCount TriggerType = "custom_event_count"
	TriggerCustomEventValue TriggerType = "custom_event_value"
	TriggerScreenView       TriggerType = "screen_view"
	TriggerASAP             TriggerType = "asap"
)

// TriggerTypes lists every trigger type in declaration order.
var TriggerTypes = []TriggerType{
	TriggerForeground,
	TriggerBackground,
	TriggerAppInit,
	TriggerRegionEnter,
	TriggerRegionExit,
	TriggerCustomEventCount,
	TriggerCustomEventValue,
	TriggerScreenView,
	TriggerASAP,
}

// ParseTriggerType returns the trigger type named s.
func ParseTriggerType(s string) (TriggerType, error) {
	t := TriggerType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTriggerType, s)
	}
	return t, nil
}

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	for _, known := range TriggerTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ChangesEnvironment reports whether events of this type can change the
// app state, screen or region that gate pending executions.
func (t TriggerType) ChangesEnvironment() bool {
	switch t {
	case TriggerForeground, TriggerBackground, TriggerScreenView, TriggerRegionEnter, TriggerRegionExit:
		return true
	}
	return false
}

func (t TriggerType) String() string { return string(t) }

// MarshalText implements encoding.TextMarshaler.
func (t TriggerType) MarshalText() ([]byte, error) {
	return []byte(t), nil
}

// UnmarshalText implements encoding.TextUnmarshaler and rejects unknown names.
func (t *TriggerType) UnmarshalText(text []byte) error {
	parsed, err := ParseTriggerType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Trigger is a condition with a numeric goal against a typed event stream.
// A nil Predicate matches every event of the trigger's type.
type Trigger struct {
	Type      TriggerType          `json:"type"`
	Goal      float64              `json:"goal"`
	Predicate *predicate.Predicate `json:"predicate,omitempty"`
}

// Validate checks the trigger type, goal and predicate.
func (t Trigger) Validate() error {
	if !t.Type.Valid() {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown trigger type %q", t.Type), Err: ErrUnknownTriggerType}
	}
	if !(t.Goal > 0) {
		return &ValidationError{Field: "goal", Message: fmt.Sprintf("goal must be positive, got %v", t.Goal), Err: ErrInvalidGoal}
	}
	if err := t.Predicate.Validate(); err != nil {
		return &ValidationError{Field: "predicate", Message: err.Error(), Err: err}
	}
	return nil
}
