package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tripwire/internal/compiler"
	"github.com/roach88/tripwire/internal/schedule"
	"github.com/roach88/tripwire/internal/value"
)

// DefaultStart is the clock reading a scenario starts at unless it sets one.
var DefaultStart = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the initial clock reading (RFC 3339). Defaults to DefaultStart.
	Start string `yaml:"start,omitempty"`

	// ScheduleLimit overrides the engine's global schedule cap.
	ScheduleLimit int `yaml:"schedule_limit,omitempty"`

	// AutoComplete finishes every execution as soon as it starts.
	AutoComplete bool `yaml:"auto_complete,omitempty"`

	// Schedules are schedule document entries, scheduled before step 1.
	Schedules []map[string]any `yaml:"schedules"`

	// Steps drive the engine in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final result.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scenario action. Exactly one field is set.
type Step struct {
	Event        *EventStep `yaml:"event,omitempty"`
	Advance      string     `yaml:"advance,omitempty"`
	AppState     string     `yaml:"app_state,omitempty"`
	Screen       *string    `yaml:"screen,omitempty"`
	Region       *string    `yaml:"region,omitempty"`
	Ready        *bool      `yaml:"ready,omitempty"`
	Complete     bool       `yaml:"complete,omitempty"`
	CheckPending bool       `yaml:"check_pending,omitempty"`
	Cancel       string     `yaml:"cancel,omitempty"`
	CancelGroup  string     `yaml:"cancel_group,omitempty"`
	Restart      bool       `yaml:"restart,omitempty"`
}

// EventStep submits one event.
type EventStep struct {
	Type    string   `yaml:"type"`
	Value   *float64 `yaml:"value,omitempty"`
	Payload any      `yaml:"payload,omitempty"`
}

// Assertion validates the final result.
type Assertion struct {
	// Type specifies the assertion type:
	// - "executions": Schedule executed exactly Count times
	// - "execution_order": Schedules first executed in this order
	// - "remaining": Remaining schedules equal Schedules, or number Count
	// - "final_state": Schedule ended in State
	Type string `yaml:"type"`

	Schedule  string   `yaml:"schedule,omitempty"`
	Schedules []string `yaml:"schedules,omitempty"`
	Count     *int     `yaml:"count,omitempty"`
	State     string   `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertExecutions     = "executions"
	AssertExecutionOrder = "execution_order"
	AssertRemaining      = "remaining"
	AssertFinalState     = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// StartTime returns the parsed start time.
func (s *Scenario) StartTime() (time.Time, error) {
	if s.Start == "" {
		return DefaultStart, nil
	}
	t, err := time.Parse(time.RFC3339, s.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("start: %w", err)
	}
	return t.UTC(), nil
}

// Entries compiles the scenario's schedules.
func (s *Scenario) Entries() ([]compiler.Entry, error) {
	doc := map[string]any{"schedules": s.Schedules}
	if s.Schedules == nil {
		doc["schedules"] = []any{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode schedules: %w", err)
	}
	return compiler.ParseJSON(data, s.Name)
}

func (e *EventStep) value() float64 {
	if e.Value == nil {
		return 1
	}
	return *e.Value
}

func (e *EventStep) payload() (value.Value, error) {
	if e.Payload == nil {
		return value.Null{}, nil
	}
	return value.FromAny(e.Payload)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := s.StartTime(); err != nil {
		return err
	}
	if len(s.Schedules) == 0 {
		return fmt.Errorf("schedules list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	names := make(map[string]bool, len(s.Schedules))
	for i, sc := range s.Schedules {
		name, _ := sc["name"].(string)
		if name == "" {
			return fmt.Errorf("schedules[%d]: name is required", i)
		}
		names[name] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step, names); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, names); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step, names map[string]bool) error {
	set := 0
	count := func(ok bool) {
		if ok {
			set++
		}
	}
	count(st.Event != nil)
	count(st.Advance != "")
	count(st.AppState != "")
	count(st.Screen != nil)
	count(st.Region != nil)
	count(st.Ready != nil)
	count(st.Complete)
	count(st.CheckPending)
	count(st.Cancel != "")
	count(st.CancelGroup != "")
	count(st.Restart)
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, got %d", index, set)
	}

	switch {
	case st.Event != nil:
		if _, err := schedule.ParseTriggerType(st.Event.Type); err != nil {
			return fmt.Errorf("steps[%d].event: %w", index, err)
		}
		if _, err := st.Event.payload(); err != nil {
			return fmt.Errorf("steps[%d].event.payload: %w", index, err)
		}
	case st.Advance != "":
		d, err := time.ParseDuration(st.Advance)
		if err != nil {
			return fmt.Errorf("steps[%d].advance: %w", index, err)
		}
		if d < 0 {
			return fmt.Errorf("steps[%d].advance: must not be negative", index)
		}
	case st.AppState != "":
		if st.AppState != "foreground" && st.AppState != "background" {
			return fmt.Errorf("steps[%d].app_state: must be foreground or background, got %q", index, st.AppState)
		}
	case st.Cancel != "":
		if !names[st.Cancel] {
			return fmt.Errorf("steps[%d].cancel: unknown schedule %q", index, st.Cancel)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, names map[string]bool) error {
	known := func(name string) error {
		if !names[name] {
			return fmt.Errorf("assertions[%d]: unknown schedule %q", index, name)
		}
		return nil
	}

	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertExecutions:
		if a.Schedule == "" {
			return fmt.Errorf("assertions[%d]: schedule is required for executions", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for executions", index)
		}
		return known(a.Schedule)
	case AssertExecutionOrder:
		if len(a.Schedules) == 0 {
			return fmt.Errorf("assertions[%d]: schedules list is required for execution_order", index)
		}
		for _, n := range a.Schedules {
			if err := known(n); err != nil {
				return err
			}
		}
	case AssertRemaining:
		if a.Count != nil && *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for remaining", index)
		}
		for _, n := range a.Schedules {
			if err := known(n); err != nil {
				return err
			}
		}
	case AssertFinalState:
		if a.Schedule == "" || a.State == "" {
			return fmt.Errorf("assertions[%d]: schedule and state are required for final_state", index)
		}
		return known(a.Schedule)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
