package harness

import (
	"time"

	"github.com/roach88/tripwire/internal/value"
)

// Trace event kinds.
const (
	KindExecute = "execute"
	KindState   = "state"
	KindRemoved = "removed"
)

// StateRemoved is the final state of a schedule that no longer exists.
const StateRemoved = "REMOVED"

// TraceEvent is one observed engine effect. Step 0 is the initial
// scheduling; step n is the n-th scenario step.
type TraceEvent struct {
	Step     int       `json:"step"`
	At       time.Time `json:"at"`
	Kind     string    `json:"kind"`
	Schedule string    `json:"schedule"`
	State    string    `json:"state,omitempty"`
	Count    int       `json:"count"`
	Pending  time.Time `json:"pending,omitzero"`
}

// toValue renders the event with only the fields its kind uses.
func (e TraceEvent) toValue() value.Value {
	obj := value.Object{
		"step":     value.Number(e.Step),
		"at":       value.String(e.At.UTC().Format(time.RFC3339)),
		"kind":     value.String(e.Kind),
		"schedule": value.String(e.Schedule),
	}
	if e.Kind == KindState {
		obj["state"] = value.String(e.State)
		obj["count"] = value.Number(e.Count)
		if !e.Pending.IsZero() {
			obj["pending"] = value.String(e.Pending.UTC().Format(time.RFC3339))
		}
	}
	return obj
}

// FinalState is a schedule's runtime state after the last step.
type FinalState struct {
	State string `json:"state"`
	Count int    `json:"count"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace contains executions and state changes in order.
	Trace []TraceEvent `json:"trace"`

	// Executions lists schedule names in execution order.
	Executions []string `json:"executions"`

	// Final maps the name of every remaining schedule to its state.
	Final map[string]FinalState `json:"final"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Trace:      []TraceEvent{},
		Executions: []string{},
		Final:      make(map[string]FinalState),
		Errors:     []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// ExecutionCount returns how many times the named schedule executed.
func (r *Result) ExecutionCount(name string) int {
	n := 0
	for _, e := range r.Executions {
		if e == name {
			n++
		}
	}
	return n
}
