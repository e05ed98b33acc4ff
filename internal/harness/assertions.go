package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type       string   // Assertion type for categorization
	Expected   string   // Human-readable expected outcome
	Actual     string   // Human-readable actual outcome
	Executions []string // Execution order for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nExecutions:\n")
	for i, name := range e.Executions {
		fmt.Fprintf(&buf, "  [%d] %s\n", i+1, name)
	}
	return buf.String()
}

func assertExecutions(r *Result, a Assertion) error {
	got := r.ExecutionCount(a.Schedule)
	if got == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:       AssertExecutions,
		Expected:   fmt.Sprintf("%s executed %d times", a.Schedule, *a.Count),
		Actual:     fmt.Sprintf("executed %d times", got),
		Executions: r.Executions,
	}
}

// assertExecutionOrder checks that the schedules' first executions appear
// in the given order. Other executions may come in between.
func assertExecutionOrder(r *Result, a Assertion) error {
	prev := -1
	for i, name := range a.Schedules {
		pos := slices.Index(r.Executions, name)
		if pos < 0 {
			return &AssertionError{
				Type:       AssertExecutionOrder,
				Expected:   fmt.Sprintf("all schedules executed: %v", a.Schedules),
				Actual:     fmt.Sprintf("%s never executed", name),
				Executions: r.Executions,
			}
		}
		if pos <= prev {
			return &AssertionError{
				Type:     AssertExecutionOrder,
				Expected: fmt.Sprintf("executions in order: %v", a.Schedules),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					a.Schedules[i-1], prev+1, name, pos+1),
				Executions: r.Executions,
			}
		}
		prev = pos
	}
	return nil
}

func assertRemaining(r *Result, a Assertion) error {
	names := r.Names()
	if a.Count != nil {
		if len(names) == *a.Count {
			return nil
		}
		return &AssertionError{
			Type:       AssertRemaining,
			Expected:   fmt.Sprintf("%d schedules remaining", *a.Count),
			Actual:     fmt.Sprintf("%d remaining: %v", len(names), names),
			Executions: r.Executions,
		}
	}

	want := slices.Clone(a.Schedules)
	slices.Sort(want)
	if slices.Equal(want, names) {
		return nil
	}
	return &AssertionError{
		Type:       AssertRemaining,
		Expected:   fmt.Sprintf("remaining %v", want),
		Actual:     fmt.Sprintf("remaining %v", names),
		Executions: r.Executions,
	}
}

func assertFinalState(r *Result, a Assertion) error {
	got := StateRemoved
	if fs, ok := r.Final[a.Schedule]; ok {
		got = fs.State
	}
	if strings.EqualFold(got, a.State) {
		return nil
	}
	return &AssertionError{
		Type:       AssertFinalState,
		Expected:   fmt.Sprintf("%s in state %s", a.Schedule, a.State),
		Actual:     fmt.Sprintf("state %s", got),
		Executions: r.Executions,
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertExecutions:
			err = assertExecutions(result, a)
		case AssertExecutionOrder:
			err = assertExecutionOrder(result, a)
		case AssertRemaining:
			err = assertRemaining(result, a)
		case AssertFinalState:
			err = assertFinalState(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}
