package schedule

import (
	"errors"
	"fmt"
)

// Sentinel validation failures. Every *ValidationError wraps one of these.
var (
	ErrNoTriggers                  = errors.New("schedule has no triggers")
	ErrTooManyTriggers             = errors.New("schedule has too many triggers")
	ErrTooManyCancellationTriggers = errors.New("delay has too many cancellation triggers")
	ErrNoData                      = errors.New("schedule has no data")
	ErrInvalidWindow               = errors.New("schedule start is after end")
	ErrInvalidLimit                = errors.New("schedule limit must be at least 1")
	ErrInvalidGoal                 = errors.New("trigger goal must be positive")
	ErrUnknownTriggerType          = errors.New("unknown trigger type")
	ErrUnknownAppState             = errors.New("unknown app state")
	ErrInvalidDuration             = errors.New("duration must not be negative")
)

// ValidationError describes a rejected schedule field.
type ValidationError struct {
	// Field is the dotted path of the offending field, e.g. "triggers[2].goal".
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap returns the sentinel describing the failure.
func (e *ValidationError) Unwrap() error { return e.Err }

// prefixed returns err with its field path nested under prefix.
func prefixed(prefix string, err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		field := prefix
		if ve.Field != "" {
			field = prefix + "." + ve.Field
		}
		return &ValidationError{Field: field, Message: ve.Message, Err: ve.Err}
	}
	return &ValidationError{Field: prefix, Message: err.Error(), Err: err}
}
