package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if strings.TrimSpace(c.Database) == "" {
		errs = append(errs, ValidationError{Field: "database", Message: "must not be empty"})
	}
	if c.ScheduleLimit < 1 {
		errs = append(errs, ValidationError{
			Field:   "schedule_limit",
			Message: fmt.Sprintf("must be at least 1, got %d", c.ScheduleLimit),
		})
	}
	if c.ReadinessTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "readiness_timeout",
			Message: fmt.Sprintf("must be positive, got %s", c.ReadinessTimeout),
		})
	}
	if c.MaxConcurrentActions < 1 {
		errs = append(errs, ValidationError{
			Field:   "max_concurrent_actions",
			Message: fmt.Sprintf("must be at least 1, got %d", c.MaxConcurrentActions),
		})
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{Field: "log.level", Message: fmt.Sprintf("unknown level %q", c.Log.Level)})
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{Field: "log.format", Message: fmt.Sprintf("unknown format %q", c.Log.Format)})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
