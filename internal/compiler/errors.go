package compiler

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}

// DocumentError locates a failure inside a schedule document.
type DocumentError struct {
	Source string
	Index  int // -1 when the failure concerns the whole document
	Name   string
	Err    error
}

func (e *DocumentError) Error() string {
	switch {
	case e.Index < 0:
		return fmt.Sprintf("%s: %v", e.Source, e.Err)
	case e.Name != "":
		return fmt.Sprintf("%s: schedule %q: %v", e.Source, e.Name, e.Err)
	default:
		return fmt.Sprintf("%s: schedules[%d]: %v", e.Source, e.Index, e.Err)
	}
}

func (e *DocumentError) Unwrap() error { return e.Err }
