package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/roach88/tripwire/internal/actions"
	"github.com/roach88/tripwire/internal/compiler"
)

// FileResult holds the validation outcome of one document.
type FileResult struct {
	Path      string   `json:"path"`
	Valid     bool     `json:"valid"`
	Schedules []string `json:"schedules,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool         `json:"valid"`
	Files []FileResult `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate schedule documents",
		Long: `Validate YAML, JSON or CUE schedule documents without storing them.

Each document is checked against the document schema, every schedule is
checked for valid triggers, window and delay, and schedule data is checked
against the registered actions.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	registry := actions.DefaultRegistry()

	result := ValidationResult{Valid: true, Files: make([]FileResult, 0, len(paths))}
	missing := false
	for _, path := range paths {
		fr := validateFile(path, registry)
		if !fr.Valid {
			result.Valid = false
		}
		if fr.missing {
			missing = true
		}
		formatter.VerboseLog("Validated %s: %d schedule(s)", path, len(fr.Schedules))
		result.Files = append(result.Files, fr.FileResult)
	}

	if formatter.IsJSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		for _, fr := range result.Files {
			if fr.Valid {
				formatter.Textf("%s %s (%d schedule(s))", okMark, fr.Path, len(fr.Schedules))
				continue
			}
			formatter.Textf("%s %s", failMark, fr.Path)
			for _, e := range fr.Errors {
				formatter.Textf("  %s", e)
			}
		}
	}

	switch {
	case missing:
		return NewExitError(ExitCommandError, "one or more files could not be read")
	case !result.Valid:
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

type fileCheck struct {
	FileResult
	missing bool
}

func validateFile(path string, registry *actions.Registry) fileCheck {
	fc := fileCheck{FileResult: FileResult{Path: path}}
	entries, err := compiler.LoadFile(path)
	if err != nil {
		fc.Errors = []string{err.Error()}
		fc.missing = errors.Is(err, fs.ErrNotExist)
		return fc
	}
	for _, e := range entries {
		fc.Schedules = append(fc.Schedules, e.Name)
		if err := registry.Check(e.Info.Data); err != nil {
			fc.Errors = append(fc.Errors, fmt.Sprintf("schedule %q: data: %v", e.Name, err))
		}
	}
	fc.Valid = len(fc.Errors) == 0
	return fc
}
