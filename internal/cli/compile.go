package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/tripwire/internal/compiler"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult summarizes a compile run.
type CompilationResult struct {
	Schedules []string `json:"schedules"`
	Output    string   `json:"output,omitempty"`
	Document  string   `json:"document,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <file>...",
		Short: "Compile schedule documents to normalized YAML",
		Long: `Compile YAML, JSON or CUE schedule documents into one normalized YAML
document with defaults applied, times in UTC and durations in Go syntax.

The output is accepted by "tripwire schedule".`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, paths []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	entries, err := loadEntries(paths)
	if err != nil {
		return failLoad(formatter, err)
	}
	formatter.VerboseLog("Compiled %d schedule(s) from %d file(s)", len(entries), len(paths))

	data, err := compiler.ExportYAML(entries)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeInvalidDocument, "export failed", err)
	}

	result := CompilationResult{Schedules: make([]string, 0, len(entries))}
	for _, e := range entries {
		result.Schedules = append(result.Schedules, e.Name)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to write output", err)
		}
		result.Output = opts.Output
		if formatter.IsJSON() {
			return formatter.Success(result)
		}
		formatter.Textf("%s Compiled %d schedule(s) to %s", okMark, len(entries), opts.Output)
		return nil
	}

	if formatter.IsJSON() {
		result.Document = string(data)
		return formatter.Success(result)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// loadEntries compiles every file and rejects schedule names repeated
// across files.
func loadEntries(paths []string) ([]compiler.Entry, error) {
	var all []compiler.Entry
	seen := make(map[string]string)
	for _, path := range paths {
		entries, err := compiler.LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Name == "" {
				all = append(all, e)
				continue
			}
			if first, ok := seen[e.Name]; ok {
				return nil, fmt.Errorf("%s: schedule %q already defined in %s", path, e.Name, first)
			}
			seen[e.Name] = path
			all = append(all, e)
		}
	}
	return all, nil
}

// failLoad reports a document loading error with the matching code.
func failLoad(formatter *OutputFormatter, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "file not found", err)
	}
	return formatter.Fail(ExitFailure, ErrCodeInvalidDocument, "invalid schedule document", err)
}
