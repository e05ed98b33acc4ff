package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tripwire/internal/schedule"
	"github.com/roach88/tripwire/internal/value"
)

// EditOptions holds flags for the edit command.
type EditOptions struct {
	*RootOptions
	Limit           int
	Priority        int
	Start           string
	End             string
	Interval        time.Duration
	EditGracePeriod time.Duration
	Data            string
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a stored schedule",
		Long: `Change the mutable fields of a stored schedule. Only the flags given are
applied; trigger progress and execution state are kept.

Pass an empty --start or --end to open that side of the window.

Example:
  tripwire edit 0192f1c2-... --limit 5 --end 2026-01-01T00:00:00Z
  tripwire edit 0192f1c2-... --data '{"log": {"message": "hi"}}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of executions")
	cmd.Flags().IntVar(&opts.Priority, "priority", 0, "priority (lower runs first)")
	cmd.Flags().StringVar(&opts.Start, "start", "", "start of the validity window (RFC 3339)")
	cmd.Flags().StringVar(&opts.End, "end", "", "end of the validity window (RFC 3339)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "minimum time between executions")
	cmd.Flags().DurationVar(&opts.EditGracePeriod, "edit-grace-period", 0, "edit grace period")
	cmd.Flags().StringVar(&opts.Data, "data", "", "schedule data as JSON")

	return cmd
}

// edits builds the sparse edits from the flags that were set.
func (o *EditOptions) edits(cmd *cobra.Command) (schedule.Edits, error) {
	var e schedule.Edits
	flags := cmd.Flags()
	if flags.Changed("limit") {
		e.Limit = &o.Limit
	}
	if flags.Changed("priority") {
		e.Priority = &o.Priority
	}
	if flags.Changed("start") {
		t, err := parseWindowTime("start", o.Start)
		if err != nil {
			return e, err
		}
		e.Start = &t
	}
	if flags.Changed("end") {
		t, err := parseWindowTime("end", o.End)
		if err != nil {
			return e, err
		}
		e.End = &t
	}
	if flags.Changed("interval") {
		e.Interval = &o.Interval
	}
	if flags.Changed("edit-grace-period") {
		e.EditGracePeriod = &o.EditGracePeriod
	}
	if flags.Changed("data") {
		v, err := value.Parse([]byte(o.Data))
		if err != nil {
			return e, fmt.Errorf("--data: %w", err)
		}
		e.Data = v
	}
	return e, nil
}

func parseWindowTime(flag, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", flag, err)
	}
	return t.UTC(), nil
}

func runEdit(opts *EditOptions, id string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	edits, err := opts.edits(cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidArgs, "invalid edit", err)
	}
	if edits.IsEmpty() {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidArgs, "no edits given", nil)
	}

	ctx := commandContext(cmd)
	return withSession(opts.RootOptions, cmd, func(s *session) error {
		eng := s.engine
		edited, err := await(ctx, eng.EditSchedule(id, edits))
		if err != nil {
			return err
		}
		if edited == nil {
			return formatter.Fail(ExitFailure, ErrCodeRejected, "schedule not found or edit rejected: "+id, nil)
		}
		st, err := await(ctx, eng.GetStatus(id))
		if err != nil {
			return err
		}
		view := newScheduleView(edited, st)
		if formatter.IsJSON() {
			return formatter.Success(view)
		}
		formatter.Textf("%s %s", okMark, view)
		return nil
	})
}
