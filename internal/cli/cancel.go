package cli

import (
	"github.com/spf13/cobra"
)

// CancelOptions holds flags for the cancel command.
type CancelOptions struct {
	*RootOptions
	Group string
	All   bool
}

// CancelResult reports what a cancel removed.
type CancelResult struct {
	IDs     []string `json:"ids,omitempty"`
	Group   string   `json:"group,omitempty"`
	All     bool     `json:"all,omitempty"`
	Removed bool     `json:"removed"`
}

// NewCancelCommand creates the cancel command.
func NewCancelCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CancelOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cancel [id...]",
		Short: "Delete schedules",
		Long: `Delete schedules by id, by group or all of them. Pending delays of the
deleted schedules are revoked.

Example:
  tripwire cancel 0192f1c2-...
  tripwire cancel --group promo
  tripwire cancel --all`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCancel(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Group, "group", "g", "", "delete every schedule in this group")
	cmd.Flags().BoolVar(&opts.All, "all", false, "delete every schedule")

	return cmd
}

func runCancel(opts *CancelOptions, ids []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	modes := 0
	if len(ids) > 0 {
		modes++
	}
	if opts.Group != "" {
		modes++
	}
	if opts.All {
		modes++
	}
	if modes != 1 {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidArgs, "give schedule ids, --group or --all", nil)
	}

	ctx := commandContext(cmd)
	result := CancelResult{IDs: ids, Group: opts.Group, All: opts.All}
	err := withSession(opts.RootOptions, cmd, func(s *session) error {
		eng := s.engine
		switch {
		case opts.All:
			_, err := await(ctx, eng.CancelAll())
			result.Removed = err == nil
			return err
		case opts.Group != "":
			removed, err := await(ctx, eng.CancelGroup(opts.Group))
			result.Removed = removed
			return err
		default:
			_, err := await(ctx, eng.Cancel(ids...))
			result.Removed = err == nil
			return err
		}
	})
	if err != nil {
		return err
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	switch {
	case opts.All:
		formatter.Textf("%s Cancelled all schedules", okMark)
	case opts.Group != "" && !result.Removed:
		formatter.Textf("No schedules in group %s", opts.Group)
	case opts.Group != "":
		formatter.Textf("%s Cancelled group %s", okMark, opts.Group)
	default:
		formatter.Textf("%s Cancelled %d schedule(s)", okMark, len(ids))
	}
	return nil
}
