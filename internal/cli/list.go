package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tripwire/internal/compiler"
	"github.com/roach88/tripwire/internal/engine"
	"github.com/roach88/tripwire/internal/schedule"
)

// ScheduleView is a schedule joined with its runtime status.
type ScheduleView struct {
	ID       string         `json:"id"`
	Group    string         `json:"group,omitempty"`
	Priority int            `json:"priority"`
	Limit    int            `json:"limit"`
	Triggers []string       `json:"triggers"`
	Status   *engine.Status `json:"status,omitempty"`
	Info     *schedule.Info `json:"info,omitempty"`
}

func newScheduleView(s *schedule.Schedule, st *engine.Status) ScheduleView {
	v := ScheduleView{
		ID:       s.ID,
		Group:    s.Info.Group,
		Priority: s.Info.Priority,
		Limit:    s.Info.Limit,
		Status:   st,
	}
	for _, t := range s.Info.Triggers {
		v.Triggers = append(v.Triggers, string(t.Type))
	}
	return v
}

// String renders one line of text output.
func (v ScheduleView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  priority=%d", v.ID, v.Priority)
	if v.Group != "" {
		fmt.Fprintf(&b, " group=%s", v.Group)
	}
	fmt.Fprintf(&b, " triggers=%s", strings.Join(v.Triggers, ","))
	if v.Status != nil {
		fmt.Fprintf(&b, " %s %d/%d", stateLabel(v.Status.StateName), v.Status.Count, v.Limit)
		if v.Status.PendingExecutionDate > 0 {
			fmt.Fprintf(&b, " due=%s", time.UnixMilli(v.Status.PendingExecutionDate).UTC().Format(time.RFC3339))
		}
	}
	return b.String()
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Group string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List stored schedules and their state",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Group, "group", "g", "", "only list schedules in this group")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := commandContext(cmd)

	return withSession(opts.RootOptions, cmd, func(s *session) error {
		eng := s.engine
		f := eng.GetAllSchedules()
		if opts.Group != "" {
			f = eng.GetSchedulesByGroup(opts.Group)
		}
		schedules, err := await(ctx, f)
		if err != nil {
			return err
		}
		views, err := withStatus(ctx, eng, schedules)
		if err != nil {
			return err
		}

		if formatter.IsJSON() {
			return formatter.Success(views)
		}
		if len(views) == 0 {
			formatter.Textf("No schedules.")
			return nil
		}
		for _, v := range views {
			formatter.Textf("%s", v)
		}
		return nil
	})
}

func withStatus(ctx context.Context, eng *engine.Engine, schedules []*schedule.Schedule) ([]ScheduleView, error) {
	views := make([]ScheduleView, 0, len(schedules))
	for _, s := range schedules {
		st, err := await(ctx, eng.GetStatus(s.ID))
		if err != nil {
			return nil, err
		}
		views = append(views, newScheduleView(s, st))
	}
	return views, nil
}

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	YAML bool
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one schedule",
		Long: `Show one schedule with its runtime state and trigger progress.

With --yaml the schedule is printed as a document that "tripwire schedule"
accepts.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.YAML, "yaml", false, "print the schedule as a YAML document")

	return cmd
}

func runGet(opts *GetOptions, id string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := commandContext(cmd)

	return withSession(opts.RootOptions, cmd, func(s *session) error {
		eng := s.engine
		sc, err := await(ctx, eng.GetSchedule(id))
		if err != nil {
			return err
		}
		if sc == nil {
			return formatter.Fail(ExitFailure, ErrCodeNotFound, "schedule not found: "+id, nil)
		}

		if opts.YAML {
			data, err := compiler.ExportYAML([]compiler.Entry{{Name: sc.ID, Info: sc.Info}})
			if err != nil {
				return formatter.Fail(ExitFailure, ErrCodeGeneric, "export failed", err)
			}
			if formatter.IsJSON() {
				return formatter.Success(map[string]string{"id": sc.ID, "document": string(data)})
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}

		st, err := await(ctx, eng.GetStatus(id))
		if err != nil {
			return err
		}
		view := newScheduleView(sc, st)
		view.Info = &sc.Info
		if formatter.IsJSON() {
			return formatter.Success(view)
		}
		formatter.Textf("%s", view)
		if st != nil && len(st.Progress) > 0 {
			formatter.Textf("  progress: %v", st.Progress)
		}
		return nil
	})
}

// withSession runs fn against an engine over the configured database and
// closes it afterwards. The engine does not treat the session as an app
// launch.
func withSession(opts *RootOptions, cmd *cobra.Command, fn func(s *session) error, extra ...engine.Option) error {
	formatter := opts.formatter(cmd)
	cfg, err := opts.Config()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to load config", err)
	}
	extra = append([]engine.Option{engine.WithoutLaunchEvents()}, extra...)
	s, err := openSession(commandContext(cmd), cfg, extra...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	err = fn(s)
	if closeErr := s.Close(); err == nil && closeErr != nil {
		err = WrapExitError(ExitCommandError, "engine error", closeErr)
	}
	return err
}
