package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/tripwire/internal/actions"
	"github.com/roach88/tripwire/internal/engine"
	"github.com/roach88/tripwire/internal/schedule"
)

// ScheduledEntry maps a document name to the id the engine assigned.
type ScheduledEntry struct {
	Name string `json:"name,omitempty"`
	ID   string `json:"id"`
}

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule <file>...",
		Short: "Store the schedules of one or more documents",
		Long: `Compile schedule documents and store every schedule in one batch.

Either all schedules are stored or none are: the batch is rejected when it
would exceed the configured schedule limit.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runSchedule(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	entries, err := loadEntries(paths)
	if err != nil {
		return failLoad(formatter, err)
	}
	registry := actions.DefaultRegistry()
	infos := make([]schedule.Info, len(entries))
	for i, e := range entries {
		if err := registry.Check(e.Info.Data); err != nil {
			return formatter.Fail(ExitFailure, ErrCodeInvalidDocument, "schedule "+e.Name+" has invalid data", err)
		}
		infos[i] = e.Info
	}

	var created []*schedule.Schedule
	err = withSession(opts, cmd, func(s *session) error {
		eng := s.engine
		var err error
		created, err = scheduleInfos(cmd, eng, infos)
		return err
	})
	if err != nil {
		return err
	}
	if created == nil {
		return formatter.Fail(ExitFailure, ErrCodeRejected, "schedules rejected", nil)
	}

	result := make([]ScheduledEntry, len(created))
	for i, sc := range created {
		result[i] = ScheduledEntry{Name: entries[i].Name, ID: sc.ID}
	}
	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	for _, r := range result {
		formatter.Textf("%s %s %s", okMark, r.ID, r.Name)
	}
	return nil
}

// scheduleInfos stores infos as one batch. A nil result means the engine
// rejected the batch.
func scheduleInfos(cmd *cobra.Command, eng *engine.Engine, infos []schedule.Info) ([]*schedule.Schedule, error) {
	f, err := eng.ScheduleAll(infos)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "invalid schedule", err)
	}
	return await(commandContext(cmd), f)
}
