package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/roach88/tripwire/internal/appstate"
	"github.com/roach88/tripwire/internal/engine"
	"github.com/roach88/tripwire/internal/schedule"
	"github.com/roach88/tripwire/internal/value"
)

// EventMessage is one event as read from a command line or an event stream.
// A missing value counts as 1 and a missing payload as null.
type EventMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Value   *float64        `json:"value,omitempty"`
}

type event struct {
	typ     schedule.TriggerType
	payload value.Value
	value   float64
}

func (m EventMessage) parse() (event, error) {
	t, err := schedule.ParseTriggerType(m.Type)
	if err != nil {
		return event{}, err
	}
	ev := event{typ: t, payload: value.Null{}, value: 1}
	if len(m.Payload) > 0 {
		p, err := value.Parse(m.Payload)
		if err != nil {
			return event{}, fmt.Errorf("payload: %w", err)
		}
		ev.payload = p
	}
	if m.Value != nil {
		if math.IsNaN(*m.Value) || math.IsInf(*m.Value, 0) {
			return event{}, fmt.Errorf("value must be a finite number, got %v", *m.Value)
		}
		ev.value = *m.Value
	}
	return ev, nil
}

// EventOptions holds flags for the event command.
type EventOptions struct {
	*RootOptions
	Payload    string
	Value      float64
	Screen     string
	Region     string
	Background bool
}

// EventResult reports the schedules that ran for an event.
type EventResult struct {
	Type   string         `json:"type"`
	Before []ScheduleView `json:"before"`
	After  []ScheduleView `json:"after"`
}

// NewEventCommand creates the event command.
func NewEventCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "event <type>",
		Short: "Deliver one event to the stored schedules",
		Long: `Deliver one event, run whatever it triggers and wait for the actions to
finish.

The app context used for delay gates is given by --screen, --region and
--background, then updated by the event itself.

Example:
  tripwire event app_init
  tripwire event custom_event_count --payload '{"name": "add_to_cart"}'
  tripwire event custom_event_value --value 25 --payload '{"currency": "USD"}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvent(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Payload, "payload", "", "event payload as JSON")
	cmd.Flags().Float64Var(&opts.Value, "value", 1, "event value added to trigger progress")
	cmd.Flags().StringVar(&opts.Screen, "screen", "", "current screen")
	cmd.Flags().StringVar(&opts.Region, "region", "", "current region id")
	cmd.Flags().BoolVar(&opts.Background, "background", false, "app is in the background")

	return cmd
}

func runEvent(opts *EventOptions, typ string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	msg := EventMessage{Type: typ, Value: &opts.Value}
	if opts.Payload != "" {
		msg.Payload = json.RawMessage(opts.Payload)
	}
	ev, err := msg.parse()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidArgs, "invalid event", err)
	}

	tracker := appstate.NewTracker(appstate.Snapshot{
		Foreground: !opts.Background,
		Screen:     opts.Screen,
		RegionID:   opts.Region,
	})
	tracker.Apply(ev.typ, ev.payload)

	ctx := commandContext(cmd)
	result := EventResult{Type: typ}
	err = withSession(opts.RootOptions, cmd, func(s *session) error {
		before, err := snapshotViews(ctx, s.engine)
		if err != nil {
			return err
		}
		if _, err := await(ctx, s.engine.OnEvent(ev.typ, ev.payload, ev.value)); err != nil {
			return err
		}
		s.settle()
		after, err := snapshotViews(ctx, s.engine)
		if err != nil {
			return err
		}
		result.Before, result.After = before, after
		return nil
	}, engine.WithEnvironment(tracker))
	if err != nil {
		return err
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	formatter.Textf("%s Delivered %s", okMark, typ)
	for _, change := range describeChanges(result.Before, result.After) {
		formatter.Textf("  %s", change)
	}
	return nil
}

func snapshotViews(ctx context.Context, eng *engine.Engine) ([]ScheduleView, error) {
	all, err := await(ctx, eng.GetAllSchedules())
	if err != nil {
		return nil, err
	}
	return withStatus(ctx, eng, all)
}

// describeChanges lists schedules whose state or count moved, and those
// that were fulfilled or expired.
func describeChanges(before, after []ScheduleView) []string {
	now := make(map[string]ScheduleView, len(after))
	for _, v := range after {
		now[v.ID] = v
	}
	var out []string
	for _, b := range before {
		a, ok := now[b.ID]
		if !ok {
			out = append(out, fmt.Sprintf("%s removed", b.ID))
			continue
		}
		if b.Status == nil || a.Status == nil {
			continue
		}
		if a.Status.Count != b.Status.Count || a.Status.StateName != b.Status.StateName {
			out = append(out, fmt.Sprintf("%s %s %d/%d", a.ID, stateLabel(a.Status.StateName), a.Status.Count, a.Limit))
		}
	}
	return out
}
