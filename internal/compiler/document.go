package compiler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/tripwire/internal/predicate"
	"github.com/roach88/tripwire/internal/schedule"
	"github.com/roach88/tripwire/internal/value"
)

// Document is the wire form of a schedule file.
type Document struct {
	Schedules []ScheduleDoc `json:"schedules" yaml:"schedules"`
}

// ScheduleDoc is the wire form of one schedule. Times are RFC 3339 and
// durations use Go syntax ("90s", "1h30m").
type ScheduleDoc struct {
	Name            string          `json:"name,omitempty" yaml:"name,omitempty"`
	Triggers        []TriggerDoc    `json:"triggers" yaml:"triggers"`
	Data            json.RawMessage `json:"data" yaml:"-"`
	Limit           int             `json:"limit,omitempty" yaml:"limit,omitempty"`
	Priority        int             `json:"priority,omitempty" yaml:"priority,omitempty"`
	Group           string          `json:"group,omitempty" yaml:"group,omitempty"`
	Start           string          `json:"start,omitempty" yaml:"start,omitempty"`
	End             string          `json:"end,omitempty" yaml:"end,omitempty"`
	Interval        string          `json:"interval,omitempty" yaml:"interval,omitempty"`
	EditGracePeriod string          `json:"edit_grace_period,omitempty" yaml:"edit_grace_period,omitempty"`
	Delay           *DelayDoc       `json:"delay,omitempty" yaml:"delay,omitempty"`
}

// TriggerDoc is the wire form of a trigger.
type TriggerDoc struct {
	Type      string          `json:"type" yaml:"type"`
	Goal      float64         `json:"goal" yaml:"goal"`
	Predicate json.RawMessage `json:"predicate,omitempty" yaml:"-"`
}

// DelayDoc is the wire form of a schedule delay.
type DelayDoc struct {
	Seconds              int64        `json:"seconds,omitempty" yaml:"seconds,omitempty"`
	Screen               string       `json:"screen,omitempty" yaml:"screen,omitempty"`
	RegionID             string       `json:"region_id,omitempty" yaml:"region_id,omitempty"`
	AppState             string       `json:"app_state,omitempty" yaml:"app_state,omitempty"`
	CancellationTriggers []TriggerDoc `json:"cancellation_triggers,omitempty" yaml:"cancellation_triggers,omitempty"`
}

// Entry is one compiled schedule.
type Entry struct {
	Name string
	Info schedule.Info
}

// Info converts the document into a defaulted, validated schedule info.
func (d ScheduleDoc) Info() (schedule.Info, error) {
	var (
		info schedule.Info
		err  error
	)

	info.Data, err = value.Parse(d.Data)
	if err != nil {
		return info, fmt.Errorf("data: %w", err)
	}
	if info.Triggers, err = convertTriggers("triggers", d.Triggers); err != nil {
		return info, err
	}
	info.Limit = d.Limit
	info.Priority = d.Priority
	info.Group = d.Group

	if info.Start, err = parseTime("start", d.Start); err != nil {
		return info, err
	}
	if info.End, err = parseTime("end", d.End); err != nil {
		return info, err
	}
	if info.Interval, err = parseDuration("interval", d.Interval); err != nil {
		return info, err
	}
	if info.EditGracePeriod, err = parseDuration("edit_grace_period", d.EditGracePeriod); err != nil {
		return info, err
	}

	if d.Delay != nil {
		delay := &schedule.Delay{
			Seconds:  d.Delay.Seconds,
			Screen:   d.Delay.Screen,
			RegionID: d.Delay.RegionID,
			AppState: schedule.AppState(d.Delay.AppState),
		}
		if delay.CancellationTriggers, err = convertTriggers("delay.cancellation_triggers", d.Delay.CancellationTriggers); err != nil {
			return info, err
		}
		info.Delay = delay
	}

	info = info.WithDefaults()
	if err := info.Validate(); err != nil {
		return info, err
	}
	return info, nil
}

func convertTriggers(field string, docs []TriggerDoc) ([]schedule.Trigger, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	out := make([]schedule.Trigger, len(docs))
	for i, td := range docs {
		typ, err := schedule.ParseTriggerType(td.Type)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", field, i, err)
		}
		pred, err := predicate.Parse(td.Predicate)
		if err != nil {
			return nil, fmt.Errorf("%s[%d].predicate: %w", field, i, err)
		}
		out[i] = schedule.Trigger{Type: typ, Goal: td.Goal, Predicate: pred}
	}
	return out, nil
}

func parseTime(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", field, err)
	}
	return t.UTC(), nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

// FromInfo converts info back into its wire form.
func FromInfo(name string, info schedule.Info) (ScheduleDoc, error) {
	data, err := value.MarshalCanonical(info.Data)
	if err != nil {
		return ScheduleDoc{}, fmt.Errorf("data: %w", err)
	}
	d := ScheduleDoc{
		Name:     name,
		Triggers: triggerDocs(info.Triggers),
		Data:     data,
		Limit:    info.Limit,
		Priority: info.Priority,
		Group:    info.Group,
	}
	if !info.Start.IsZero() {
		d.Start = info.Start.UTC().Format(time.RFC3339)
	}
	if !info.End.IsZero() {
		d.End = info.End.UTC().Format(time.RFC3339)
	}
	if info.Interval > 0 {
		d.Interval = info.Interval.String()
	}
	if info.EditGracePeriod > 0 {
		d.EditGracePeriod = info.EditGracePeriod.String()
	}
	if info.Delay != nil {
		d.Delay = &DelayDoc{
			Seconds:              info.Delay.Seconds,
			Screen:               info.Delay.Screen,
			RegionID:             info.Delay.RegionID,
			AppState:             string(info.Delay.AppState),
			CancellationTriggers: triggerDocs(info.Delay.CancellationTriggers),
		}
	}
	return d, nil
}

func triggerDocs(triggers []schedule.Trigger) []TriggerDoc {
	if len(triggers) == 0 {
		return nil
	}
	out := make([]TriggerDoc, len(triggers))
	for i, t := range triggers {
		out[i] = TriggerDoc{Type: string(t.Type), Goal: t.Goal}
		if t.Predicate != nil {
			out[i].Predicate = value.MustMarshalCanonical(t.Predicate.ToValue())
		}
	}
	return out
}
