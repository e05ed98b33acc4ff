package schedule

import (
	"time"

	"github.com/roach88/tripwire/internal/value"
)

// Edits is a sparse override of a schedule's mutable fields. A nil field
// leaves the current value unchanged. Setting Start or End to the zero time
// opens that side of the window.
type Edits struct {
	Limit           *int           `json:"limit,omitempty"`
	Priority        *int           `json:"priority,omitempty"`
	Start           *time.Time     `json:"start,omitempty"`
	End             *time.Time     `json:"end,omitempty"`
	Interval        *time.Duration `json:"interval,omitempty"`
	EditGracePeriod *time.Duration `json:"edit_grace_period,omitempty"`
	Data            value.Value    `json:"data,omitempty"`
}

// IsEmpty reports whether the edits change nothing.
func (e Edits) IsEmpty() bool {
	return e.Limit == nil && e.Priority == nil && e.Start == nil && e.End == nil &&
		e.Interval == nil && e.EditGracePeriod == nil && e.Data == nil
}

// Apply returns info with the non-nil edits applied and re-validated.
// Triggers and delay are never edited.
func (e Edits) Apply(info Info) (Info, error) {
	if e.Limit != nil {
		info.Limit = *e.Limit
	}
	if e.Priority != nil {
		info.Priority = *e.Priority
	}
	if e.Start != nil {
		info.Start = *e.Start
	}
	if e.End != nil {
		info.End = *e.End
	}
	if e.Interval != nil {
		info.Interval = *e.Interval
	}
	if e.EditGracePeriod != nil {
		info.EditGracePeriod = *e.EditGracePeriod
	}
	if e.Data != nil {
		info.Data = e.Data
	}
	if err := info.Validate(); err != nil {
		return Info{}, err
	}
	return info, nil
}
