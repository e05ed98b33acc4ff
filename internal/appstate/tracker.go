package appstate

import (
	"sync"

	"github.com/roach88/tripwire/internal/schedule"
	"github.com/roach88/tripwire/internal/value"
)

// Snapshot is a point-in-time copy of the tracked context.
type Snapshot struct {
	Foreground bool   `json:"foreground"`
	Screen     string `json:"screen,omitempty"`
	RegionID   string `json:"region_id,omitempty"`
}

// Tracker holds the current app context. It implements engine.Environment.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a tracker starting from initial.
func NewTracker(initial Snapshot) *Tracker {
	return &Tracker{snap: initial}
}

func (t *Tracker) Foreground() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.Foreground
}

func (t *Tracker) Screen() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.Screen
}

func (t *Tracker) RegionID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.RegionID
}

// Snapshot returns a copy of the current context.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

func (t *Tracker) SetForeground(fg bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Foreground = fg
}

func (t *Tracker) SetScreen(screen string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Screen = screen
}

func (t *Tracker) SetRegion(regionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.RegionID = regionID
}

// Apply updates the context from a lifecycle, screen or region event and
// reports whether the event type carries context. Screen and region events
// take their name from a string payload or from the "screen" or
// "region_id" field of an object payload. Exiting a region other than the
// current one leaves the region unchanged.
func (t *Tracker) Apply(typ schedule.TriggerType, payload value.Value) bool {
	switch typ {
	case schedule.TriggerForeground, schedule.TriggerAppInit:
		t.SetForeground(true)
	case schedule.TriggerBackground:
		t.SetForeground(false)
	case schedule.TriggerScreenView:
		t.SetScreen(nameOf(payload, "screen"))
	case schedule.TriggerRegionEnter:
		t.SetRegion(nameOf(payload, "region_id"))
	case schedule.TriggerRegionExit:
		id := nameOf(payload, "region_id")
		t.mu.Lock()
		if id == "" || t.snap.RegionID == id {
			t.snap.RegionID = ""
		}
		t.mu.Unlock()
	default:
		return false
	}
	return true
}

func nameOf(payload value.Value, field string) string {
	switch p := payload.(type) {
	case value.String:
		return string(p)
	case value.Object:
		if s, ok := p[field].(value.String); ok {
			return string(s)
		}
	}
	return ""
}
