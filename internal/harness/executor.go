package harness

import (
	"sync"

	"github.com/roach88/tripwire/internal/engine"
	"github.com/roach88/tripwire/internal/schedule"
	"github.com/roach88/tripwire/internal/testutil"
)

// recorder is the scenario executor. It records every Execute into the
// trace and holds completion callbacks until a complete step.
type recorder struct {
	mu           sync.Mutex
	clock        *testutil.FakeClock
	names        map[string]string
	notReady     bool
	autoComplete bool
	step         int
	events       []TraceEvent
	executions   []string
	pending      []func()
}

func newRecorder(clock *testutil.FakeClock, autoComplete bool) *recorder {
	return &recorder{
		clock:        clock,
		names:        make(map[string]string),
		autoComplete: autoComplete,
	}
}

func (r *recorder) CreateExecutable(s *schedule.Schedule) (engine.Executable, error) {
	return &recordedExecutable{r: r, id: s.ID}, nil
}

func (r *recorder) setStep(step int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.step = step
}

func (r *recorder) setReady(ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notReady = !ready
}

func (r *recorder) name(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.names[id]; ok {
		return n
	}
	return id
}

// drain hands over the trace events recorded since the last call.
func (r *recorder) drain() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

// takePending removes and returns the outstanding completion callbacks.
func (r *recorder) takePending() []func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pending
	r.pending = nil
	return out
}

type recordedExecutable struct {
	r  *recorder
	id string
}

func (x *recordedExecutable) IsReady() bool {
	x.r.mu.Lock()
	defer x.r.mu.Unlock()
	return !x.r.notReady
}

func (x *recordedExecutable) Execute(onComplete func()) {
	r := x.r
	r.mu.Lock()
	name := x.id
	if n, ok := r.names[x.id]; ok {
		name = n
	}
	r.events = append(r.events, TraceEvent{
		Step:     r.step,
		At:       r.clock.Now(),
		Kind:     KindExecute,
		Schedule: name,
	})
	r.executions = append(r.executions, name)
	auto := r.autoComplete
	if !auto {
		r.pending = append(r.pending, onComplete)
	}
	r.mu.Unlock()

	if auto {
		onComplete()
	}
}
