package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/roach88/tripwire/internal/appstate"
	"github.com/roach88/tripwire/internal/engine"
	"github.com/roach88/tripwire/internal/schedule"
	"github.com/roach88/tripwire/internal/store"
	"github.com/roach88/tripwire/internal/testutil"
)

// waitTimeout bounds every wait on the engine. Scenarios never block on
// real time, so hitting it means the engine is stuck.
const waitTimeout = 10 * time.Second

type observed struct {
	state   string
	count   int
	pending int64
}

// Harness drives one engine through a scenario with deterministic time.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	engine   *engine.Engine
	clock    *testutil.FakeClock
	timers   *testutil.ManualScheduler
	ids      *testutil.SequentialIDGenerator
	env      *appstate.Tracker
	exec     *recorder

	cancel context.CancelFunc
	done   chan error

	// order holds schedule ids in scenario order; byName maps names to ids.
	order  []string
	byName map[string]string
	last   map[string]observed

	step   int
	result *Result
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh database for isolation. Deterministic
// helpers ensure reproducible results.
//
// Execution flow:
// 1. Create a fresh database and start the engine
// 2. Compile and schedule the scenario's schedules
// 3. Execute steps, recording executions and state changes
// 4. Evaluate assertions against the final result
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "tripwire-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "harness.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	start, err := scenario.StartTime()
	if err != nil {
		return nil, err
	}
	entries, err := scenario.Entries()
	if err != nil {
		return nil, fmt.Errorf("failed to compile schedules: %w", err)
	}

	clock := testutil.NewFakeClock(start)
	h := &Harness{
		scenario: scenario,
		store:    st,
		clock:    clock,
		timers:   testutil.NewManualScheduler(),
		ids:      testutil.NewSequentialIDGenerator(""),
		env:      appstate.NewTracker(appstate.Snapshot{Foreground: true}),
		exec:     newRecorder(clock, scenario.AutoComplete),
		byName:   make(map[string]string),
		last:     make(map[string]observed),
		result:   NewResult(),
	}
	h.startEngine()
	defer h.stopEngine()

	infos := make([]schedule.Info, len(entries))
	for i, e := range entries {
		infos[i] = e.Info
	}
	f, err := h.engine.ScheduleAll(infos)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule: %w", err)
	}
	scheduled, err := wait(f)
	if err != nil {
		return nil, err
	}
	if scheduled == nil {
		return nil, fmt.Errorf("schedules rejected (limit %d)", h.limit())
	}
	h.exec.mu.Lock()
	for i, s := range scheduled {
		h.order = append(h.order, s.ID)
		h.byName[entries[i].Name] = s.ID
		h.exec.names[s.ID] = entries[i].Name
	}
	h.exec.mu.Unlock()

	if err := h.record(); err != nil {
		return nil, err
	}

	for i, step := range scenario.Steps {
		h.step = i + 1
		h.exec.setStep(h.step)
		if err := h.apply(step); err != nil {
			return nil, fmt.Errorf("step %d: %w", h.step, err)
		}
		if err := h.record(); err != nil {
			return nil, fmt.Errorf("step %d: %w", h.step, err)
		}
	}

	h.exec.mu.Lock()
	h.result.Executions = append(h.result.Executions, h.exec.executions...)
	h.exec.mu.Unlock()
	for id, o := range h.last {
		h.result.Final[h.exec.name(id)] = FinalState{State: o.state, Count: o.count}
	}

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func (h *Harness) limit() int {
	if h.scenario.ScheduleLimit > 0 {
		return h.scenario.ScheduleLimit
	}
	return engine.DefaultScheduleLimit
}

func (h *Harness) startEngine() {
	h.engine = engine.New(h.store, h.exec,
		engine.WithClock(h.clock),
		engine.WithDelayedTaskScheduler(h.timers),
		engine.WithIDGenerator(h.ids),
		engine.WithEnvironment(h.env),
		engine.WithScheduleLimit(h.limit()),
	)
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	eng := h.engine
	go func() { h.done <- eng.Run(ctx) }()
}

func (h *Harness) stopEngine() {
	if h.engine == nil {
		return
	}
	h.engine.Stop()
	select {
	case <-h.done:
	case <-time.After(waitTimeout):
	}
	h.cancel()
	h.engine = nil
}

func wait[T any](f *engine.Future[T]) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	return f.Wait(ctx)
}

// flush waits until every task queued so far has run.
func (h *Harness) flush() error {
	_, err := wait(h.engine.GetAllSchedules())
	return err
}

func (h *Harness) apply(st Step) error {
	switch {
	case st.Event != nil:
		typ, err := schedule.ParseTriggerType(st.Event.Type)
		if err != nil {
			return err
		}
		payload, err := st.Event.payload()
		if err != nil {
			return err
		}
		h.env.Apply(typ, payload)
		_, err = wait(h.engine.OnEvent(typ, payload, st.Event.value()))
		return err

	case st.Advance != "":
		d, err := time.ParseDuration(st.Advance)
		if err != nil {
			return err
		}
		return h.advance(d)

	case st.AppState != "":
		h.env.SetForeground(st.AppState == "foreground")
	case st.Screen != nil:
		h.env.SetScreen(*st.Screen)
	case st.Region != nil:
		h.env.SetRegion(*st.Region)
	case st.Ready != nil:
		h.exec.setReady(*st.Ready)

	case st.Complete:
		for _, cb := range h.exec.takePending() {
			cb()
		}
		return h.flush()

	case st.CheckPending:
		_, err := wait(h.engine.CheckPendingSchedules())
		return err

	case st.Cancel != "":
		_, err := wait(h.engine.Cancel(h.byName[st.Cancel]))
		return err

	case st.CancelGroup != "":
		_, err := wait(h.engine.CancelGroup(st.CancelGroup))
		return err

	case st.Restart:
		h.stopEngine()
		h.startEngine()
		return h.flush()
	}
	return nil
}

// advance moves the clock to each armed delay in due order, firing it at
// its own time, then to the final reading.
func (h *Harness) advance(d time.Duration) error {
	target := h.clock.Now().Add(d)
	for {
		next, ok := h.nextDue(target)
		if !ok {
			break
		}
		h.clock.Set(next)
		h.timers.FireDue(next)
		if err := h.flush(); err != nil {
			return err
		}
	}
	h.clock.Set(target)
	return nil
}

func (h *Harness) nextDue(limit time.Time) (time.Time, bool) {
	var (
		next  time.Time
		found bool
	)
	for _, key := range h.timers.Armed() {
		when, ok := h.timers.When(key)
		if !ok || when.After(limit) {
			continue
		}
		if !found || when.Before(next) {
			next, found = when, true
		}
	}
	if found && next.Before(h.clock.Now()) {
		next = h.clock.Now()
	}
	return next, found
}

// record appends the step's executions and the state changes since the
// previous step to the trace.
func (h *Harness) record() error {
	if err := h.flush(); err != nil {
		return err
	}
	h.result.Trace = append(h.result.Trace, h.exec.drain()...)

	now := h.clock.Now()
	for _, id := range h.order {
		status, err := wait(h.engine.GetStatus(id))
		if err != nil {
			return err
		}
		prev, seen := h.last[id]
		if status == nil {
			if seen {
				delete(h.last, id)
				h.result.Trace = append(h.result.Trace, TraceEvent{
					Step: h.step, At: now, Kind: KindRemoved, Schedule: h.exec.name(id),
				})
			}
			continue
		}

		cur := observed{state: status.StateName, count: status.Count, pending: status.PendingExecutionDate}
		if seen && cur == prev {
			continue
		}
		h.last[id] = cur
		ev := TraceEvent{
			Step:     h.step,
			At:       now,
			Kind:     KindState,
			Schedule: h.exec.name(id),
			State:    cur.state,
			Count:    cur.count,
		}
		if cur.pending > 0 {
			ev.Pending = time.UnixMilli(cur.pending).UTC()
		}
		h.result.Trace = append(h.result.Trace, ev)
	}
	return nil
}

// Names returns the names of the remaining schedules, sorted.
func (r *Result) Names() []string {
	names := make([]string, 0, len(r.Final))
	for n := range r.Final {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
