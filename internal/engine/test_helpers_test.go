package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tripwire/internal/schedule"
	"github.com/roach88/tripwire/internal/store"
	"github.com/roach88/tripwire/internal/testutil"
	"github.com/roach88/tripwire/internal/value"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// fakeExecutor records executions and holds their completion callbacks
// until the test calls complete.
type fakeExecutor struct {
	mu         sync.Mutex
	notReady   bool
	panicReady bool
	createErr  error
	executed   []string
	callbacks  map[string][]func()
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{callbacks: make(map[string][]func())}
}

func (f *fakeExecutor) CreateExecutable(s *schedule.Schedule) (Executable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &fakeExecutable{exec: f, id: s.ID}, nil
}

func (f *fakeExecutor) setReady(ready bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notReady = !ready
}

func (f *fakeExecutor) setPanic(p bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panicReady = p
}

func (f *fakeExecutor) executions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.executed...)
}

func (f *fakeExecutor) count(id string) int {
	n := 0
	for _, e := range f.executions() {
		if e == id {
			n++
		}
	}
	return n
}

// finish pops the oldest outstanding completion callback for id.
func (f *fakeExecutor) finish(id string) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	cbs := f.callbacks[id]
	if len(cbs) == 0 {
		return nil
	}
	f.callbacks[id] = cbs[1:]
	return cbs[0]
}

type fakeExecutable struct {
	exec *fakeExecutor
	id   string
}

func (x *fakeExecutable) IsReady() bool {
	x.exec.mu.Lock()
	defer x.exec.mu.Unlock()
	if x.exec.panicReady {
		panic("readiness exploded")
	}
	return !x.exec.notReady
}

func (x *fakeExecutable) Execute(onComplete func()) {
	x.exec.mu.Lock()
	defer x.exec.mu.Unlock()
	x.exec.executed = append(x.exec.executed, x.id)
	x.exec.callbacks[x.id] = append(x.exec.callbacks[x.id], onComplete)
}

// fakeEnv is a mutable Environment.
type fakeEnv struct {
	mu         sync.Mutex
	foreground bool
	screen     string
	region     string
}

func (e *fakeEnv) Foreground() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.foreground
}

func (e *fakeEnv) Screen() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.screen
}

func (e *fakeEnv) RegionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.region
}

func (e *fakeEnv) set(foreground bool, screen, region string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.foreground, e.screen, e.region = foreground, screen, region
}

// heldDispatcher keeps dispatched functions until release is called.
type heldDispatcher struct {
	mu  sync.Mutex
	fns []func()
}

func (d *heldDispatcher) Dispatch(fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fns = append(d.fns, fn)
	return true
}

func (d *heldDispatcher) release() {
	d.mu.Lock()
	fns := d.fns
	d.fns = nil
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// rig runs an engine over a fake clock, manual timers and a fake executor.
type rig struct {
	t      *testing.T
	store  *store.Store
	engine *Engine
	clock  *testutil.FakeClock
	timers *testutil.ManualScheduler
	exec   *fakeExecutor
	env    *fakeEnv

	cancel context.CancelFunc
	done   chan error
	once   sync.Once
	runErr error
}

func newRig(t *testing.T, s *store.Store, clock *testutil.FakeClock, opts ...Option) *rig {
	t.Helper()
	r := &rig{
		t:      t,
		store:  s,
		clock:  clock,
		timers: testutil.NewManualScheduler(),
		exec:   newFakeExecutor(),
		env:    &fakeEnv{foreground: true},
		done:   make(chan error, 1),
	}
	base := []Option{
		WithClock(clock),
		WithDelayedTaskScheduler(r.timers),
		WithIDGenerator(testutil.NewSequentialIDGenerator("")),
		WithEnvironment(r.env),
	}
	r.engine = New(s, r.exec, append(base, opts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go func() { r.done <- r.engine.Run(ctx) }()

	t.Cleanup(func() {
		r.stop()
		cancel()
	})
	return r
}

// stop stops the engine and waits for Run to return.
func (r *rig) stop() error {
	r.once.Do(func() {
		r.engine.Stop()
		select {
		case r.runErr = <-r.done:
		case <-time.After(5 * time.Second):
			r.t.Fatal("engine did not stop")
		}
	})
	return r.runErr
}

func await[T any](t *testing.T, f *Future[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := f.Wait(ctx)
	require.NoError(t, err)
	return v
}

func (r *rig) schedule(info schedule.Info) *schedule.Schedule {
	r.t.Helper()
	f, err := r.engine.Schedule(info)
	require.NoError(r.t, err)
	s := await(r.t, f)
	require.NotNil(r.t, s, "schedule rejected")
	return s
}

func (r *rig) event(typ schedule.TriggerType, payload value.Value, v float64) {
	r.t.Helper()
	await(r.t, r.engine.OnEvent(typ, payload, v))
}

func (r *rig) status(id string) *Status {
	r.t.Helper()
	return await(r.t, r.engine.GetStatus(id))
}

func (r *rig) get(id string) *schedule.Schedule {
	r.t.Helper()
	return await(r.t, r.engine.GetSchedule(id))
}

// flush waits until every task queued so far has run.
func (r *rig) flush() {
	r.t.Helper()
	await(r.t, r.engine.GetAllSchedules())
}

// advance moves the clock and fires the timers that came due.
func (r *rig) advance(d time.Duration) {
	r.t.Helper()
	now := r.clock.Advance(d)
	r.timers.FireDue(now)
	r.flush()
}

// complete runs the oldest completion callback of id.
func (r *rig) complete(id string) {
	r.t.Helper()
	cb := r.exec.finish(id)
	require.NotNil(r.t, cb, "no outstanding execution for %s", id)
	cb()
	r.flush()
}

func countInfo(goal float64) schedule.Info {
	return schedule.Info{
		Triggers: []schedule.Trigger{{Type: schedule.TriggerCustomEventCount, Goal: goal}},
		Data:     value.Object{"noop": value.Null{}},
	}
}

func delayedInfo(seconds int64, cancellation ...schedule.Trigger) schedule.Info {
	info := countInfo(1)
	info.Delay = &schedule.Delay{Seconds: seconds, CancellationTriggers: cancellation}
	return info
}

var errCreate = errors.New("cannot build")
