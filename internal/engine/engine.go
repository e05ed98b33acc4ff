package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/roach88/tripwire/internal/delay"
	"github.com/roach88/tripwire/internal/schedule"
	"github.com/roach88/tripwire/internal/store"
	"github.com/roach88/tripwire/internal/value"
)

const (
	// DefaultScheduleLimit caps the number of stored schedules.
	DefaultScheduleLimit = 1000

	// DefaultReadinessTimeout bounds the readiness handoff.
	DefaultReadinessTimeout = 5 * time.Second
)

// Engine is the single-writer automation engine.
//
// Every public operation is posted as a task onto a FIFO queue and executed
// by the Run goroutine, which is the only mutator of the store and of the
// engine's in-memory state (the armed timer set).
//
// Thread-safety model:
//   - public operations: safe from any goroutine, results via Future
//   - Run(): must be called from exactly one goroutine
//   - Stop(): safe from any goroutine
type Engine struct {
	store      *store.Store
	executor   Executor
	clock      Clock
	ids        IDGenerator
	dispatcher Dispatcher
	env        Environment
	timers     DelayedTaskScheduler
	ownTimers  *delay.Scheduler
	queue      *taskQueue

	scheduleLimit    int
	readinessTimeout time.Duration
	launch           bool

	armed   map[string]struct{} // schedule ids with a delayed task; worker only
	running atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithScheduleLimit sets the global schedule limit.
//
// Default: 1000 (DefaultScheduleLimit)
func WithScheduleLimit(n int) Option {
	return func(e *Engine) {
		e.scheduleLimit = n
	}
}

// WithReadinessTimeout bounds how long the worker waits for the dispatcher
// to answer a readiness handoff.
//
// Default: 5s (DefaultReadinessTimeout)
func WithReadinessTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.readinessTimeout = d
	}
}

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator replaces the UUIDv7 schedule id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithDispatcher sets the context readiness checks run on.
// Without one, checks run inline on the worker goroutine.
func WithDispatcher(d Dispatcher) Option {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// WithEnvironment sets the app context source. Without one, screen and
// region gates never pass and only unconstrained app states are allowed.
func WithEnvironment(env Environment) Option {
	return func(e *Engine) {
		e.env = env
	}
}

// WithDelayedTaskScheduler sets the timer used for delays. Without one, Run
// starts a delay.Scheduler bound to its context.
func WithDelayedTaskScheduler(s DelayedTaskScheduler) Option {
	return func(e *Engine) {
		e.timers = s
	}
}

// WithoutLaunchEvents makes Run recover persisted state without counting
// it as an app launch: no app_init or asap event is delivered and ASAP
// progress is kept. For tools that open the store between launches.
func WithoutLaunchEvents() Option {
	return func(e *Engine) {
		e.launch = false
	}
}

// New creates an Engine over s that runs schedules through exec.
func New(s *store.Store, exec Executor, opts ...Option) *Engine {
	e := &Engine{
		store:            s,
		executor:         exec,
		clock:            SystemClock{},
		ids:              UUIDv7Generator{},
		dispatcher:       inlineDispatcher{},
		queue:            newTaskQueue(),
		scheduleLimit:    DefaultScheduleLimit,
		readinessTimeout: DefaultReadinessTimeout,
		launch:           true,
		armed:            make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// submit posts fn onto the worker queue and returns its future.
func submit[T any](e *Engine, name string, fn func(ctx context.Context) T) *Future[T] {
	f := newFuture[T]()
	ok := e.queue.Enqueue(task{
		name:  name,
		run:   func(ctx context.Context) { f.resolve(fn(ctx)) },
		abort: f.fail,
	})
	if !ok {
		return failedFuture[T](ErrStopped)
	}
	return f
}

// Schedule validates info and stores it as a new schedule.
//
// A validation failure is returned synchronously. The future resolves with
// nil if the global limit would be exceeded or the write fails.
func (e *Engine) Schedule(info schedule.Info) (*Future[*schedule.Schedule], error) {
	info = info.WithDefaults()
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return submit(e, "schedule", func(ctx context.Context) *schedule.Schedule {
		created := e.insert(ctx, []schedule.Info{info})
		if len(created) == 0 {
			return nil
		}
		return created[0]
	}), nil
}

// ScheduleAll stores infos as one batch: all are inserted or none.
func (e *Engine) ScheduleAll(infos []schedule.Info) (*Future[[]*schedule.Schedule], error) {
	batch := make([]schedule.Info, len(infos))
	for i, info := range infos {
		info = info.WithDefaults()
		if err := info.Validate(); err != nil {
			return nil, fmt.Errorf("schedule %d: %w", i, err)
		}
		batch[i] = info
	}
	return submit(e, "schedule_all", func(ctx context.Context) []*schedule.Schedule {
		return e.insert(ctx, batch)
	}), nil
}

// Cancel deletes the given schedules and revokes their delay timers.
func (e *Engine) Cancel(ids ...string) *Future[struct{}] {
	return submit(e, "cancel", func(ctx context.Context) struct{} {
		n, err := e.store.DeleteSchedules(ctx, ids)
		if err != nil {
			logRuntimeError(NewPersistenceError("cancel", "", err))
			return struct{}{}
		}
		for _, id := range ids {
			e.disarm(id)
		}
		slog.Info("schedules cancelled", "requested", len(ids), "deleted", n)
		return struct{}{}
	})
}

// CancelGroup deletes every schedule in group. The future resolves true if
// any schedule was deleted.
func (e *Engine) CancelGroup(group string) *Future[bool] {
	return submit(e, "cancel_group", func(ctx context.Context) bool {
		ids, err := e.store.ScheduleIDsByGroup(ctx, group)
		if err != nil {
			logRuntimeError(NewPersistenceError("cancel group "+group, "", err))
			return false
		}
		n, err := e.store.DeleteGroup(ctx, group)
		if err != nil {
			logRuntimeError(NewPersistenceError("cancel group "+group, "", err))
			return false
		}
		for _, id := range ids {
			e.disarm(id)
		}
		slog.Info("group cancelled", "group", group, "deleted", n)
		return n > 0
	})
}

// CancelAll deletes every schedule and revokes every delay timer.
func (e *Engine) CancelAll() *Future[struct{}] {
	return submit(e, "cancel_all", func(ctx context.Context) struct{} {
		n, err := e.store.DeleteAll(ctx)
		if err != nil {
			logRuntimeError(NewPersistenceError("cancel all", "", err))
			return struct{}{}
		}
		e.revokeAll()
		slog.Info("all schedules cancelled", "deleted", n)
		return struct{}{}
	})
}

// GetSchedule resolves with the schedule, or nil if it does not exist.
func (e *Engine) GetSchedule(id string) *Future[*schedule.Schedule] {
	return submit(e, "get_schedule", func(ctx context.Context) *schedule.Schedule {
		entry, err := e.store.GetSchedule(ctx, id)
		if err != nil {
			logRuntimeError(NewPersistenceError("get schedule", id, err))
			return nil
		}
		if entry == nil {
			return nil
		}
		return entry.Schedule()
	})
}

// GetSchedules resolves with the existing schedules among ids.
func (e *Engine) GetSchedules(ids ...string) *Future[[]*schedule.Schedule] {
	return submit(e, "get_schedules", func(ctx context.Context) []*schedule.Schedule {
		entries, err := e.store.GetSchedules(ctx, ids)
		return e.schedulesOf("get schedules", entries, err)
	})
}

// GetSchedulesByGroup resolves with the schedules in group.
func (e *Engine) GetSchedulesByGroup(group string) *Future[[]*schedule.Schedule] {
	return submit(e, "get_group", func(ctx context.Context) []*schedule.Schedule {
		entries, err := e.store.GetSchedulesByGroup(ctx, group)
		return e.schedulesOf("get group "+group, entries, err)
	})
}

// GetAllSchedules resolves with every stored schedule.
func (e *Engine) GetAllSchedules() *Future[[]*schedule.Schedule] {
	return submit(e, "get_all", func(ctx context.Context) []*schedule.Schedule {
		entries, err := e.store.GetAllSchedules(ctx)
		return e.schedulesOf("get all", entries, err)
	})
}

func (e *Engine) schedulesOf(op string, entries []*store.ScheduleEntry, err error) []*schedule.Schedule {
	if err != nil {
		logRuntimeError(NewPersistenceError(op, "", err))
		return nil
	}
	out := make([]*schedule.Schedule, len(entries))
	for i, entry := range entries {
		out[i] = entry.Schedule()
	}
	return out
}

// Status is the runtime state of a schedule.
type Status struct {
	ID                   string               `json:"id"`
	State                store.ExecutionState `json:"-"`
	StateName            string               `json:"state"`
	Count                int                  `json:"count"`
	PendingExecutionDate int64                `json:"pending_execution_date"`
	PausedUntil          int64                `json:"paused_until,omitempty"`
	Progress             []float64            `json:"progress"`
}

// GetStatus resolves with the runtime state of a schedule, or nil.
// Progress lists primary triggers first, then cancellation triggers.
func (e *Engine) GetStatus(id string) *Future[*Status] {
	return submit(e, "get_status", func(ctx context.Context) *Status {
		entry, err := e.store.GetSchedule(ctx, id)
		if err != nil {
			logRuntimeError(NewPersistenceError("get status", id, err))
			return nil
		}
		if entry == nil {
			return nil
		}
		st := &Status{
			ID:                   entry.ScheduleID,
			State:                entry.ExecutionState,
			StateName:            entry.ExecutionState.String(),
			Count:                entry.Count,
			PendingExecutionDate: entry.PendingExecutionDate,
			PausedUntil:          entry.PausedUntil,
		}
		for _, t := range entry.Triggers {
			st.Progress = append(st.Progress, t.Progress)
		}
		return st
	})
}

// EditSchedule applies edits to a schedule without touching its progress or
// execution state. The future resolves with the edited schedule, or nil if
// the schedule does not exist or the edits are invalid.
func (e *Engine) EditSchedule(id string, edits schedule.Edits) *Future[*schedule.Schedule] {
	return submit(e, "edit_schedule", func(ctx context.Context) *schedule.Schedule {
		entry, err := e.store.GetSchedule(ctx, id)
		if err != nil {
			logRuntimeError(NewPersistenceError("edit schedule", id, err))
			return nil
		}
		if entry == nil {
			slog.Debug("edit of unknown schedule", "schedule_id", id)
			return nil
		}
		info, err := edits.Apply(entry.Info())
		if err != nil {
			slog.Warn("schedule edit rejected", "schedule_id", id, "error", err)
			return nil
		}
		entry.ApplyInfo(info)
		if err := e.save(ctx, entry); err != nil {
			return nil
		}
		slog.Info("schedule edited", "schedule_id", id)
		return entry.Schedule()
	})
}

// OnEvent submits an event. The returned future resolves once the event and
// everything it triggered have been processed; callers may ignore it.
// Events whose value is NaN or infinite are logged and dropped.
func (e *Engine) OnEvent(t schedule.TriggerType, payload value.Value, v float64) *Future[struct{}] {
	return submit(e, "event:"+string(t), func(ctx context.Context) struct{} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			slog.Warn("event with non-finite value dropped", "type", string(t), "value", v)
			return struct{}{}
		}
		e.processEvent(ctx, t, payload, v)
		return struct{}{}
	})
}

// CheckPendingSchedules re-evaluates every pending schedule. Schedules whose
// delay has not elapsed are left alone.
func (e *Engine) CheckPendingSchedules() *Future[struct{}] {
	return submit(e, "check_pending", func(ctx context.Context) struct{} {
		e.checkPending(ctx)
		return struct{}{}
	})
}

// Run recovers persisted state and then serves the task queue.
// Blocks until ctx is cancelled or Stop() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// ERROR HANDLING: task failures are logged and processing continues.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("engine already running")
	}
	if e.timers == nil {
		e.ownTimers = delay.New(ctx)
		e.timers = e.ownTimers
	}
	defer func() {
		if e.ownTimers != nil {
			e.ownTimers.Close()
		}
	}()

	slog.Info("engine starting", "schedule_limit", e.scheduleLimit)
	e.restore(ctx)

	for {
		t, ok := e.queue.TryDequeue()
		if ok {
			e.runTask(ctx, t)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			for _, t := range e.queue.Drain() {
				if t.abort != nil {
					t.abort(ErrStopped)
				}
			}
			e.revokeAll()
			return ctx.Err()

		case _, open := <-e.queue.Wait():
			if !open && e.queue.Len() == 0 {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

func (e *Engine) runTask(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("task panicked", "task", t.name, "panic", r)
			if t.abort != nil {
				t.abort(fmt.Errorf("task %s panicked: %v", t.name, r))
			}
		}
	}()
	slog.Debug("running task", "task", t.name)
	t.run(ctx)
}

// Stop revokes all armed timers once the tasks already queued have run,
// then closes the queue so Run returns. Later submissions resolve with
// ErrStopped.
func (e *Engine) Stop() {
	e.queue.CloseWith(task{
		name: "stop",
		run:  func(context.Context) { e.revokeAll() },
	})
}

// restore restores persisted state after a restart.
// CRITICAL: Called only from Run() goroutine.
func (e *Engine) restore(ctx context.Context) {
	now := e.clock.Now()

	expired, err := e.store.DeleteExpired(ctx, now)
	if err != nil {
		logRuntimeError(NewPersistenceError("delete expired", "", err))
	} else if len(expired) > 0 {
		slog.Info("expired schedules deleted", "count", len(expired))
	}

	entries, err := e.store.GetSchedulesByState(ctx, store.StateExecuting, store.StatePendingExecution)
	if err != nil {
		logRuntimeError(NewPersistenceError("recover pending", "", err))
		return
	}

	var overdue []*store.ScheduleEntry
	for _, entry := range entries {
		if entry.ExecutionState == store.StateExecuting {
			slog.Warn("interrupted execution reset to pending", "schedule_id", entry.ScheduleID)
			entry.SetState(store.StatePendingExecution, store.NoPendingDate)
			if err := e.save(ctx, entry); err != nil {
				continue
			}
		}
		if entry.PendingExecutionDate > now.UnixMilli() {
			e.arm(entry.ScheduleID, time.UnixMilli(entry.PendingExecutionDate))
			continue
		}
		overdue = append(overdue, entry)
	}

	sortByPriority(overdue)
	for _, entry := range overdue {
		e.handleTriggered(ctx, entry)
	}

	if !e.launch {
		return
	}
	e.resetASAPProgress(ctx)
	e.processEvent(ctx, schedule.TriggerAppInit, nil, 1)
	e.processEvent(ctx, schedule.TriggerASAP, nil, 1)
}

// resetASAPProgress re-opens the ASAP triggers of idle schedules that have
// reached their goal, so the goal can be met again over the coming launches.
// Triggers still short of their goal keep accumulating.
func (e *Engine) resetASAPProgress(ctx context.Context) {
	entries, err := e.store.GetSchedulesByState(ctx, store.StateIdle)
	if err != nil {
		logRuntimeError(NewPersistenceError("reset asap", "", err))
		return
	}
	var touched []*store.TriggerEntry
	for _, entry := range entries {
		for _, t := range entry.Triggers {
			if t.Type == schedule.TriggerASAP && t.GoalMet() {
				t.SetProgress(0)
				touched = append(touched, t)
			}
		}
	}
	if len(touched) == 0 {
		return
	}
	if err := e.store.SaveTriggers(ctx, touched); err != nil {
		logRuntimeError(NewPersistenceError("reset asap", "", err))
	}
}

// insert stores infos as new schedules, enforcing the global limit.
// CRITICAL: Called only from Run() goroutine.
func (e *Engine) insert(ctx context.Context, infos []schedule.Info) []*schedule.Schedule {
	current, err := e.store.CountSchedules(ctx)
	if err != nil {
		logRuntimeError(NewPersistenceError("count schedules", "", err))
		return nil
	}
	if current+len(infos) > e.scheduleLimit {
		logRuntimeError(NewCapacityError(len(infos), current, e.scheduleLimit))
		return nil
	}

	entries := make([]*store.ScheduleEntry, len(infos))
	asap := false
	for i, info := range infos {
		entries[i] = store.NewScheduleEntry(e.ids.Generate(), info)
		asap = asap || info.HasTrigger(schedule.TriggerASAP)
	}
	if err := e.store.SaveSchedules(ctx, entries); err != nil {
		logRuntimeError(NewPersistenceError("insert schedules", "", err))
		return nil
	}

	created := make([]*schedule.Schedule, len(entries))
	for i, entry := range entries {
		created[i] = entry.Schedule()
		slog.Info("schedule created",
			"schedule_id", entry.ScheduleID,
			"group", entry.Group,
			"triggers", len(entry.Triggers),
		)
	}

	if asap {
		e.processEvent(ctx, schedule.TriggerASAP, nil, 1)
	}
	return created
}

// save persists one entry, logging failures.
func (e *Engine) save(ctx context.Context, entry *store.ScheduleEntry) error {
	if err := e.store.SaveSchedules(ctx, []*store.ScheduleEntry{entry}); err != nil {
		logRuntimeError(NewPersistenceError("save schedule", entry.ScheduleID, err))
		return err
	}
	return nil
}

// arm posts a delayed re-evaluation of id at when.
func (e *Engine) arm(id string, when time.Time) {
	e.armed[id] = struct{}{}
	e.timers.PostAt(id, when, func() {
		e.queue.Enqueue(task{
			name: "delay_fired",
			run:  func(ctx context.Context) { e.onDelayFired(ctx, id) },
		})
	})
	slog.Debug("delay armed", "schedule_id", id, "at", when)
}

func (e *Engine) disarm(id string) {
	if _, ok := e.armed[id]; !ok {
		return
	}
	delete(e.armed, id)
	e.timers.Cancel(id)
	slog.Debug("delay revoked", "schedule_id", id)
}

func (e *Engine) revokeAll() {
	for id := range e.armed {
		e.disarm(id)
	}
}

func logRuntimeError(err *RuntimeError) {
	level := slog.LevelError
	if err.Code == ErrCodeCapacityExceeded || err.Code == ErrCodeReadinessTimeout {
		level = slog.LevelWarn
	}
	attrs := []any{"code", string(err.Code), "error", err.Error()}
	if err.ScheduleID != "" {
		attrs = append(attrs, "schedule_id", err.ScheduleID)
	}
	slog.Log(context.Background(), level, "runtime error", attrs...)
}
