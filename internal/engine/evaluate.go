package engine

import (
	"cmp"
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/roach88/tripwire/internal/schedule"
	"github.com/roach88/tripwire/internal/store"
	"github.com/roach88/tripwire/internal/value"
)

// processEvent advances the active triggers of type t and acts on the
// schedules whose goals were met.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) processEvent(ctx context.Context, t schedule.TriggerType, payload value.Value, v float64) {
	now := e.clock.Now()

	triggers, err := e.store.ActiveTriggers(ctx, t, now)
	if err != nil {
		logRuntimeError(NewPersistenceError("active triggers "+string(t), "", err))
		return
	}

	var (
		touched   []*store.TriggerEntry
		triggered []string
		seen      = make(map[string]bool)
		cancelled = make(map[string]bool)
	)
	for _, te := range triggers {
		// An ASAP trigger at its goal already fired for this goal.
		if te.Type == schedule.TriggerASAP && te.GoalMet() {
			continue
		}
		if !te.Predicate.Match(payload) {
			continue
		}

		te.AddProgress(v)
		touched = append(touched, te)
		if !te.GoalMet() {
			continue
		}

		if te.IsCancellation {
			cancelled[te.ScheduleID] = true
		} else if !seen[te.ScheduleID] {
			seen[te.ScheduleID] = true
			triggered = append(triggered, te.ScheduleID)
		}
		if te.Type != schedule.TriggerASAP {
			te.SetProgress(0)
		}
	}

	if len(touched) > 0 {
		if err := e.store.SaveTriggers(ctx, touched); err != nil {
			logRuntimeError(NewPersistenceError("save progress "+string(t), "", err))
			return
		}
	}

	slog.Debug("event processed",
		"type", string(t),
		"value", v,
		"candidates", len(triggers),
		"matched", len(touched),
		"triggered", len(triggered),
		"cancelled", len(cancelled),
	)

	if len(cancelled) > 0 {
		e.abortPending(ctx, slices.Sorted(maps.Keys(cancelled)))
	}

	triggered = slices.DeleteFunc(triggered, func(id string) bool { return cancelled[id] })
	if len(triggered) > 0 {
		entries, err := e.store.GetSchedules(ctx, triggered)
		if err != nil {
			logRuntimeError(NewPersistenceError("load triggered", "", err))
		} else {
			sortByPriority(entries)
			for _, entry := range entries {
				e.handleTriggered(ctx, entry)
			}
		}
	}

	if t.ChangesEnvironment() {
		e.checkPending(ctx)
	}
}

// abortPending returns pending schedules whose cancellation trigger fired
// to IDLE and revokes their timers.
func (e *Engine) abortPending(ctx context.Context, ids []string) {
	entries, err := e.store.GetSchedules(ctx, ids)
	if err != nil {
		logRuntimeError(NewPersistenceError("load cancelled", "", err))
		return
	}

	var changed []*store.ScheduleEntry
	for _, entry := range entries {
		if entry.ExecutionState != store.StatePendingExecution {
			continue
		}
		entry.SetState(store.StateIdle, store.NoPendingDate)
		entry.ResetCancellationProgress()
		changed = append(changed, entry)
	}
	if len(changed) == 0 {
		return
	}
	if err := e.store.SaveSchedules(ctx, changed); err != nil {
		logRuntimeError(NewPersistenceError("abort pending", "", err))
		return
	}
	for _, entry := range changed {
		e.disarm(entry.ScheduleID)
		slog.Info("pending execution cancelled", "schedule_id", entry.ScheduleID)
	}
}

// handleTriggered drives one schedule through the execution state machine
// after its goal was met, its delay elapsed or a recheck sweep.
// CRITICAL: Called only from Run() goroutine.
func (e *Engine) handleTriggered(ctx context.Context, entry *store.ScheduleEntry) {
	now := e.clock.Now()
	id := entry.ScheduleID

	if !entry.End.IsZero() && entry.End.Before(now) {
		if _, err := e.store.DeleteSchedules(ctx, []string{id}); err != nil {
			logRuntimeError(NewPersistenceError("delete expired", id, err))
			return
		}
		e.disarm(id)
		slog.Info("expired schedule deleted", "schedule_id", id)
		return
	}

	switch entry.ExecutionState {
	case store.StateExecuting:
		return
	case store.StatePendingExecution:
		if entry.PendingExecutionDate > now.UnixMilli() {
			return
		}
	}

	if entry.ExecutionState == store.StateIdle && entry.DelaySeconds > 0 {
		when := now.Add(entry.Delay())
		entry.ResetCancellationProgress()
		entry.SetState(store.StatePendingExecution, when.UnixMilli())
		if err := e.save(ctx, entry); err != nil {
			return
		}
		e.arm(id, when)
		slog.Info("execution delayed", "schedule_id", id, "until", when)
		return
	}

	if e.attemptExecution(ctx, entry) {
		entry.SetState(store.StateExecuting, store.NoPendingDate)
		if err := e.save(ctx, entry); err != nil {
			return
		}
		e.disarm(id)
		slog.Info("schedule executing", "schedule_id", id, "count", entry.Count)
		return
	}

	if entry.ExecutionState == store.StateIdle {
		entry.ResetCancellationProgress()
		entry.SetState(store.StatePendingExecution, store.NoPendingDate)
		if err := e.save(ctx, entry); err != nil {
			return
		}
		slog.Debug("schedule not ready, pending recheck", "schedule_id", id)
	}
}

// checkPending re-evaluates every pending schedule in priority order.
func (e *Engine) checkPending(ctx context.Context) {
	entries, err := e.store.GetSchedulesByState(ctx, store.StatePendingExecution)
	if err != nil {
		logRuntimeError(NewPersistenceError("check pending", "", err))
		return
	}
	sortByPriority(entries)
	for _, entry := range entries {
		e.handleTriggered(ctx, entry)
	}
}

// onDelayFired re-reads the schedule before acting: it may have been
// cancelled or re-idled since the timer was armed.
func (e *Engine) onDelayFired(ctx context.Context, id string) {
	delete(e.armed, id)

	entry, err := e.store.GetSchedule(ctx, id)
	if err != nil {
		logRuntimeError(NewPersistenceError("delay fired", id, err))
		return
	}
	if entry == nil || entry.ExecutionState != store.StatePendingExecution {
		slog.Debug("stale delay ignored", "schedule_id", id)
		return
	}
	if entry.PendingExecutionDate > nowMillis(e.clock) {
		e.arm(id, time.UnixMilli(entry.PendingExecutionDate))
		return
	}
	e.handleTriggered(ctx, entry)
}

// onFinished records one successful execution.
// The only path that increments the fulfillment count.
func (e *Engine) onFinished(ctx context.Context, id string) {
	entry, err := e.store.GetSchedule(ctx, id)
	if err != nil {
		logRuntimeError(NewPersistenceError("finish", id, err))
		return
	}
	if entry == nil {
		slog.Debug("finished schedule no longer exists", "schedule_id", id)
		return
	}

	entry.SetState(store.StateIdle, store.NoPendingDate)
	entry.SetCount(entry.Count + 1)

	if entry.Count >= entry.Limit {
		if _, err := e.store.DeleteSchedules(ctx, []string{id}); err != nil {
			logRuntimeError(NewPersistenceError("delete fulfilled", id, err))
			return
		}
		e.disarm(id)
		slog.Info("schedule fulfilled", "schedule_id", id, "count", entry.Count)
		return
	}

	if entry.Interval > 0 {
		entry.PauseUntil(e.clock.Now().Add(entry.Interval).UnixMilli())
	}
	if err := e.save(ctx, entry); err != nil {
		return
	}
	slog.Info("schedule finished", "schedule_id", id, "count", entry.Count, "limit", entry.Limit)
}

// gate is the snapshot of an entry's execution constraints handed to the
// dispatcher. The entry itself stays on the worker.
type gate struct {
	pendingDate int64
	screen      string
	regionID    string
	appState    schedule.AppState
}

func (g gate) ready(nowMs int64, env Environment) bool {
	if g.pendingDate > nowMs {
		return false
	}
	if env == nil {
		return g.screen == "" && g.regionID == "" &&
			g.appState.Allows(true) && g.appState.Allows(false)
	}
	if g.screen != "" && g.screen != env.Screen() {
		return false
	}
	if g.regionID != "" && g.regionID != env.RegionID() {
		return false
	}
	return g.appState.Allows(env.Foreground())
}

// handoff is the single-shot result of a readiness check. Exactly one of
// commit (by the dispatcher, right before Execute) and abandon (by the
// worker, on timeout) succeeds.
type handoff struct {
	mu    sync.Mutex
	state int // 0 open, 1 committed, 2 abandoned
	done  chan bool
}

func (h *handoff) commit() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == 2 {
		return false
	}
	h.state = 1
	return true
}

func (h *handoff) abandon() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == 1 {
		return false
	}
	h.state = 2
	return true
}

// attemptExecution runs the readiness check and, if ready, Execute on the
// dispatcher, blocking the worker until the dispatcher reports back or the
// readiness timeout passes.
func (e *Engine) attemptExecution(ctx context.Context, entry *store.ScheduleEntry) bool {
	id := entry.ScheduleID
	snapshot := entry.Schedule()
	g := gate{
		pendingDate: entry.PendingExecutionDate,
		screen:      entry.Screen,
		regionID:    entry.RegionID,
		appState:    entry.AppState,
	}
	h := &handoff{done: make(chan bool, 1)}

	onComplete := sync.OnceFunc(func() {
		ok := e.queue.Enqueue(task{
			name: "finished",
			run:  func(ctx context.Context) { e.onFinished(ctx, id) },
		})
		if !ok {
			slog.Warn("completion after stop dropped", "schedule_id", id)
		}
	})

	timer := time.NewTimer(e.readinessTimeout)
	defer timer.Stop()

	accepted := e.dispatcher.Dispatch(func() {
		executed := false
		defer func() {
			if r := recover(); r != nil {
				logRuntimeError(NewExecutorError(id, r))
				executed = false
			}
			h.done <- executed
		}()

		if !g.ready(nowMillis(e.clock), e.env) {
			return
		}
		exe, err := e.executor.CreateExecutable(snapshot)
		if err != nil {
			slog.Warn("executable not created", "schedule_id", id, "error", err)
			return
		}
		if exe == nil || !exe.IsReady() {
			return
		}
		if !h.commit() {
			return
		}
		exe.Execute(onComplete)
		executed = true
	})
	if !accepted {
		slog.Warn("readiness check not dispatched", "schedule_id", id)
		return false
	}

	select {
	case executed := <-h.done:
		return executed
	case <-timer.C:
		if h.abandon() {
			logRuntimeError(NewReadinessTimeoutError(id, e.readinessTimeout))
			return false
		}
	case <-ctx.Done():
		if h.abandon() {
			return false
		}
	}
	// Committed before the deadline: Execute is under way.
	return <-h.done
}

// sortByPriority orders entries by ascending priority, then creation order.
func sortByPriority(entries []*store.ScheduleEntry) {
	slices.SortStableFunc(entries, func(a, b *store.ScheduleEntry) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.RowID, b.RowID)
	})
}
