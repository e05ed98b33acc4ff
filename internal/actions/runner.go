package actions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/tripwire/internal/engine"
	"github.com/roach88/tripwire/internal/schedule"
	"github.com/roach88/tripwire/internal/value"
)

// DefaultMaxConcurrent bounds concurrent executions when unset.
const DefaultMaxConcurrent = 4

// Result reports one action run.
type Result struct {
	ScheduleID string
	Action     string
	Duration   time.Duration
	Err        error
}

// Runner executes schedules by running the actions in their data.
//
// Executions run on their own goroutines, at most MaxConcurrent at a time.
// Runner reports not ready while saturated or paused, which leaves the
// schedule pending until the engine rechecks it.
type Runner struct {
	ctx      context.Context
	registry *Registry
	sem      chan struct{}
	paused   atomic.Bool
	wg       sync.WaitGroup
	observe  func(Result)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxConcurrent bounds concurrent executions.
//
// Default: 4 (DefaultMaxConcurrent)
func WithMaxConcurrent(n int) RunnerOption {
	return func(r *Runner) {
		if n <= 0 {
			n = DefaultMaxConcurrent
		}
		r.sem = make(chan struct{}, n)
	}
}

// WithObserver calls fn after every action, from the executing goroutine.
func WithObserver(fn func(Result)) RunnerOption {
	return func(r *Runner) {
		r.observe = fn
	}
}

// NewRunner creates a Runner whose handlers receive ctx.
func NewRunner(ctx context.Context, registry *Registry, opts ...RunnerOption) *Runner {
	r := &Runner{
		ctx:      ctx,
		registry: registry,
		sem:      make(chan struct{}, DefaultMaxConcurrent),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Pause makes the runner report not ready until resumed.
func (r *Runner) Pause(paused bool) {
	r.paused.Store(paused)
}

// Wait blocks until every started execution has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// CreateExecutable implements engine.Executor. It rejects data that is not
// an object of registered actions.
func (r *Runner) CreateExecutable(s *schedule.Schedule) (engine.Executable, error) {
	if err := r.registry.Check(s.Info.Data); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", s.ID, err)
	}
	return &execution{runner: r, id: s.ID, actions: s.Info.Data.(value.Object)}, nil
}

type execution struct {
	runner  *Runner
	id      string
	actions value.Object
}

func (x *execution) IsReady() bool {
	r := x.runner
	return !r.paused.Load() && len(r.sem) < cap(r.sem)
}

// Execute takes a concurrency slot and starts the actions in name order on
// a new goroutine. The slot is held from here so IsReady counts executions
// that have not started running yet.
func (x *execution) Execute(onComplete func()) {
	r := x.runner
	r.sem <- struct{}{}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer onComplete()
		defer func() { <-r.sem }()

		for _, name := range x.actions.SortedKeys() {
			r.run(x.id, name, x.actions[name])
		}
	}()
}

func (r *Runner) run(scheduleID, name string, args value.Value) {
	start := time.Now()
	res := Result{ScheduleID: scheduleID, Action: name}

	h, ok := r.registry.Lookup(name)
	if !ok {
		res.Err = fmt.Errorf("%w: %s", ErrUnknownAction, name)
	} else {
		res.Err = safeCall(r.ctx, h, args)
	}
	res.Duration = time.Since(start)

	if res.Err != nil {
		slog.Error("action failed", "schedule_id", scheduleID, "action", name, "error", res.Err)
	} else {
		slog.Debug("action done", "schedule_id", scheduleID, "action", name, "duration", res.Duration)
	}
	if r.observe != nil {
		r.observe(res)
	}
}

func safeCall(ctx context.Context, h Handler, args value.Value) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("action panicked: %v", rec)
		}
	}()
	return h(ctx, args)
}
