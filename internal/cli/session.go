package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/tripwire/internal/actions"
	"github.com/roach88/tripwire/internal/config"
	"github.com/roach88/tripwire/internal/engine"
	"github.com/roach88/tripwire/internal/store"
)

// session is one running engine over the configured database.
type session struct {
	store  *store.Store
	engine *engine.Engine
	runner *actions.Runner
	cancel context.CancelFunc
	done   chan error
}

// openSession opens the database and starts the engine on its own goroutine.
// Extra options are applied after the ones derived from cfg.
func openSession(ctx context.Context, cfg *config.Config, opts ...engine.Option) (*session, error) {
	if dir := filepath.Dir(cfg.Database); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	slog.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	runner := actions.NewRunner(ctx, actions.DefaultRegistry(),
		actions.WithMaxConcurrent(cfg.MaxConcurrentActions),
		actions.WithObserver(logActionResult),
	)
	base := []engine.Option{
		engine.WithScheduleLimit(cfg.ScheduleLimit),
		engine.WithReadinessTimeout(cfg.ReadinessTimeout.Std()),
	}
	eng := engine.New(st, runner, append(base, opts...)...)

	s := &session{
		store:  st,
		engine: eng,
		runner: runner,
		cancel: cancel,
		done:   make(chan error, 1),
	}
	go func() { s.done <- eng.Run(ctx) }()
	return s, nil
}

// settle waits for running actions to finish. Their completions are
// queued ahead of any operation submitted afterwards.
func (s *session) settle() {
	s.runner.Wait()
}

// Close waits for running actions, lets the engine record their
// completions, stops it and closes the database.
func (s *session) Close() error {
	s.settle()
	s.engine.Stop()
	err := <-s.done
	s.cancel()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	if closeErr := s.store.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// await waits for a future on the command's context.
func await[T any](ctx context.Context, f *engine.Future[T]) (T, error) {
	v, err := f.Wait(ctx)
	if err != nil {
		return v, WrapExitError(ExitCommandError, "engine unavailable", err)
	}
	return v, nil
}

func logActionResult(r actions.Result) {
	if r.Err != nil {
		slog.Warn("action failed", "schedule_id", r.ScheduleID, "action", r.Action, "error", r.Err)
		return
	}
	slog.Info("action ran", "schedule_id", r.ScheduleID, "action", r.Action, "duration", r.Duration)
}
