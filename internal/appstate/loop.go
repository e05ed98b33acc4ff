// Package appstate holds the authoritative app context: foreground or
// background, current screen and current region.
//
// Loop is the single goroutine that owns that context. The engine posts its
// readiness checks there, and event sources post context updates there, so
// a check always sees every update posted before it.
package appstate

import (
	"context"
	"log/slog"
)

// Loop runs posted functions one at a time, in order, on its own goroutine.
// It implements engine.Dispatcher.
type Loop struct {
	fns    chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop creates and starts a Loop. It stops when ctx is cancelled or
// Close is called; functions still queued then are dropped.
func NewLoop(ctx context.Context) *Loop {
	ctx, cancel := context.WithCancel(ctx)
	l := &Loop{
		fns:    make(chan func(), 64),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// Dispatch posts fn without blocking. It returns false, dropping fn, when
// the buffer is full or the loop has stopped.
func (l *Loop) Dispatch(fn func()) bool {
	if l.ctx.Err() != nil {
		slog.Debug("dispatch after loop stopped")
		return false
	}
	select {
	case l.fns <- fn:
		return true
	default:
		slog.Warn("dispatch dropped: loop busy", "queued", len(l.fns))
		return false
	}
}

// Do posts fn and waits for it to run, blocking while the buffer is full.
// Returns false if the loop stopped first.
func (l *Loop) Do(fn func()) bool {
	ran := make(chan struct{})
	select {
	case l.fns <- func() {
		fn()
		close(ran)
	}:
	case <-l.ctx.Done():
		return false
	}
	select {
	case <-ran:
		return true
	case <-l.done:
		return false
	}
}

// Close stops the loop and waits for the running function to return.
func (l *Loop) Close() {
	l.cancel()
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case fn := <-l.fns:
			l.invoke(fn)
		}
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatched function panicked", "panic", r)
		}
	}()
	fn()
}
