// Package actions runs schedule payloads as named actions.
//
// A schedule's data is an object mapping action names to their arguments:
//
//	{"log": {"message": "welcome back"}, "noop": null}
//
// Runner implements the engine's Executor over a Registry of handlers.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/tripwire/internal/value"
)

var (
	// ErrUnknownAction is returned for data naming an unregistered action.
	ErrUnknownAction = errors.New("unknown action")

	// ErrInvalidData is returned for schedule data that is not an object.
	ErrInvalidData = errors.New("schedule data must be an object of actions")

	// ErrDuplicateAction is returned when registering a name twice.
	ErrDuplicateAction = errors.New("action already registered")
)

// Handler performs one action with its arguments.
type Handler func(ctx context.Context, args value.Value) error

// Registry maps action names to handlers.
//
// Thread-safety: safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// DefaultRegistry returns a registry with the builtin actions:
//   - log: logs its arguments at info level
//   - noop: does nothing
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister("log", logAction)
	r.MustRegister("noop", func(context.Context, value.Value) error { return nil })
	return r
}

// Register adds a handler under name.
func (r *Registry) Register(name string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAction, name)
	}
	r.handlers[name] = h
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, h Handler) {
	if err := r.Register(name, h); err != nil {
		panic(err)
	}
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered action names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Check reports whether data is an action object whose every action is
// registered.
func (r *Registry) Check(data value.Value) error {
	obj, ok := data.(value.Object)
	if !ok || len(obj) == 0 {
		return ErrInvalidData
	}
	for _, name := range obj.SortedKeys() {
		if _, ok := r.Lookup(name); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownAction, name)
		}
	}
	return nil
}

func logAction(ctx context.Context, args value.Value) error {
	canonical, err := value.MarshalCanonical(args)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "action log", "args", string(canonical))
	return nil
}
