package actions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tripwire/internal/schedule"
	"github.com/roach88/tripwire/internal/value"
)

func scheduleWith(id string, data value.Value) *schedule.Schedule {
	return &schedule.Schedule{ID: id, Info: schedule.Info{Data: data}}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"log", "noop"}, r.Names())

	err := r.Register("log", nil)
	assert.ErrorIs(t, err, ErrDuplicateAction)

	assert.NoError(t, r.Check(value.Object{"log": value.String("hi")}))
	assert.ErrorIs(t, r.Check(value.Object{"email": value.Null{}}), ErrUnknownAction)
	assert.ErrorIs(t, r.Check(value.String("log")), ErrInvalidData)
	assert.ErrorIs(t, r.Check(value.Object{}), ErrInvalidData)
}

func TestRunner_RunsActionsInNameOrder(t *testing.T) {
	reg := NewRegistry()
	var (
		mu    sync.Mutex
		calls []string
	)
	record := func(name string) Handler {
		return func(_ context.Context, args value.Value) error {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, name+"="+string(args.(value.String)))
			return nil
		}
	}
	reg.MustRegister("b", record("b"))
	reg.MustRegister("a", record("a"))
	reg.MustRegister("fail", func(context.Context, value.Value) error { return errors.New("nope") })

	var results []Result
	runner := NewRunner(context.Background(), reg, WithObserver(func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
	}))

	exe, err := runner.CreateExecutable(scheduleWith("s-1", value.Object{
		"b":    value.String("2"),
		"a":    value.String("1"),
		"fail": value.String("x"),
	}))
	require.NoError(t, err)
	require.True(t, exe.IsReady())

	done := make(chan struct{})
	exe.Execute(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("onComplete not called")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a=1", "b=2"}, calls)
	require.Len(t, results, 3)
	assert.Equal(t, "fail", results[2].Action)
	assert.Error(t, results[2].Err)
	assert.Equal(t, "s-1", results[0].ScheduleID)
}

func TestRunner_RejectsUnknownActions(t *testing.T) {
	runner := NewRunner(context.Background(), DefaultRegistry())
	_, err := runner.CreateExecutable(scheduleWith("s-1", value.Object{"launch": value.Null{}}))
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestRunner_NotReadyWhenSaturatedOrPaused(t *testing.T) {
	reg := NewRegistry()
	release := make(chan struct{})
	reg.MustRegister("block", func(context.Context, value.Value) error {
		<-release
		return nil
	})
	runner := NewRunner(context.Background(), reg, WithMaxConcurrent(1))

	exe, err := runner.CreateExecutable(scheduleWith("s-1", value.Object{"block": value.Null{}}))
	require.NoError(t, err)
	exe.Execute(func() {})

	require.Eventually(t, func() bool { return !exe.IsReady() }, time.Second, 5*time.Millisecond)

	close(release)
	runner.Wait()
	assert.True(t, exe.IsReady())

	runner.Pause(true)
	assert.False(t, exe.IsReady())
	runner.Pause(false)
	assert.True(t, exe.IsReady())
}

func TestRunner_SlotTakenBeforeActionsStart(t *testing.T) {
	reg := NewRegistry()
	release := make(chan struct{})
	reg.MustRegister("block", func(context.Context, value.Value) error {
		<-release
		return nil
	})
	runner := NewRunner(context.Background(), reg, WithMaxConcurrent(2))

	first, err := runner.CreateExecutable(scheduleWith("s-1", value.Object{"block": value.Null{}}))
	require.NoError(t, err)
	second, err := runner.CreateExecutable(scheduleWith("s-2", value.Object{"block": value.Null{}}))
	require.NoError(t, err)
	third, err := runner.CreateExecutable(scheduleWith("s-3", value.Object{"block": value.Null{}}))
	require.NoError(t, err)

	// Back to back, as one batch of readiness checks would run them.
	require.True(t, first.IsReady())
	first.Execute(func() {})
	require.True(t, second.IsReady())
	second.Execute(func() {})
	assert.False(t, third.IsReady(), "both slots are held before either goroutine runs")

	close(release)
	runner.Wait()
	assert.True(t, third.IsReady())
}

func TestRunner_PanickingActionStillCompletes(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("explode", func(context.Context, value.Value) error { panic("kaboom") })
	var got Result
	runner := NewRunner(context.Background(), reg, WithObserver(func(r Result) { got = r }))

	exe, err := runner.CreateExecutable(scheduleWith("s-9", value.Object{"explode": value.Null{}}))
	require.NoError(t, err)

	completed := 0
	exe.Execute(func() { completed++ })
	runner.Wait()

	assert.Equal(t, 1, completed)
	assert.ErrorContains(t, got.Err, "kaboom")
}
