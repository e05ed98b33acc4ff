package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func named(name string) task {
	return task{name: name, run: func(context.Context) {}}
}

func TestTaskQueue_EnqueueDequeue(t *testing.T) {
	q := newTaskQueue()

	ok := q.Enqueue(named("schedule"))
	require.True(t, ok, "enqueue should succeed")

	got, ok := q.TryDequeue()
	require.True(t, ok, "dequeue should succeed")
	assert.Equal(t, "schedule", got.name)
}

func TestTaskQueue_FIFO(t *testing.T) {
	q := newTaskQueue()

	for _, name := range []string{"A", "B", "C"} {
		q.Enqueue(named(name))
	}

	for _, want := range []string{"A", "B", "C"} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got.name)
	}
}

func TestTaskQueue_TryDequeue_Empty(t *testing.T) {
	q := newTaskQueue()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestTaskQueue_WaitSignalsOnEnqueue(t *testing.T) {
	q := newTaskQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(named("late"))
	}()

	select {
	case _, open := <-q.Wait():
		assert.True(t, open)
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, "late", got.name)
	case <-time.After(time.Second):
		t.Fatal("wait did not signal")
	}
}

func TestTaskQueue_Close_ClosesWait(t *testing.T) {
	q := newTaskQueue()
	q.Close()
	q.Close()

	select {
	case _, open := <-q.Wait():
		assert.False(t, open, "wait channel closes with the queue")
	case <-time.After(100 * time.Millisecond):
		t.Fatal("wait did not unblock after close")
	}
}

func TestTaskQueue_Enqueue_AfterClose(t *testing.T) {
	q := newTaskQueue()
	q.Close()

	assert.False(t, q.Enqueue(named("after")), "enqueue after close should return false")
	assert.False(t, q.CloseWith(named("after")))
}

func TestTaskQueue_CloseWithRunsLast(t *testing.T) {
	q := newTaskQueue()
	q.Enqueue(named("first"))
	require.True(t, q.CloseWith(named("stop")))
	assert.False(t, q.Enqueue(named("rejected")))

	var names []string
	for {
		got, ok := q.TryDequeue()
		if !ok {
			break
		}
		names = append(names, got.name)
	}
	assert.Equal(t, []string{"first", "stop"}, names)
}

func TestTaskQueue_Drain(t *testing.T) {
	q := newTaskQueue()
	var aborted []error
	for range 3 {
		q.Enqueue(task{name: "pending", abort: func(err error) { aborted = append(aborted, err) }})
	}

	rest := q.Drain()
	require.Len(t, rest, 3)
	for _, tk := range rest {
		tk.abort(ErrStopped)
	}
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.Enqueue(named("after")))
	for _, err := range aborted {
		assert.True(t, errors.Is(err, ErrStopped))
	}
}

func TestTaskQueue_Len(t *testing.T) {
	q := newTaskQueue()

	assert.Equal(t, 0, q.Len())

	q.Enqueue(named("1"))
	assert.Equal(t, 1, q.Len())

	q.Enqueue(named("2"))
	assert.Equal(t, 2, q.Len())

	q.TryDequeue()
	assert.Equal(t, 1, q.Len())

	q.TryDequeue()
	assert.Equal(t, 0, q.Len())
}

func TestTaskQueue_ThreadSafe(t *testing.T) {
	q := newTaskQueue()

	const producers = 10
	const tasksPerProducer = 100

	var wg sync.WaitGroup
	for range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range tasksPerProducer {
				q.Enqueue(named("t"))
			}
		}()
	}

	received := 0
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for received < producers*tasksPerProducer {
			if _, ok := q.TryDequeue(); ok {
				received++
				continue
			}
			<-q.Wait()
		}
	}()

	wg.Wait()

	select {
	case <-consumerDone:
	case <-time.After(5 * time.Second):
		t.Fatalf("consumer timeout: received %d tasks", received)
	}
	assert.Equal(t, producers*tasksPerProducer, received)
}

func TestFuture_ResolveOnce(t *testing.T) {
	f := newFuture[int]()
	f.resolve(1)
	f.resolve(2)
	f.fail(ErrStopped)

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	select {
	case <-f.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestFuture_WaitHonoursContext(t *testing.T) {
	f := newFuture[string]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = failedFuture[string](ErrStopped).Wait(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestRuntimeError(t *testing.T) {
	err := error(NewCapacityError(3, 999, 1000))
	assert.True(t, IsCapacityError(err))
	assert.False(t, IsPersistenceError(err))
	assert.Contains(t, err.Error(), "CAPACITY_EXCEEDED")

	cause := errors.New("disk full")
	err = NewPersistenceError("save schedule", "s-1", cause)
	assert.True(t, IsPersistenceError(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "schedule=s-1")

	assert.True(t, IsReadinessTimeout(NewReadinessTimeoutError("s-1", time.Second)))
	assert.Contains(t, NewExecutorError("s-1", "boom").Error(), "executor panicked: boom")
}
