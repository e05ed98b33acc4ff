// Package delay provides the default timer for delayed schedule executions.
//
// Scheduler is a single goroutine holding a min-heap of tasks keyed by
// schedule id and sorted by due time. It sleeps at most 60 seconds at a time
// so wall-clock steps (NTP, suspend) delay a task by at most that cap. Tasks
// are in-memory only; the engine re-arms them from the store on start.
package delay

import (
	"container/heap"
	"context"
	"time"
)

const maxSleepCap = 60 * time.Second

// request is a post, or a cancel when task is nil. Posts and cancels share
// one channel so a Cancel issued after a PostAt is applied after it.
type request struct {
	key  string
	when time.Time
	task func()
}

// Scheduler runs keyed tasks at their due time.
type Scheduler struct {
	reqChan chan request
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates and starts a Scheduler. The goroutine exits when ctx is
// cancelled or Close is called; pending tasks are dropped.
func New(ctx context.Context) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	s := &Scheduler{
		reqChan: make(chan request, 64),
		ctx:     ctx,
		cancel:  cancel,
	}
	go s.run()
	return s
}

// Close stops the scheduler goroutine. Armed tasks never run.
func (s *Scheduler) Close() {
	s.cancel()
}

// PostAt arms task to run at when, replacing any task armed under key.
// A when in the past runs the task on the next loop iteration. Tasks run on
// the scheduler goroutine and must not block.
func (s *Scheduler) PostAt(key string, when time.Time, task func()) {
	select {
	case s.reqChan <- request{key: key, when: when, task: task}:
	case <-s.ctx.Done():
	}
}

// Cancel revokes the task armed under key, if any.
func (s *Scheduler) Cancel(key string) {
	select {
	case s.reqChan <- request{key: key}:
	case <-s.ctx.Done():
	}
}

func (s *Scheduler) run() {
	h := &taskHeap{}
	heap.Init(h)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		if h.Len() == 0 {
			return nil
		}
		dur := time.Until((*h)[0].when)
		if dur > maxSleepCap {
			dur = maxSleepCap
		}
		if dur < 0 {
			dur = 0
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	timerCh := resetTimer()

	for {
		select {
		case <-s.ctx.Done():
			return

		case req := <-s.reqChan:
			heapRemoveByKey(h, req.key)
			if req.task != nil {
				heapPush(h, req)
			}
			timerCh = resetTimer()

		case <-timerCh:
			now := time.Now()
			for h.Len() > 0 && !(*h)[0].when.After(now) {
				req := heapPop(h)
				req.task()
			}
			timerCh = resetTimer()
		}
	}
}
