package testutil

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

type armedTask struct {
	key  string
	when time.Time
	task func()
}

// ManualScheduler is a delayed task scheduler whose tasks run only when
// FireDue is called. It records every post so tests can assert that timers
// were not armed twice.
//
// Thread-safety: All methods are safe for concurrent use. Tasks run on the
// goroutine calling FireDue, outside the lock.
type ManualScheduler struct {
	mu      sync.Mutex
	armed   map[string]armedTask
	posts   map[string]int
	cancels int
}

// NewManualScheduler creates an empty scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{
		armed: make(map[string]armedTask),
		posts: make(map[string]int),
	}
}

// PostAt arms task for when, replacing any task armed under key.
func (s *ManualScheduler) PostAt(key string, when time.Time, task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed[key] = armedTask{key: key, when: when, task: task}
	s.posts[key]++
}

// Cancel revokes the task armed under key, if any.
func (s *ManualScheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.armed[key]; ok {
		delete(s.armed, key)
		s.cancels++
	}
}

// FireDue runs every task due at or before now, earliest first, and returns
// their keys.
func (s *ManualScheduler) FireDue(now time.Time) []string {
	s.mu.Lock()
	var due []armedTask
	for key, t := range s.armed {
		if !t.when.After(now) {
			due = append(due, t)
			delete(s.armed, key)
		}
	}
	s.mu.Unlock()

	slices.SortFunc(due, func(a, b armedTask) int {
		if c := a.when.Compare(b.when); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})
	keys := make([]string, len(due))
	for i, t := range due {
		keys[i] = t.key
		t.task()
	}
	return keys
}

// Armed returns the keys with an armed task, sorted.
func (s *ManualScheduler) Armed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.armed))
	for k := range s.armed {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// When returns the due time of the task armed under key.
func (s *ManualScheduler) When(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.armed[key]
	return t.when, ok
}

// Posts returns how many times a task was posted under key.
func (s *ManualScheduler) Posts(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posts[key]
}

// Cancels returns how many armed tasks were revoked.
func (s *ManualScheduler) Cancels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}
