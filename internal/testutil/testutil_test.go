package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClock_Advance(t *testing.T) {
	clock := NewFakeClock(epoch)
	assert.Equal(t, epoch, clock.Now())

	got := clock.Advance(90 * time.Second)
	assert.Equal(t, epoch.Add(90*time.Second), got)
	assert.Equal(t, got, clock.Now())

	clock.Set(epoch)
	assert.Equal(t, epoch, clock.Now())
}

func TestManualScheduler_FiresOnlyDueTasks(t *testing.T) {
	s := NewManualScheduler()
	var fired []string
	record := func(k string) func() { return func() { fired = append(fired, k) } }

	s.PostAt("late", epoch.Add(time.Minute), record("late"))
	s.PostAt("early", epoch.Add(time.Second), record("early"))

	assert.Empty(t, s.FireDue(epoch))
	assert.Equal(t, []string{"early"}, s.FireDue(epoch.Add(30*time.Second)))
	assert.Equal(t, []string{"late"}, s.FireDue(epoch.Add(time.Hour)))
	assert.Equal(t, []string{"early", "late"}, fired)
	assert.Empty(t, s.Armed())
}

func TestManualScheduler_ReplaceAndCancel(t *testing.T) {
	s := NewManualScheduler()
	fired := 0

	s.PostAt("a", epoch.Add(time.Second), func() { fired += 10 })
	s.PostAt("a", epoch.Add(2*time.Second), func() { fired++ })
	assert.Equal(t, 2, s.Posts("a"))

	when, ok := s.When("a")
	require.True(t, ok)
	assert.Equal(t, epoch.Add(2*time.Second), when)

	s.PostAt("b", epoch, func() { fired += 100 })
	s.Cancel("b")
	s.Cancel("missing")
	assert.Equal(t, 1, s.Cancels())

	s.FireDue(epoch.Add(time.Hour))
	assert.Equal(t, 1, fired)
}

func TestSequentialIDGenerator(t *testing.T) {
	g := NewSequentialIDGenerator("")
	assert.Equal(t, "sched-1", g.Generate())
	assert.Equal(t, "sched-2", g.Generate())

	g = NewSequentialIDGenerator("promo")
	var wg sync.WaitGroup
	ids := make(chan string, 50)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- g.Generate()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, 50)
}
