package alerts

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nshruti113/ddos-defense-dashboard/internal/models"
)

// manualScheduler collects callbacks and fires them on demand
type manualScheduler struct {
	mu      sync.Mutex
	pending []*manualTimer
}

type manualTimer struct {
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

func (s *manualScheduler) schedule(_ time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{f: f}
	s.pending = append(s.pending, t)
	return t
}

// fire runs the oldest n live timers
func (s *manualScheduler) fire(n int) {
	for i := 0; i < n; i++ {
		s.mu.Lock()
		var next *manualTimer
		for _, t := range s.pending {
			if !t.stopped && !t.fired {
				next = t
				break
			}
		}
		s.mu.Unlock()
		if next == nil {
			return
		}
		next.fired = true
		next.f()
	}
}

func event(sample int64) models.AlertEvent {
	return models.AlertEvent{
		ID:       fmt.Sprintf("ev-%d", sample),
		SampleID: sample,
		Label:    "SYN Flood",
		Severity: models.SeverityCritical,
	}
}

func TestPushKeepsArrivalOrder(t *testing.T) {
	s := &manualScheduler{}
	b := NewBuffer(10, time.Second, nil, WithScheduler(s.schedule))

	for _, sample := range []int64{5, 1, 3} {
		b.Push(event(sample))
	}

	snap := b.Snapshot()
	if len(snap) != 3 || snap[0].SampleID != 5 || snap[1].SampleID != 1 || snap[2].SampleID != 3 {
		t.Fatalf("snapshot order = %+v", snap)
	}

	recent := b.Recent(DisplayLimit)
	if recent[0].SampleID != 3 || recent[2].SampleID != 5 {
		t.Errorf("recent should be most-recent-first, got %+v", recent)
	}
}

func TestRecentNeverExceedsDisplayLimit(t *testing.T) {
	s := &manualScheduler{}
	b := NewBuffer(50, time.Second, nil, WithScheduler(s.schedule))

	for i := int64(0); i < 40; i++ {
		b.Push(event(i))
		if got := len(b.Recent(DisplayLimit)); got > DisplayLimit {
			t.Fatalf("Recent returned %d entries", got)
		}
	}
	recent := b.Recent(DisplayLimit)
	if len(recent) != DisplayLimit || recent[0].SampleID != 39 || recent[4].SampleID != 35 {
		t.Errorf("recent = %+v", recent)
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	s := &manualScheduler{}
	b := NewBuffer(3, time.Second, nil, WithScheduler(s.schedule))

	for i := int64(1); i <= 5; i++ {
		b.Push(event(i))
	}

	snap := b.Snapshot()
	if len(snap) != 3 || snap[0].SampleID != 3 || snap[2].SampleID != 5 {
		t.Fatalf("snapshot after overflow = %+v", snap)
	}
}

func TestExpiryRemovesOldest(t *testing.T) {
	s := &manualScheduler{}
	b := NewBuffer(10, time.Second, nil, WithScheduler(s.schedule))

	b.Push(event(1))
	b.Push(event(2))
	s.fire(1)

	snap := b.Snapshot()
	if len(snap) != 1 || snap[0].SampleID != 2 {
		t.Fatalf("after one expiry = %+v", snap)
	}

	s.fire(1)
	if b.Len() != 0 {
		t.Fatalf("buffer should be empty, has %d", b.Len())
	}
	if b.Pending() != 0 {
		t.Errorf("pending timers = %d", b.Pending())
	}
}

func TestExpiryAfterEvictionDropsNewerEntries(t *testing.T) {
	s := &manualScheduler{}
	b := NewBuffer(2, time.Second, nil, WithScheduler(s.schedule))

	b.Push(event(1))
	b.Push(event(2))
	b.Push(event(3)) // evicts 1

	// the timer scheduled for event 1 fires and removes 2
	s.fire(1)
	snap := b.Snapshot()
	if len(snap) != 1 || snap[0].SampleID != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}

	s.fire(2)
	if b.Len() != 0 {
		t.Errorf("len = %d", b.Len())
	}
}

func TestClearStopsTimers(t *testing.T) {
	s := &manualScheduler{}
	b := NewBuffer(10, time.Second, nil, WithScheduler(s.schedule))

	b.Push(event(1))
	b.Push(event(2))
	b.Clear()

	if b.Len() != 0 || b.Pending() != 0 {
		t.Fatalf("len=%d pending=%d after Clear", b.Len(), b.Pending())
	}
	for _, tm := range s.pending {
		if !tm.stopped {
			t.Error("timer not stopped by Clear")
		}
	}

	// a push after Clear works as usual
	b.Push(event(3))
	s.fire(1)
	if b.Len() != 0 {
		t.Errorf("len = %d", b.Len())
	}
}

func TestOnChangeHook(t *testing.T) {
	s := &manualScheduler{}
	changes := 0
	b := NewBuffer(10, time.Second, nil, WithScheduler(s.schedule), WithOnChange(func() { changes++ }))

	b.Push(event(1))
	s.fire(1)

	if changes != 2 {
		t.Errorf("changes = %d, want 2", changes)
	}
}

func TestRealTimerExpiry(t *testing.T) {
	b := NewBuffer(10, 20*time.Millisecond, nil)
	b.Push(event(42))

	if got := b.Recent(DisplayLimit); len(got) != 1 || got[0].SampleID != 42 {
		t.Fatalf("recent = %+v", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for b.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("alert was not expired")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
