package alerts

import (
	"sync"
	"time"

	"github.com/nshruti113/ddos-defense-dashboard/internal/metrics"
	"github.com/nshruti113/ddos-defense-dashboard/internal/models"
)

const (
	// DisplayLimit is how many live alerts the dashboard renders
	DisplayLimit = 5
	// DefaultTTL is how long an alert stays on screen
	DefaultTTL = 5 * time.Second
	// DefaultCapacity bounds the buffer regardless of arrival rate
	DefaultCapacity = 20
)

// Timer is the part of *time.Timer the buffer needs
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d
type Scheduler func(d time.Duration, f func()) Timer

func afterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Buffer holds recently received alerts for transient display.
//
// Every Push schedules one removal after the TTL, and a removal always drops
// the oldest entry still present. Under bursts this removes an entry other
// than the one whose timer fired.
type Buffer struct {
	mu        sync.Mutex
	events    []models.AlertEvent
	capacity  int
	ttl       time.Duration
	schedule  Scheduler
	timers    map[uint64]Timer
	nextTimer uint64
	onChange  func()
	metrics   *metrics.Metrics
}

type Option func(*Buffer)

// WithScheduler replaces time.AfterFunc, mainly for tests
func WithScheduler(s Scheduler) Option {
	return func(b *Buffer) { b.schedule = s }
}

// WithOnChange registers a hook called after every mutation, outside the lock
func WithOnChange(f func()) Option {
	return func(b *Buffer) { b.onChange = f }
}

func NewBuffer(capacity int, ttl time.Duration, m *metrics.Metrics, opts ...Option) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if m == nil {
		m = metrics.NewNop()
	}

	b := &Buffer{
		events:   make([]models.AlertEvent, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		schedule: afterFunc,
		timers:   make(map[uint64]Timer),
		metrics:  m,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Push appends an alert in arrival order and schedules its expiry
func (b *Buffer) Push(event models.AlertEvent) {
	b.mu.Lock()
	b.events = append(b.events, event)
	for len(b.events) > b.capacity {
		b.dropOldest()
		b.metrics.AlertsEvicted.Inc()
	}

	b.nextTimer++
	id := b.nextTimer
	b.timers[id] = b.schedule(b.ttl, func() { b.expire(id) })
	b.mu.Unlock()

	b.changed()
}

func (b *Buffer) expire(id uint64) {
	b.mu.Lock()
	if _, ok := b.timers[id]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.timers, id)

	removed := false
	if len(b.events) > 0 {
		b.dropOldest()
		removed = true
	}
	b.mu.Unlock()

	if removed {
		b.metrics.AlertsExpired.Inc()
		b.changed()
	}
}

// caller holds mu
func (b *Buffer) dropOldest() {
	copy(b.events, b.events[1:])
	b.events[len(b.events)-1] = models.AlertEvent{}
	b.events = b.events[:len(b.events)-1]
}

// Recent returns at most n alerts, most recent first
func (b *Buffer) Recent(n int) []models.AlertEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > len(b.events) {
		n = len(b.events)
	}
	if n < 0 {
		n = 0
	}

	out := make([]models.AlertEvent, 0, n)
	for i := len(b.events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, b.events[i])
	}
	return out
}

// Snapshot returns every buffered alert in arrival order
func (b *Buffer) Snapshot() []models.AlertEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.AlertEvent, len(b.events))
	copy(out, b.events)
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Clear empties the buffer and stops every pending expiry timer
func (b *Buffer) Clear() {
	b.mu.Lock()
	for id, t := range b.timers {
		t.Stop()
		delete(b.timers, id)
	}
	b.events = b.events[:0]
	b.mu.Unlock()

	b.changed()
}

// Pending reports how many expiry timers are still scheduled
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.timers)
}

func (b *Buffer) changed() {
	if b.onChange != nil {
		b.onChange()
	}
}
