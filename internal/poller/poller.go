// Package poller keeps dashboard panels fresh by fetching them on an interval.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nshruti113/ddos-defense-dashboard/internal/metrics"
)

// FetchFunc loads the latest data for one panel
type FetchFunc[T any] func(ctx context.Context) (T, error)

// State is what a panel shows: the last good data plus the last error, if any
type State[T any] struct {
	Data      T         `json:"data"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	Loaded    bool      `json:"loaded"`
}

// Poller fetches once immediately and then on every tick. Fetches never
// overlap; a slow fetch delays the next one.
type Poller[T any] struct {
	name     string
	interval time.Duration
	fetch    FetchFunc[T]
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu    sync.RWMutex
	state State[T]
}

func New[T any](name string, interval time.Duration, fetch FetchFunc[T], logger *logrus.Logger, m *metrics.Metrics) *Poller[T] {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Poller[T]{
		name:     name,
		interval: interval,
		fetch:    fetch,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

func (p *Poller[T]) Name() string {
	return p.name
}

// Run blocks until ctx is cancelled
func (p *Poller[T]) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Refresh(ctx)
		}
	}
}

// Refresh performs one fetch and records the outcome
func (p *Poller[T]) Refresh(ctx context.Context) {
	data, err := p.fetch(ctx)
	if ctx.Err() != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.state.Error = err.Error()
		p.metrics.PollErrors.WithLabelValues(p.name).Inc()
		p.logger.Warnf("Failed to refresh %s panel: %v", p.name, err)
		return
	}

	p.state = State[T]{
		Data:      data,
		UpdatedAt: p.now(),
		Loaded:    true,
	}
}

// State returns the current panel state
func (p *Poller[T]) State() State[T] {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Snapshot returns the state with Data as an untyped value, for handlers that
// serve many panel types
func (p *Poller[T]) Snapshot() State[any] {
	s := p.State()
	return State[any]{
		Data:      s.Data,
		Error:     s.Error,
		UpdatedAt: s.UpdatedAt,
		Loaded:    s.Loaded,
	}
}

// Panel is the type-erased view the HTTP layer and the runner use
type Panel interface {
	Name() string
	Run(ctx context.Context)
	Snapshot() State[any]
}

// Group runs a set of panels and stops them together
type Group struct {
	panels map[string]Panel
	order  []string
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewGroup(panels ...Panel) *Group {
	g := &Group{panels: make(map[string]Panel, len(panels))}
	for _, p := range panels {
		g.panels[p.Name()] = p
		g.order = append(g.order, p.Name())
	}
	return g
}

// Start launches one goroutine per panel
func (g *Group) Start(ctx context.Context) {
	ctx, g.cancel = context.WithCancel(ctx)
	for _, name := range g.order {
		p := g.panels[name]
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			p.Run(ctx)
		}()
	}
}

// Stop cancels every panel and waits for them to return
func (g *Group) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.wg.Wait()
}

func (g *Group) Get(name string) (Panel, bool) {
	p, ok := g.panels[name]
	return p, ok
}

func (g *Group) Names() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}
