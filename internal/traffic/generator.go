package traffic

import (
	"context"
	"sync"
	"time"

	"github.com/nshruti113/ddos-defense-dashboard/internal/models"
)

// Generator ticks a Series on an interval while the simulation runs
type Generator struct {
	series   *Series
	interval time.Duration
	onSample func(models.TrafficSample)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewGenerator creates a stopped generator. onSample may be nil.
func NewGenerator(series *Series, interval time.Duration, onSample func(models.TrafficSample)) *Generator {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Generator{
		series:   series,
		interval: interval,
		onSample: onSample,
	}
}

// Start begins ticking. Calling Start on a running generator does nothing.
func (g *Generator) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.done = make(chan struct{})

	go g.run(ctx, g.done)
}

func (g *Generator) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample := g.series.Tick()
			if g.onSample != nil {
				g.onSample(sample)
			}
		}
	}
}

// Stop cancels the ticker and waits for the tick goroutine to exit
func (g *Generator) Stop() {
	g.mu.Lock()
	cancel, done := g.cancel, g.done
	g.cancel, g.done = nil, nil
	g.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (g *Generator) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancel != nil
}
