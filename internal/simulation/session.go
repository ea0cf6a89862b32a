// Package simulation wires the attack-mode flag to the live feed, the alert
// buffer and the traffic generator.
package simulation

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nshruti113/ddos-defense-dashboard/internal/alerts"
	"github.com/nshruti113/ddos-defense-dashboard/internal/attackmode"
	"github.com/nshruti113/ddos-defense-dashboard/internal/hub"
	"github.com/nshruti113/ddos-defense-dashboard/internal/livefeed"
	"github.com/nshruti113/ddos-defense-dashboard/internal/metrics"
	"github.com/nshruti113/ddos-defense-dashboard/internal/models"
	"github.com/nshruti113/ddos-defense-dashboard/internal/traffic"
)

const backgroundTimeout = 10 * time.Second

// AttackSimulator asks the backend to start or stop generating attacks
type AttackSimulator interface {
	SimulateAttack(ctx context.Context, status string) error
}

// AlertRecorder keeps alerts beyond the display window
type AlertRecorder interface {
	StoreAlert(ctx context.Context, event models.AlertEvent) error
	PublishAlert(ctx context.Context, event models.AlertEvent) error
}

// Broadcaster pushes updates to dashboard clients
type Broadcaster interface {
	Broadcast(msgType string, payload interface{})
}

type Options struct {
	FeedURL       string
	DialTimeout   time.Duration
	TickInterval  time.Duration
	AlertTTL      time.Duration
	AlertCapacity int
	Seed          int64
}

type Session struct {
	controller *attackmode.Controller
	backend    AttackSimulator
	history    AlertRecorder
	hub        Broadcaster
	logger     *logrus.Logger
	metrics    *metrics.Metrics

	feed      *livefeed.Client
	buffer    *alerts.Buffer
	series    *traffic.Series
	generator *traffic.Generator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	feedCancel context.CancelFunc
}

// NewSession builds the simulation and subscribes it to the controller.
// history and broadcaster may be nil.
func NewSession(controller *attackmode.Controller, backend AttackSimulator, history AlertRecorder,
	broadcaster Broadcaster, opts Options, logger *logrus.Logger, m *metrics.Metrics) *Session {
	if m == nil {
		m = metrics.NewNop()
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		controller: controller,
		backend:    backend,
		history:    history,
		hub:        broadcaster,
		logger:     logger,
		metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
	}

	s.buffer = alerts.NewBuffer(opts.AlertCapacity, opts.AlertTTL, m, alerts.WithOnChange(s.alertsChanged))
	s.series = traffic.NewSeries(opts.Seed, m)
	s.generator = traffic.NewGenerator(s.series, opts.TickInterval, s.sampleAdded)

	var feedOpts []livefeed.Option
	if opts.DialTimeout > 0 {
		feedOpts = append(feedOpts, livefeed.WithDialTimeout(opts.DialTimeout))
	}
	s.feed = livefeed.NewClient(opts.FeedURL, s.onAlert, logger, m, feedOpts...)

	controller.Subscribe(s)
	return s
}

// OnAttackMode runs the side effects of one attack-mode edge
func (s *Session) OnAttackMode(_ context.Context, active bool) {
	if active {
		s.activate()
	} else {
		s.deactivate()
	}
	s.broadcast(hub.TypeAttackMode, map[string]bool{"active": active})
}

func (s *Session) activate() {
	s.metrics.AttackModeActive.Set(1)
	s.requestSimulation("start")

	s.mu.Lock()
	feedCtx, cancel := context.WithCancel(s.ctx)
	s.feedCancel = cancel
	s.mu.Unlock()

	s.background(func() {
		if err := s.feed.Open(feedCtx); err != nil && feedCtx.Err() == nil {
			s.logger.Warnf("Live feed unavailable: %v", err)
		}
	})

	s.generator.Start()
}

func (s *Session) deactivate() {
	s.metrics.AttackModeActive.Set(0)

	s.generator.Stop()
	s.closeFeed()
	s.series.Reset()
	s.broadcast(hub.TypeTraffic, s.series.Snapshot())

	s.requestSimulation("stop")
}

// closeFeed cancels any pending dial before closing, so a dial that has not
// started yet fails instead of connecting
func (s *Session) closeFeed() {
	s.mu.Lock()
	cancel := s.feedCancel
	s.feedCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.feed.Close()
}

// requestSimulation is fire-and-forget: failures are logged, never retried
func (s *Session) requestSimulation(status string) {
	if s.backend == nil {
		return
	}
	s.background(func() {
		ctx, cancel := context.WithTimeout(s.ctx, backgroundTimeout)
		defer cancel()
		if err := s.backend.SimulateAttack(ctx, status); err != nil {
			s.logger.Warnf("Simulate attack %s request failed: %v", status, err)
		}
	})
}

func (s *Session) onAlert(event models.AlertEvent) {
	s.buffer.Push(event)
	s.broadcast(hub.TypeAlert, event)

	if s.history == nil {
		return
	}
	s.background(func() {
		ctx, cancel := context.WithTimeout(s.ctx, backgroundTimeout)
		defer cancel()
		if err := s.history.StoreAlert(ctx, event); err != nil {
			s.logger.Debugf("Failed to store alert history: %v", err)
			return
		}
		if err := s.history.PublishAlert(ctx, event); err != nil {
			s.logger.Debugf("Failed to publish alert: %v", err)
		}
	})
}

func (s *Session) alertsChanged() {
	s.broadcast(hub.TypeAlerts, s.buffer.Recent(alerts.DisplayLimit))
}

func (s *Session) sampleAdded(models.TrafficSample) {
	s.broadcast(hub.TypeTraffic, s.series.Snapshot())
}

func (s *Session) broadcast(msgType string, payload interface{}) {
	if s.hub != nil {
		s.hub.Broadcast(msgType, payload)
	}
}

func (s *Session) background(f func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		f()
	}()
}

// LiveAlerts returns the alerts currently on screen, most recent first
func (s *Session) LiveAlerts() []models.AlertEvent {
	return s.buffer.Recent(alerts.DisplayLimit)
}

// Traffic returns the current traffic chart series
func (s *Session) Traffic() []models.TrafficSample {
	return s.series.Snapshot()
}

// FeedOpen reports whether the live feed currently holds a connection
func (s *Session) FeedOpen() bool {
	return s.feed.IsOpen()
}

// Snapshot is the initial state for a newly connected dashboard
func (s *Session) Snapshot() []hub.Message {
	return []hub.Message{
		{Type: hub.TypeAttackMode, Payload: map[string]bool{"active": s.controller.Active()}},
		{Type: hub.TypeTraffic, Payload: s.Traffic()},
		{Type: hub.TypeAlerts, Payload: s.LiveAlerts()},
	}
}

// Close stops the generator, closes the feed and stops every alert timer
func (s *Session) Close() {
	s.generator.Stop()
	s.closeFeed()
	s.buffer.Clear()
	s.cancel()
	s.wg.Wait()
}
