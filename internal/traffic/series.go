package traffic

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/nshruti113/ddos-defense-dashboard/internal/metrics"
	"github.com/nshruti113/ddos-defense-dashboard/internal/models"
)

// WindowSize is the number of samples the traffic chart shows
const WindowSize = 7

// StepMinutes separates two consecutive samples
const StepMinutes = 5

var baseline = []models.TrafficSample{
	{TimeLabel: "10:00", NormalVolume: 4000, SuspiciousVolume: 240, AttackVolume: 0},
	{TimeLabel: "10:05", NormalVolume: 3800, SuspiciousVolume: 310, AttackVolume: 100},
	{TimeLabel: "10:10", NormalVolume: 3500, SuspiciousVolume: 450, AttackVolume: 450},
	{TimeLabel: "10:15", NormalVolume: 2800, SuspiciousVolume: 680, AttackVolume: 1200},
	{TimeLabel: "10:20", NormalVolume: 2200, SuspiciousVolume: 920, AttackVolume: 2400},
	{TimeLabel: "10:25", NormalVolume: 1800, SuspiciousVolume: 1100, AttackVolume: 3800},
	{TimeLabel: "10:30", NormalVolume: 3200, SuspiciousVolume: 580, AttackVolume: 800},
}

// Baseline returns a fresh copy of the idle traffic series
func Baseline() []models.TrafficSample {
	out := make([]models.TrafficSample, len(baseline))
	copy(out, baseline)
	return out
}

// AdvanceLabel adds minutes to an HH:MM label. The hour wraps at 24.
func AdvanceLabel(label string, minutes int) (string, error) {
	t, err := time.Parse("15:04", label)
	if err != nil {
		return "", fmt.Errorf("invalid time label %q: %w", label, err)
	}

	total := (t.Hour()*60 + t.Minute() + minutes) % (24 * 60)
	if total < 0 {
		total += 24 * 60
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60), nil
}

// Series is the rolling window behind the network traffic chart
type Series struct {
	mu      sync.Mutex
	samples []models.TrafficSample
	rng     *rand.Rand
	metrics *metrics.Metrics
}

// NewSeries starts at the baseline. The seed drives synthetic volumes.
func NewSeries(seed int64, m *metrics.Metrics) *Series {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Series{
		samples: Baseline(),
		rng:     rand.New(rand.NewSource(seed)),
		metrics: m,
	}
}

// Tick synthesises one attack-time sample, appends it and trims the window
func (s *Series) Tick() models.TrafficSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	label := baseline[0].TimeLabel
	if n := len(s.samples); n > 0 {
		if next, err := AdvanceLabel(s.samples[n-1].TimeLabel, StepMinutes); err == nil {
			label = next
		}
	}

	sample := models.TrafficSample{
		TimeLabel:        label,
		NormalVolume:     7000 + s.rng.Intn(2000),
		SuspiciousVolume: 1200 + s.rng.Intn(800),
		AttackVolume:     3000 + s.rng.Intn(2000),
	}

	s.samples = append(s.samples, sample)
	if len(s.samples) > WindowSize {
		s.samples = append(s.samples[:0:0], s.samples[len(s.samples)-WindowSize:]...)
	}
	s.metrics.TrafficSamples.Inc()

	return sample
}

// Reset restores the baseline
func (s *Series) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = Baseline()
}

func (s *Series) Snapshot() []models.TrafficSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.TrafficSample, len(s.samples))
	copy(out, s.samples)
	return out
}
