package detection

import (
	"fmt"
	"math"
	"sort"

	"github.com/nshruti113/ddos-defense-dashboard/internal/models"
)

// Attack labels as they appear on the live feed
const (
	LabelSYNFlood    = "SYN Flood"
	LabelHTTPFlood   = "HTTP Flood"
	LabelSlowloris   = "Slowloris"
	LabelUDPFlood    = "UDP Flood"
	LabelRateAnomaly = "Rate Anomaly"
)

type Detector struct {
	baseline   Baseline
	thresholds Thresholds
}

type Baseline struct {
	AverageRequestRate    float64
	AverageUniqueIPs      int
	AverageIPEntropy      float64
	StandardDeviation     float64
	AvgConnectionDuration float64
}

type Thresholds struct {
	RequestRateZScore  float64
	IPEntropyMin       float64
	PathEntropyMax     float64
	SlowConnectionTime int
	SlowConnections    int
	SYNFloodThreshold  int
	HTTPFloodThreshold int
	UDPFloodThreshold  int
	MaxFloodSources    int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		RequestRateZScore:  3.0,
		IPEntropyMin:       3.0,
		PathEntropyMax:     2.0,
		SlowConnectionTime: 30000,
		SlowConnections:    100,
		SYNFloodThreshold:  1000,
		HTTPFloodThreshold: 2000,
		UDPFloodThreshold:  2000,
		MaxFloodSources:    10,
	}
}

func NewDetector(thresholds Thresholds) *Detector {
	return &Detector{
		baseline: Baseline{
			AverageRequestRate:    100.0,
			AverageUniqueIPs:      50,
			AverageIPEntropy:      5.5,
			StandardDeviation:     15.0,
			AvgConnectionDuration: 150.0,
		},
		thresholds: thresholds,
	}
}

// Analyze classifies one burst of traffic. Each detected attack type yields
// at most one Attack.
func (d *Detector) Analyze(requests []models.TrafficRequest) []models.Attack {
	if len(requests) == 0 {
		return nil
	}

	stats := summarize(requests)

	checks := []func([]models.TrafficRequest, *burstStats) *models.Attack{
		d.detectSYNFlood,
		d.detectHTTPFlood,
		d.detectSlowloris,
		d.detectUDPFlood,
		d.detectRateAnomaly,
	}

	var attacks []models.Attack
	for _, check := range checks {
		if attack := check(requests, stats); attack != nil {
			attacks = append(attacks, *attack)
		}
	}
	return attacks
}

type burstStats struct {
	total          int
	sourceCounts   map[string]int
	protocolCounts map[string]int
	pathCounts     map[string]int
	targetCounts   map[string]int
	ipEntropy      float64
	pathEntropy    float64
	avgDuration    float64
}

func summarize(requests []models.TrafficRequest) *burstStats {
	s := &burstStats{
		total:          len(requests),
		sourceCounts:   make(map[string]int),
		protocolCounts: make(map[string]int),
		pathCounts:     make(map[string]int),
		targetCounts:   make(map[string]int),
	}

	totalDuration := 0
	for _, req := range requests {
		s.sourceCounts[req.SourceIP]++
		s.protocolCounts[req.Protocol]++
		s.targetCounts[req.DestIP]++
		if req.RequestPath != "" {
			s.pathCounts[req.RequestPath]++
		}
		totalDuration += req.Duration
	}

	s.ipEntropy = entropy(s.sourceCounts)
	s.pathEntropy = entropy(s.pathCounts)
	s.avgDuration = float64(totalDuration) / float64(len(requests))
	return s
}

// sourcesFor counts source IPs for requests matching the predicate
func sourcesFor(requests []models.TrafficRequest, match func(models.TrafficRequest) bool) (int, map[string]int) {
	n := 0
	sources := make(map[string]int)
	for _, req := range requests {
		if match(req) {
			n++
			sources[req.SourceIP]++
		}
	}
	return n, sources
}

// SYN flood: many SYN packets from few sources
func (d *Detector) detectSYNFlood(requests []models.TrafficRequest, s *burstStats) *models.Attack {
	count, sources := sourcesFor(requests, func(r models.TrafficRequest) bool { return r.Protocol == "TCP_SYN" })
	if count <= d.thresholds.SYNFloodThreshold || len(sources) >= d.thresholds.MaxFloodSources {
		return nil
	}

	confidence := math.Min(float64(count)/float64(d.thresholds.SYNFloodThreshold*2), 1.0)
	return d.attack(LabelSYNFlood, confidence, sources, s,
		fmt.Sprintf("%d SYN packets from %d sources", count, len(sources)))
}

// HTTP flood: request volume concentrated on few paths
func (d *Detector) detectHTTPFlood(requests []models.TrafficRequest, s *burstStats) *models.Attack {
	count, sources := sourcesFor(requests, func(r models.TrafficRequest) bool { return r.Protocol == "HTTP" })
	if count < d.thresholds.HTTPFloodThreshold || s.pathEntropy >= d.thresholds.PathEntropyMax {
		return nil
	}

	confidence := math.Min(float64(count)/float64(d.thresholds.HTTPFloodThreshold*2), 1.0)
	return d.attack(LabelHTTPFlood, confidence, sources, s,
		fmt.Sprintf("%d HTTP requests with path entropy %.2f", count, s.pathEntropy))
}

// Slowloris: many long-held HTTP connections from few sources
func (d *Detector) detectSlowloris(requests []models.TrafficRequest, s *burstStats) *models.Attack {
	count, sources := sourcesFor(requests, func(r models.TrafficRequest) bool {
		return r.Protocol == "HTTP" && r.Duration > d.thresholds.SlowConnectionTime
	})
	if count <= d.thresholds.SlowConnections || len(sources) >= d.thresholds.MaxFloodSources {
		return nil
	}

	confidence := math.Min(float64(count)/float64(d.thresholds.SlowConnections*3), 1.0)
	return d.attack(LabelSlowloris, confidence, sources, s,
		fmt.Sprintf("%d slow connections from %d sources", count, len(sources)))
}

func (d *Detector) detectUDPFlood(requests []models.TrafficRequest, s *burstStats) *models.Attack {
	count, sources := sourcesFor(requests, func(r models.TrafficRequest) bool { return r.Protocol == "UDP" })
	if count < d.thresholds.UDPFloodThreshold {
		return nil
	}

	confidence := math.Min(float64(count)/float64(d.thresholds.UDPFloodThreshold)*0.4, 1.0)
	return d.attack(LabelUDPFlood, confidence, sources, s,
		fmt.Sprintf("%d UDP packets from %d sources", count, len(sources)))
}

// Rate anomaly: request volume far above baseline with low source diversity
func (d *Detector) detectRateAnomaly(_ []models.TrafficRequest, s *burstStats) *models.Attack {
	zScore := (float64(s.total) - d.baseline.AverageRequestRate) / d.baseline.StandardDeviation
	if zScore <= d.thresholds.RequestRateZScore || s.ipEntropy >= d.thresholds.IPEntropyMin {
		return nil
	}

	confidence := math.Min(zScore/6.0, 1.0)
	return d.attack(LabelRateAnomaly, confidence, s.sourceCounts, s,
		fmt.Sprintf("%d requests (z-score %.2f), source entropy %.2f", s.total, zScore, s.ipEntropy))
}

func (d *Detector) attack(label string, confidence float64, sources map[string]int, s *burstStats, desc string) *models.Attack {
	return &models.Attack{
		Label:       label,
		Severity:    SeverityFor(confidence),
		Confidence:  confidence,
		SourceIPs:   topKeys(sources, 20),
		TargetIP:    firstOrEmpty(topKeys(s.targetCounts, 1)),
		Description: desc,
	}
}

// SeverityFor maps detector confidence onto the dashboard's severity set
func SeverityFor(confidence float64) models.Severity {
	switch {
	case confidence >= 0.9:
		return models.SeverityCritical
	case confidence >= 0.6:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}

// entropy is the Shannon entropy of a distribution
func entropy(counts map[string]int) float64 {
	total := 0
	for _, count := range counts {
		total += count
	}
	if total == 0 {
		return 0.0
	}

	h := 0.0
	for _, count := range counts {
		if count > 0 {
			p := float64(count) / float64(total)
			h -= p * math.Log2(p)
		}
	}
	return h
}

// topKeys returns up to n keys ordered by descending count
func topKeys(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func firstOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// UpdateBaseline folds a quiet burst into the baseline with an exponential
// moving average
func (d *Detector) UpdateBaseline(requests []models.TrafficRequest) {
	if len(requests) == 0 {
		return
	}
	s := summarize(requests)
	alpha := 0.1

	d.baseline.AverageRequestRate = alpha*float64(s.total) + (1-alpha)*d.baseline.AverageRequestRate
	d.baseline.AverageUniqueIPs = int(alpha*float64(len(s.sourceCounts)) + (1-alpha)*float64(d.baseline.AverageUniqueIPs))
	d.baseline.AverageIPEntropy = alpha*s.ipEntropy + (1-alpha)*d.baseline.AverageIPEntropy
	d.baseline.AvgConnectionDuration = alpha*s.avgDuration + (1-alpha)*d.baseline.AvgConnectionDuration
}

// Baseline returns the current baseline
func (d *Detector) Baseline() Baseline {
	return d.baseline
}
