package mockbackend

import (
	"sync"

	"github.com/nshruti113/ddos-defense-dashboard/internal/detection"
	"github.com/nshruti113/ddos-defense-dashboard/internal/models"
)

// AttackFeed turns classified traffic bursts into live feed messages
type AttackFeed struct {
	mu       sync.Mutex
	bursts   *bursts
	detector *detection.Detector
	next     int
	sample   int64
}

func NewAttackFeed(seed int64) *AttackFeed {
	return &AttackFeed{
		bursts:   newBursts(seed),
		detector: detection.NewDetector(detection.DefaultThresholds()),
	}
}

// Next generates the next attack burst in the cycle, classifies it and
// returns one message per detected attack
func (f *AttackFeed) Next() []models.FeedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	kind := attackSequence[f.next%len(attackSequence)]
	f.next++

	quiet := f.bursts.normal(60)
	if len(f.detector.Analyze(quiet)) == 0 {
		f.detector.UpdateBaseline(quiet)
	}

	attacks := f.detector.Analyze(append(quiet, f.bursts.attack(kind)...))

	messages := make([]models.FeedMessage, 0, len(attacks))
	for _, attack := range attacks {
		f.sample++
		src := ""
		if len(attack.SourceIPs) > 0 {
			src = attack.SourceIPs[0]
		}
		messages = append(messages, models.FeedMessage{
			Label:    attack.Label,
			Src:      src,
			Dst:      attack.TargetIP,
			Sample:   f.sample,
			Severity: string(attack.Severity),
		})
	}
	return messages
}
