package mockbackend

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/nshruti113/ddos-defense-dashboard/internal/models"
)

const targetIP = "192.168.1.100"

// Attack kinds the feed cycles through
const (
	KindHTTPFlood = "HTTP_FLOOD"
	KindSYNFlood  = "SYN_FLOOD"
	KindSlowloris = "SLOWLORIS"
	KindUDPFlood  = "UDP_FLOOD"
)

var attackSequence = []string{KindSYNFlood, KindHTTPFlood, KindSlowloris, KindUDPFlood}

// bursts synthesises traffic. Not safe for concurrent use.
type bursts struct {
	rng *rand.Rand
	now func() time.Time
}

func newBursts(seed int64) *bursts {
	return &bursts{rng: rand.New(rand.NewSource(seed)), now: time.Now}
}

var normalPaths = []string{
	"/", "/api/users", "/api/products", "/login", "/dashboard",
	"/profile", "/search", "/checkout", "/api/orders", "/help",
}

func (b *bursts) randomIP() string {
	return fmt.Sprintf("%d.%d.%d.%d", b.rng.Intn(256), b.rng.Intn(256), b.rng.Intn(256), b.rng.Intn(256))
}

func (b *bursts) botnet(size int) []string {
	ips := make([]string, size)
	for i := range ips {
		ips[i] = b.randomIP()
	}
	return ips
}

// normal creates n requests of ordinary user traffic
func (b *bursts) normal(n int) []models.TrafficRequest {
	requests := make([]models.TrafficRequest, 0, n)
	for i := 0; i < n; i++ {
		requests = append(requests, models.TrafficRequest{
			Timestamp:   b.now(),
			SourceIP:    b.randomIP(),
			DestIP:      targetIP,
			DestPort:    443,
			Protocol:    "HTTP",
			RequestPath: normalPaths[b.rng.Intn(len(normalPaths))],
			BytesSent:   b.rng.Intn(1000) + 100,
			Duration:    b.rng.Intn(200) + 50,
		})
	}
	return requests
}

func (b *bursts) attack(kind string) []models.TrafficRequest {
	switch kind {
	case KindSYNFlood:
		return b.synFlood()
	case KindHTTPFlood:
		return b.httpFlood()
	case KindSlowloris:
		return b.slowloris()
	case KindUDPFlood:
		return b.udpFlood()
	}
	return nil
}

func (b *bursts) synFlood() []models.TrafficRequest {
	sources := []string{"203.0.113.10", "203.0.113.11", "203.0.113.12"}
	count := b.rng.Intn(4000) + 1500

	requests := make([]models.TrafficRequest, 0, count)
	for i := 0; i < count; i++ {
		requests = append(requests, models.TrafficRequest{
			Timestamp: b.now(),
			SourceIP:  sources[b.rng.Intn(len(sources))],
			DestIP:    targetIP,
			DestPort:  80,
			Protocol:  "TCP_SYN",
			BytesSent: 64,
		})
	}
	return requests
}

func (b *bursts) httpFlood() []models.TrafficRequest {
	sources := b.botnet(50)
	paths := []string{"/api/search", "/login"}
	count := b.rng.Intn(3000) + 2000

	requests := make([]models.TrafficRequest, 0, count)
	for i := 0; i < count; i++ {
		requests = append(requests, models.TrafficRequest{
			Timestamp:   b.now(),
			SourceIP:    sources[b.rng.Intn(len(sources))],
			DestIP:      targetIP,
			DestPort:    443,
			Protocol:    "HTTP",
			RequestPath: paths[b.rng.Intn(len(paths))],
			BytesSent:   b.rng.Intn(500) + 100,
			Duration:    b.rng.Intn(100) + 20,
		})
	}
	return requests
}

func (b *bursts) slowloris() []models.TrafficRequest {
	sources := []string{"198.51.100.20", "198.51.100.21", "198.51.100.22"}
	count := b.rng.Intn(500) + 200

	requests := make([]models.TrafficRequest, 0, count)
	for i := 0; i < count; i++ {
		requests = append(requests, models.TrafficRequest{
			Timestamp: b.now(),
			SourceIP:  sources[b.rng.Intn(len(sources))],
			DestIP:    targetIP,
			DestPort:  80,
			Protocol:  "HTTP",
			BytesSent: 10,
			Duration:  b.rng.Intn(30000) + 60000,
		})
	}
	return requests
}

func (b *bursts) udpFlood() []models.TrafficRequest {
	sources := b.botnet(30)
	count := b.rng.Intn(5000) + 3000

	requests := make([]models.TrafficRequest, 0, count)
	for i := 0; i < count; i++ {
		requests = append(requests, models.TrafficRequest{
			Timestamp: b.now(),
			SourceIP:  sources[b.rng.Intn(len(sources))],
			DestIP:    targetIP,
			DestPort:  b.rng.Intn(65535),
			Protocol:  "UDP",
			BytesSent: b.rng.Intn(1400) + 100,
		})
	}
	return requests
}
