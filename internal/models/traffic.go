package models

import "time"

// TrafficSample is one point of the network traffic chart
type TrafficSample struct {
	TimeLabel        string `json:"time"`
	NormalVolume     int    `json:"normal"`
	SuspiciousVolume int    `json:"suspicious"`
	AttackVolume     int    `json:"attack"`
}

// TrafficRequest represents a single synthetic network request
type TrafficRequest struct {
	Timestamp   time.Time `json:"timestamp"`
	SourceIP    string    `json:"source_ip"`
	DestIP      string    `json:"dest_ip"`
	DestPort    int       `json:"dest_port"`
	Protocol    string    `json:"protocol"` // TCP_SYN, UDP, HTTP
	RequestPath string    `json:"request_path"`
	BytesSent   int       `json:"bytes_sent"`
	Duration    int       `json:"duration_ms"`
}

// Attack represents an attack found in a burst of synthetic traffic
type Attack struct {
	Label       string   `json:"label"` // SYN Flood, HTTP Flood, Slowloris, UDP Flood, Rate Anomaly
	Severity    Severity `json:"severity"`
	Confidence  float64  `json:"confidence"`
	SourceIPs   []string `json:"source_ips"`
	TargetIP    string   `json:"target_ip"`
	Description string   `json:"description"`
}
