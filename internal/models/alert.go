package models

import (
	"strings"
	"time"
)

// Severity is the closed set of alert levels shown on the dashboard
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// ParseSeverity maps a raw severity onto the closed set.
// Anything unknown is down-graded to info.
func ParseSeverity(raw string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityWarning:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// FeedMessage is the wire shape of one live feed message
type FeedMessage struct {
	Label    string `json:"label"`
	Src      string `json:"src"`
	Dst      string `json:"dst"`
	Sample   int64  `json:"sample"`
	Severity string `json:"severity"`
}

// AlertEvent is a feed message accepted by the dashboard
type AlertEvent struct {
	ID                 string    `json:"id"`
	SampleID           int64     `json:"sample_id"`
	Label              string    `json:"label"`
	SourceAddress      string    `json:"source_address"`
	DestinationAddress string    `json:"destination_address"`
	Severity           Severity  `json:"severity"`
	ReceivedAt         time.Time `json:"received_at"`
}
