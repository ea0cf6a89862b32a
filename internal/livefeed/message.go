package livefeed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nshruti113/ddos-defense-dashboard/internal/models"
)

// ErrMalformed marks a feed message that is dropped without reaching the sink
var ErrMalformed = errors.New("malformed feed message")

type wireMessage struct {
	Label    string          `json:"label"`
	Src      string          `json:"src"`
	Dst      string          `json:"dst"`
	Sample   json.RawMessage `json:"sample"`
	Severity string          `json:"severity"`
}

// ParseMessage decodes one text frame. It fails when the frame is not a JSON
// object, sample is not an integer, or label is empty.
func ParseMessage(data []byte) (models.FeedMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return models.FeedMessage{}, fmt.Errorf("%w: not a JSON object", ErrMalformed)
	}

	var wire wireMessage
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return models.FeedMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	sample, err := strconv.ParseInt(string(wire.Sample), 10, 64)
	if err != nil {
		return models.FeedMessage{}, fmt.Errorf("%w: sample %q is not an integer", ErrMalformed, wire.Sample)
	}
	if wire.Label == "" {
		return models.FeedMessage{}, fmt.Errorf("%w: empty label", ErrMalformed)
	}

	return models.FeedMessage{
		Label:    wire.Label,
		Src:      wire.Src,
		Dst:      wire.Dst,
		Sample:   sample,
		Severity: wire.Severity,
	}, nil
}

// NewEvent stamps a parsed message with a client id and the receive time
func NewEvent(msg models.FeedMessage, receivedAt time.Time) models.AlertEvent {
	return models.AlertEvent{
		ID:                 uuid.New().String(),
		SampleID:           msg.Sample,
		Label:              msg.Label,
		SourceAddress:      msg.Src,
		DestinationAddress: msg.Dst,
		Severity:           models.ParseSeverity(msg.Severity),
		ReceivedAt:         receivedAt,
	}
}
