package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sjsage522/discountworker/internal/crawler"
	"sjsage522/discountworker/services/publisher"
)

// StreamKey is the field name alert events are published under
const StreamKey = "b64_alert"

// Stream publishes alerts as JSON events for downstream consumers
type Stream struct {
	publisher publisher.Publisher
}

type alertEvent struct {
	crawler.Listing
	Discount int       `json:"discount"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sent_at"`
}

// NewStream creates the transport
func NewStream(p publisher.Publisher) *Stream {
	return &Stream{publisher: p}
}

// Name implements Transport
func (s *Stream) Name() string {
	return "stream"
}

// Send implements Transport
func (s *Stream) Send(ctx context.Context, alert Alert) error {
	data, err := json.Marshal(alertEvent{
		Listing:  alert.Listing,
		Discount: alert.Discount,
		Text:     alert.Text,
		SentAt:   alert.SentAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	return s.publisher.Publish(ctx, StreamKey, data)
}
