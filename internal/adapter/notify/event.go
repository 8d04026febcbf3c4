// Package notify delivers newly created alerts to external sinks.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"wallet-risk-monitor/internal/core/domain"
)

// EventAlertCreated is the only event type emitted today.
const EventAlertCreated = "alert.created"

// AlertEvent is the body sent to every sink.
type AlertEvent struct {
	Event  string       `json:"event"`
	Alert  domain.Alert `json:"alert"`
	SentAt time.Time    `json:"sent_at"`
}

func encodeAlert(a *domain.Alert, now time.Time) ([]byte, error) {
	body, err := json.Marshal(AlertEvent{Event: EventAlertCreated, Alert: *a, SentAt: now.UTC()})
	if err != nil {
		return nil, fmt.Errorf("marshal alert event: %w", err)
	}
	return body, nil
}
