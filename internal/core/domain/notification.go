package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus is the state of one notification attempt.
type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// NotificationDelivery records one attempt to push an alert to a sink.
type NotificationDelivery struct {
	ID         uuid.UUID      `json:"id"`
	AlertID    uuid.UUID      `json:"alert_id"`
	Sink       string         `json:"sink"`
	Target     string         `json:"target"`
	Attempt    int            `json:"attempt"`
	Status     DeliveryStatus `json:"status"`
	HTTPStatus *int           `json:"http_status,omitempty"`
	LastError  *string        `json:"last_error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
