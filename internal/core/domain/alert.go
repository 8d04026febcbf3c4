package domain

import (
	"time"

	"github.com/google/uuid"
)

// AlertStatus is one-way: pending -> resolved.
type AlertStatus string

const (
	AlertPending  AlertStatus = "pending"
	AlertResolved AlertStatus = "resolved"
)

func (s AlertStatus) Valid() bool {
	return s == AlertPending || s == AlertResolved
}

// Alert is a persisted rule hit. At most one exists per
// (WalletID, TransactionHash, RuleID).
type Alert struct {
	ID              uuid.UUID   `json:"id"`
	WalletID        uuid.UUID   `json:"wallet_id"`
	Chain           string      `json:"chain"`
	RuleID          uuid.UUID   `json:"rule_id"`
	RuleType        RuleType    `json:"rule_type"`
	TransactionHash string      `json:"transaction_hash"`
	RiskLevel       RiskLevel   `json:"risk_level"`
	Message         string      `json:"message"`
	Status          AlertStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	ResolvedAt      *time.Time  `json:"resolved_at,omitempty"`
}

func (a *Alert) IsResolved() bool {
	return a.Status == AlertResolved
}

// DedupKey is the natural key enforced by the alert store.
func (a *Alert) DedupKey() string {
	return a.WalletID.String() + "|" + a.TransactionHash + "|" + a.RuleID.String()
}
