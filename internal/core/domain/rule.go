package domain

import (
	"time"

	"github.com/google/uuid"
)

// RuleType tags which evaluation strategy an AlertRule uses.
type RuleType string

const (
	RuleLargeTransfer       RuleType = "large_transfer"
	RuleUnknownCounterparty RuleType = "unknown_counterparty"
	RuleFrequency           RuleType = "frequency"
)

// DefaultFrequencyWindow applies to frequency rules without an explicit window.
const DefaultFrequencyWindow = time.Hour

func (t RuleType) Valid() bool {
	switch t {
	case RuleLargeTransfer, RuleUnknownCounterparty, RuleFrequency:
		return true
	}
	return false
}

// AlertRule is read-only configuration owned by the rule registry.
type AlertRule struct {
	ID        uuid.UUID     `json:"id"`
	Name      string        `json:"name"`
	RuleType  RuleType      `json:"rule_type"`
	Threshold float64       `json:"threshold"`
	Window    time.Duration `json:"window"`
	Enabled   bool          `json:"enabled"`
	CreatedAt time.Time     `json:"created_at"`
}

// EffectiveWindow returns the frequency window, defaulting to one hour.
func (r *AlertRule) EffectiveWindow() time.Duration {
	if r.Window <= 0 {
		return DefaultFrequencyWindow
	}
	return r.Window
}
