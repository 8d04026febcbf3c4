package service

import (
	"fmt"
	"strconv"

	"wallet-risk-monitor/internal/core/domain"
)

// ruleFunc reports whether rule fires for tx and at which level.
type ruleFunc func(tx *domain.Transaction, counterparty string, view domain.HistoryView, rule *domain.AlertRule) (domain.RiskLevel, string, bool)

var ruleFuncs = map[domain.RuleType]ruleFunc{
	domain.RuleLargeTransfer:       largeTransfer,
	domain.RuleUnknownCounterparty: unknownCounterparty,
	domain.RuleFrequency:           frequency,
}

// Evaluate runs every enabled rule against tx and returns one pending alert
// candidate per rule that fires. view must exclude tx itself. It does no I/O
// and reads no clock; the caller stamps ids and creation times.
func Evaluate(tx *domain.Transaction, walletAddress string, view domain.HistoryView, rules []domain.AlertRule) []domain.Alert {
	counterparty := tx.Counterparty(walletAddress)

	var out []domain.Alert
	for i := range rules {
		rule := &rules[i]
		if !rule.Enabled {
			continue
		}
		fn, ok := ruleFuncs[rule.RuleType]
		if !ok {
			continue
		}
		level, msg, fired := fn(tx, counterparty, view, rule)
		if !fired {
			continue
		}
		out = append(out, domain.Alert{
			WalletID:        tx.WalletID,
			Chain:           tx.Chain,
			RuleID:          rule.ID,
			RuleType:        rule.RuleType,
			TransactionHash: tx.Hash,
			RiskLevel:       level,
			Message:         msg,
			Status:          domain.AlertPending,
		})
	}
	return out
}

func largeTransfer(tx *domain.Transaction, _ string, _ domain.HistoryView, rule *domain.AlertRule) (domain.RiskLevel, string, bool) {
	if tx.Amount <= rule.Threshold {
		return "", "", false
	}
	level := domain.RiskMedium
	if tx.Amount > 2*rule.Threshold {
		level = domain.RiskHigh
	}
	return level, fmt.Sprintf("Large transfer: %s exceeds threshold %s", formatAmount(tx.Amount), formatAmount(rule.Threshold)), true
}

func unknownCounterparty(_ *domain.Transaction, counterparty string, view domain.HistoryView, _ *domain.AlertRule) (domain.RiskLevel, string, bool) {
	if counterparty == "" || view.HasCounterparty(counterparty) {
		return "", "", false
	}
	return domain.RiskMedium, fmt.Sprintf("First interaction with counterparty %s", counterparty), true
}

// frequency counts prior transactions in (t - window, t] plus tx itself.
func frequency(tx *domain.Transaction, _ string, view domain.HistoryView, rule *domain.AlertRule) (domain.RiskLevel, string, bool) {
	window := rule.EffectiveWindow()
	count := view.CountSince(tx.Timestamp.Add(-window)) + 1
	if float64(count) <= rule.Threshold {
		return "", "", false
	}
	return domain.RiskMedium, fmt.Sprintf("High frequency: %d transactions within %s (threshold %s)",
		count, window, formatAmount(rule.Threshold)), true
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
