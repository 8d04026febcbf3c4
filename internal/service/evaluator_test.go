package service

import (
	"testing"
	"time"

	"wallet-risk-monitor/internal/core/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalTx(hash string, amount float64, from string, ts time.Time, block int64) *domain.Transaction {
	return &domain.Transaction{
		Hash:        hash,
		WalletID:    uuid.New(),
		Chain:       "ethereum",
		From:        from,
		To:          testWalletAddr,
		Amount:      amount,
		Timestamp:   ts,
		BlockNumber: block,
	}
}

func TestEvaluate_LargeTransferLevels(t *testing.T) {
	rule := largeTransferRule(1.0)
	empty := domain.NewWalletHistory(uuid.New(), "ethereum", nil)

	tests := []struct {
		amount float64
		fires  bool
		level  domain.RiskLevel
	}{
		{1.0, false, ""},
		{1.5, true, domain.RiskMedium},
		{2.0, true, domain.RiskMedium},
		{2.5, true, domain.RiskHigh},
	}
	for _, tt := range tests {
		tx := evalTx("0x1", tt.amount, peer(1), baseTime, 1)
		alerts := Evaluate(tx, testWalletAddr, empty.Before(tx), []domain.AlertRule{rule})
		if !tt.fires {
			assert.Empty(t, alerts, "amount %v", tt.amount)
			continue
		}
		require.Len(t, alerts, 1, "amount %v", tt.amount)
		assert.Equal(t, tt.level, alerts[0].RiskLevel)
		assert.Equal(t, rule.ID, alerts[0].RuleID)
		assert.Equal(t, domain.AlertPending, alerts[0].Status)
		assert.Contains(t, alerts[0].Message, "exceeds threshold 1")
	}
}

func TestEvaluate_UnknownCounterparty(t *testing.T) {
	rule := unknownCounterpartyRule()
	walletID := uuid.New()
	history := domain.NewWalletHistory(walletID, "ethereum", []domain.HistoryEntry{{
		Hash: "0xold", Counterparty: peer(1), Amount: 1, Timestamp: baseTime, BlockNumber: 1,
	}})

	known := evalTx("0x2", 1, peer(1), baseTime.Add(time.Minute), 2)
	assert.Empty(t, Evaluate(known, testWalletAddr, history.Before(known), []domain.AlertRule{rule}))

	fresh := evalTx("0x3", 1, peer(2), baseTime.Add(time.Minute), 3)
	alerts := Evaluate(fresh, testWalletAddr, history.Before(fresh), []domain.AlertRule{rule})
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.RiskMedium, alerts[0].RiskLevel)
	assert.Contains(t, alerts[0].Message, peer(2))
}

func TestEvaluate_CounterpartySeenLaterDoesNotCount(t *testing.T) {
	rule := unknownCounterpartyRule()
	history := domain.NewWalletHistory(uuid.New(), "ethereum", []domain.HistoryEntry{{
		Hash: "0xlater", Counterparty: peer(1), Amount: 1, Timestamp: baseTime.Add(time.Hour), BlockNumber: 9,
	}})

	tx := evalTx("0xearly", 1, peer(1), baseTime, 1)
	alerts := Evaluate(tx, testWalletAddr, history.Before(tx), []domain.AlertRule{rule})
	assert.Len(t, alerts, 1)
}

func TestEvaluate_FrequencyBoundary(t *testing.T) {
	rule := frequencyRule(3, 10*time.Minute)
	walletID := uuid.New()

	var entries []domain.HistoryEntry
	// Exactly at t - window is outside; the three after it are inside.
	for i, offset := range []time.Duration{-10 * time.Minute, -9 * time.Minute, -5 * time.Minute, -time.Minute} {
		entries = append(entries, domain.HistoryEntry{
			Hash: "0xh" + string(rune('a'+i)), Counterparty: peer(1), Amount: 1,
			Timestamp: baseTime.Add(offset), BlockNumber: int64(i + 1),
		})
	}
	history := domain.NewWalletHistory(walletID, "ethereum", entries)

	tx := evalTx("0xnow", 1, peer(1), baseTime, 10)
	alerts := Evaluate(tx, testWalletAddr, history.Before(tx), []domain.AlertRule{rule})
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Message, "4 transactions")

	rule.Threshold = 4
	assert.Empty(t, Evaluate(tx, testWalletAddr, history.Before(tx), []domain.AlertRule{rule}))
}

func TestEvaluate_FrequencyDefaultWindow(t *testing.T) {
	rule := frequencyRule(1, 0)
	history := domain.NewWalletHistory(uuid.New(), "ethereum", []domain.HistoryEntry{{
		Hash: "0xold", Counterparty: peer(1), Amount: 1, Timestamp: baseTime.Add(-59 * time.Minute), BlockNumber: 1,
	}})

	tx := evalTx("0xnow", 1, peer(1), baseTime, 2)
	alerts := Evaluate(tx, testWalletAddr, history.Before(tx), []domain.AlertRule{rule})
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Message, "1h0m0s")
}

func TestEvaluate_SkipsDisabledAndUnknownRules(t *testing.T) {
	disabled := largeTransferRule(0)
	disabled.Enabled = false
	unknown := domain.AlertRule{ID: uuid.New(), RuleType: "velocity", Threshold: 0, Enabled: true}

	tx := evalTx("0x1", 10, peer(1), baseTime, 1)
	alerts := Evaluate(tx, testWalletAddr, domain.HistoryView{}, []domain.AlertRule{disabled, unknown})
	assert.Empty(t, alerts)
}

func TestEvaluate_OneCandidatePerFiringRule(t *testing.T) {
	rules := []domain.AlertRule{largeTransferRule(1.0), unknownCounterpartyRule(), frequencyRule(5, time.Hour)}
	tx := evalTx("0x1", 1.5, peer(7), baseTime, 1)

	alerts := Evaluate(tx, testWalletAddr, domain.HistoryView{}, rules)
	require.Len(t, alerts, 2)
	for _, a := range alerts {
		assert.Equal(t, tx.Hash, a.TransactionHash)
		assert.Equal(t, tx.WalletID, a.WalletID)
		assert.Equal(t, uuid.Nil, a.ID, "ids are assigned on insert")
		assert.True(t, a.CreatedAt.IsZero())
	}
}
