package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"wallet-risk-monitor/internal/core/domain"
	"wallet-risk-monitor/pkg/address"
	"wallet-risk-monitor/pkg/apperror"
)

// ScoreWeights configures the anomaly score. The three weights sum to 1 so
// the score stays in [0, 1].
type ScoreWeights struct {
	TrailingWindow int
	Amount         float64
	Counterparty   float64
	Method         float64
}

// DefaultScoreWeights returns the stock weights.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{TrailingWindow: 20, Amount: 0.5, Counterparty: 0.3, Method: 0.2}
}

// Normalizer turns adapter output into canonical transactions and scores
// them against the wallet's prior history.
type Normalizer struct {
	addrs   *address.Normalizer
	weights ScoreWeights
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(addrs *address.Normalizer, weights ScoreWeights) *Normalizer {
	if weights.TrailingWindow <= 0 {
		weights.TrailingWindow = DefaultScoreWeights().TrailingWindow
	}
	return &Normalizer{addrs: addrs, weights: weights}
}

// Normalize validates raw and builds the canonical transaction. Missing or
// unparsable required fields yield a MalformedRecord naming the field;
// nothing is coerced to a default. history may be nil.
func (n *Normalizer) Normalize(wallet *domain.Wallet, raw *domain.RawTransaction, history *domain.WalletHistory) (*domain.Transaction, error) {
	hash := strings.TrimSpace(raw.Hash)
	if hash == "" {
		return nil, apperror.ErrMalformedRecord("hash", nil)
	}
	if raw.BlockNumber < 0 || raw.TxIndex < 0 {
		return nil, apperror.ErrMalformedRecord("position", nil)
	}

	from, err := n.requireAddress(wallet.Chain, "from", raw.From)
	if err != nil {
		return nil, err
	}
	to, err := n.requireAddress(wallet.Chain, "to", raw.To)
	if err != nil {
		return nil, err
	}

	amount, err := parseAmount(raw.Amount)
	if err != nil {
		return nil, apperror.ErrMalformedRecord("amount", err)
	}
	ts, err := parseTimestamp(raw.Timestamp)
	if err != nil {
		return nil, apperror.ErrMalformedRecord("timestamp", err)
	}

	tx := &domain.Transaction{
		Hash:            hash,
		WalletID:        wallet.ID,
		Chain:           wallet.Chain,
		From:            from,
		To:              to,
		Amount:          amount,
		Timestamp:       ts,
		BlockNumber:     raw.BlockNumber,
		TxIndex:         raw.TxIndex,
		BlockHash:       raw.BlockHash,
		Status:          raw.Status,
		GasUsed:         raw.GasUsed,
		GasPrice:        raw.GasPrice,
		MethodID:        methodID(raw.Input),
		ContractAddress: strings.TrimSpace(raw.ContractAddress),
	}
	if raw.IsContract != nil {
		tx.IsContractInteraction = *raw.IsContract
	} else {
		tx.IsContractInteraction = tx.ContractAddress != "" || tx.MethodID != ""
	}

	var view domain.HistoryView
	if history != nil {
		view = history.Before(tx)
	}
	tx.AnomalyScore = n.Score(tx, tx.Counterparty(n.selfAddress(wallet)), view)
	tx.RiskLevel = domain.BandFor(tx.AnomalyScore)
	return tx, nil
}

// Canonical returns a copy of wallet with its address in the form
// transaction endpoints are normalized to, so the wallet's own side of a
// transfer compares equal however the registry spelled it. An address that
// does not parse for the wallet's chain is a permanent unit failure.
func (n *Normalizer) Canonical(wallet *domain.Wallet) (*domain.Wallet, error) {
	addr, err := n.addrs.Normalize(wallet.Chain, wallet.Address)
	if err != nil {
		return nil, apperror.ErrPermanentUnitFailure(fmt.Sprintf("wallet address: %v", err))
	}
	w := *wallet
	w.Address = addr
	return &w, nil
}

func (n *Normalizer) selfAddress(wallet *domain.Wallet) string {
	if addr, err := n.addrs.Normalize(wallet.Chain, wallet.Address); err == nil {
		return addr
	}
	return strings.TrimSpace(wallet.Address)
}

// Score combines three signals against the prior history:
//
//	amount:       Amount weight * clamp((amount/avg - 1) / 2, 0, 1)
//	counterparty: Counterparty weight if never seen before
//	method:       Method weight if the call selector was never used before
//
// avg is the mean of the last TrailingWindow prior amounts. The result is
// rounded to 4 decimals so equal inputs always produce equal scores.
func (n *Normalizer) Score(tx *domain.Transaction, counterparty string, view domain.HistoryView) float64 {
	var amountPart float64
	if avg, ok := view.TrailingAverage(n.weights.TrailingWindow); ok {
		switch {
		case avg > 0:
			amountPart = clamp((tx.Amount/avg-1)/2, 0, 1)
		case tx.Amount > 0:
			amountPart = 1
		}
	}

	score := n.weights.Amount * amountPart
	if counterparty != "" && !view.HasCounterparty(counterparty) {
		score += n.weights.Counterparty
	}
	if tx.MethodID != "" && !view.HasMethod(tx.MethodID) {
		score += n.weights.Method
	}
	return math.Round(clamp(score, 0, 1)*10000) / 10000
}

func (n *Normalizer) requireAddress(chain, field, value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", apperror.ErrMalformedRecord(field, nil)
	}
	addr, err := n.addrs.Normalize(chain, value)
	if err != nil {
		return "", apperror.ErrMalformedRecord(field, err)
	}
	return addr, nil
}

func parseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, strconv.ErrRange
	}
	return v, nil
}

// parseTimestamp accepts unix seconds or RFC3339.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, strconv.ErrSyntax
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		if secs <= 0 {
			return time.Time{}, strconv.ErrRange
		}
		return time.Unix(secs, 0).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

// methodID is the 4-byte call selector ("0x" + 8 hex chars) of EVM input data.
func methodID(input string) string {
	input = strings.TrimSpace(input)
	if len(input) < 10 || !strings.HasPrefix(input, "0x") {
		return ""
	}
	return strings.ToLower(input[:10])
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
