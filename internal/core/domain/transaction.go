package domain

import (
	"time"

	"github.com/google/uuid"
)

// RawTransaction is what a chain adapter returns, before normalization.
// Amount and Timestamp are kept as strings so a bad value is detectable
// instead of silently decoding to zero. Timestamp is unix seconds or RFC3339.
type RawTransaction struct {
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Amount          string `json:"amount"`
	Timestamp       string `json:"timestamp"`
	BlockNumber     int64  `json:"block_number"`
	TxIndex         int64  `json:"tx_index"`
	BlockHash       string `json:"block_hash,omitempty"`
	Status          string `json:"status,omitempty"`
	GasUsed         string `json:"gas_used,omitempty"`
	GasPrice        string `json:"gas_price,omitempty"`
	Input           string `json:"input,omitempty"`
	ContractAddress string `json:"contract_address,omitempty"`
	IsContract      *bool  `json:"is_contract,omitempty"`
}

func (r *RawTransaction) Position() Position {
	return Position{Block: r.BlockNumber, Index: r.TxIndex}
}

// Transaction is the canonical, chain-agnostic record. Immutable once stored;
// (WalletID, Hash) is unique.
type Transaction struct {
	Hash                  string    `json:"hash"`
	WalletID              uuid.UUID `json:"wallet_id"`
	Chain                 string    `json:"chain"`
	From                  string    `json:"from"`
	To                    string    `json:"to"`
	Amount                float64   `json:"amount"`
	Timestamp             time.Time `json:"timestamp"`
	BlockNumber           int64     `json:"block_number"`
	TxIndex               int64     `json:"tx_index"`
	BlockHash             string    `json:"block_hash,omitempty"`
	Status                string    `json:"status,omitempty"`
	GasUsed               string    `json:"gas_used,omitempty"`
	GasPrice              string    `json:"gas_price,omitempty"`
	MethodID              string    `json:"method_id,omitempty"`
	IsContractInteraction bool      `json:"is_contract_interaction"`
	ContractAddress       string    `json:"contract_address,omitempty"`
	AnomalyScore          float64   `json:"anomaly_score"`
	RiskLevel             RiskLevel `json:"risk_level"`
	CreatedAt             time.Time `json:"created_at"`
}

func (t *Transaction) Position() Position {
	return Position{Block: t.BlockNumber, Index: t.TxIndex}
}

// Counterparty is the other side of the transfer from the wallet's point of view.
func (t *Transaction) Counterparty(walletAddress string) string {
	if t.From == walletAddress {
		return t.To
	}
	return t.From
}

// IsAnomalous reports whether the score reached the medium band.
func (t *Transaction) IsAnomalous() bool {
	return t.RiskLevel.Rank() >= RiskMedium.Rank()
}

// SkippedRecord is a raw transaction that failed normalization. It is stored
// so that a cursor advancing past it never hides data loss.
type SkippedRecord struct {
	ID          uuid.UUID `json:"id"`
	WalletID    uuid.UUID `json:"wallet_id"`
	Chain       string    `json:"chain"`
	Hash        string    `json:"hash"`
	BlockNumber int64     `json:"block_number"`
	TxIndex     int64     `json:"tx_index"`
	Reason      string    `json:"reason"`
	Raw         []byte    `json:"raw"`
	CreatedAt   time.Time `json:"created_at"`
}
