package dto

import (
	"wallet-risk-monitor/internal/core/domain"
	"wallet-risk-monitor/internal/core/ports"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// PageQuery is the limit/offset pair shared by list endpoints.
type PageQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=0"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// Normalize applies the default limit and caps it at MaxLimit.
func (p PageQuery) Normalize() (limit, offset int) {
	limit = p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return limit, p.Offset
}

// TransactionQuery filters GET /api/v1/transactions.
type TransactionQuery struct {
	PageQuery
	WalletID  string `form:"wallet_id" binding:"omitempty,uuid"`
	Chain     string `form:"chain" binding:"omitempty,chain_name" sanitize:"lower"`
	RiskLevel string `form:"risk_level" binding:"omitempty,risk_level"`
}

// Filter converts the query into a repository filter.
func (q *TransactionQuery) Filter() ports.TransactionFilter {
	limit, offset := q.Normalize()
	return ports.TransactionFilter{
		WalletID:  parseOptionalUUID(q.WalletID),
		Chain:     q.Chain,
		RiskLevel: domain.RiskLevel(q.RiskLevel),
		Limit:     limit,
		Offset:    offset,
	}
}

// AlertQuery filters GET /api/v1/alerts.
type AlertQuery struct {
	PageQuery
	WalletID  string `form:"wallet_id" binding:"omitempty,uuid"`
	Chain     string `form:"chain" binding:"omitempty,chain_name" sanitize:"lower"`
	RiskLevel string `form:"risk_level" binding:"omitempty,risk_level"`
	Status    string `form:"status" binding:"omitempty,oneof=pending resolved"`
	RuleType  string `form:"rule_type" binding:"omitempty,rule_type"`
}

func (q *AlertQuery) Filter() ports.AlertFilter {
	limit, offset := q.Normalize()
	return ports.AlertFilter{
		WalletID:  parseOptionalUUID(q.WalletID),
		Chain:     q.Chain,
		RiskLevel: domain.RiskLevel(q.RiskLevel),
		Status:    domain.AlertStatus(q.Status),
		RuleType:  domain.RuleType(q.RuleType),
		Limit:     limit,
		Offset:    offset,
	}
}

// SkipQuery filters GET /api/v1/skips.
type SkipQuery struct {
	PageQuery
	WalletID string `form:"wallet_id" binding:"omitempty,uuid"`
	Chain    string `form:"chain" binding:"omitempty,chain_name" sanitize:"lower"`
}

func (q *SkipQuery) Filter() ports.SkipFilter {
	limit, offset := q.Normalize()
	return ports.SkipFilter{
		WalletID: parseOptionalUUID(q.WalletID),
		Chain:    q.Chain,
		Limit:    limit,
		Offset:   offset,
	}
}

// ScopeQuery narrows summary and rule statistics.
type ScopeQuery struct {
	WalletID string `form:"wallet_id" binding:"omitempty,uuid"`
	Chain    string `form:"chain" binding:"omitempty,chain_name" sanitize:"lower"`
}

func (q *ScopeQuery) StatsFilter() ports.StatsFilter {
	return ports.StatsFilter{WalletID: parseOptionalUUID(q.WalletID), Chain: q.Chain}
}

// WalletIDPtr returns the parsed wallet id, nil when absent.
func (q *ScopeQuery) WalletIDPtr() *uuid.UUID {
	return parseOptionalUUID(q.WalletID)
}

// SkippedRecordResponse renders a skip with its raw payload as JSON rather
// than base64.
type SkippedRecordResponse struct {
	ID          string `json:"id"`
	WalletID    string `json:"wallet_id"`
	Chain       string `json:"chain"`
	Hash        string `json:"hash"`
	BlockNumber int64  `json:"block_number"`
	TxIndex     int64  `json:"tx_index"`
	Reason      string `json:"reason"`
	Raw         any    `json:"raw"`
	CreatedAt   string `json:"created_at"`
}

// UnitListResponse wraps the sync unit snapshot.
type UnitListResponse struct {
	Units []domain.UnitStatus `json:"units"`
	Total int                 `json:"total"`
}

func parseOptionalUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}
