package handler

import (
	"encoding/json"
	"strings"
	"time"

	"wallet-risk-monitor/internal/adapter/http/dto"
	"wallet-risk-monitor/internal/core/domain"
	"wallet-risk-monitor/internal/core/ports"
	"wallet-risk-monitor/pkg/apperror"
	"wallet-risk-monitor/pkg/response"

	"github.com/gin-gonic/gin"
)

// TransactionHandler serves the read side of the ledger: transactions,
// skipped records and summary statistics.
type TransactionHandler struct {
	querySvc ports.QueryService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(querySvc ports.QueryService) *TransactionHandler {
	return &TransactionHandler{querySvc: querySvc}
}

// List handles GET /api/v1/transactions.
func (h *TransactionHandler) List(c *gin.Context) {
	var q dto.TransactionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&q)

	filter := q.Filter()
	txs, total, err := h.querySvc.ListTransactions(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paged(c, txs, total, filter.Limit, filter.Offset)
}

// Get handles GET /api/v1/transactions/:wallet_id/:hash.
func (h *TransactionHandler) Get(c *gin.Context) {
	walletID, ok := pathUUID(c, "wallet_id")
	if !ok {
		return
	}
	hash := strings.TrimSpace(c.Param("hash"))
	if hash == "" {
		response.Error(c, apperror.Validation("hash is required"))
		return
	}

	tx, err := h.querySvc.GetTransaction(c.Request.Context(), walletID, hash)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, tx)
}

// ListSkips handles GET /api/v1/skips.
func (h *TransactionHandler) ListSkips(c *gin.Context) {
	var q dto.SkipQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&q)

	filter := q.Filter()
	skips, total, err := h.querySvc.ListSkips(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.SkippedRecordResponse, 0, len(skips))
	for i := range skips {
		out = append(out, toSkippedRecordResponse(&skips[i]))
	}
	response.Paged(c, out, total, filter.Limit, filter.Offset)
}

// Summary handles GET /api/v1/stats/summary.
func (h *TransactionHandler) Summary(c *gin.Context) {
	var q dto.ScopeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&q)

	stats, err := h.querySvc.Summary(c.Request.Context(), q.StatsFilter())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, stats)
}

func toSkippedRecordResponse(s *domain.SkippedRecord) dto.SkippedRecordResponse {
	resp := dto.SkippedRecordResponse{
		ID:          s.ID.String(),
		WalletID:    s.WalletID.String(),
		Chain:       s.Chain,
		Hash:        s.Hash,
		BlockNumber: s.BlockNumber,
		TxIndex:     s.TxIndex,
		Reason:      s.Reason,
		CreatedAt:   s.CreatedAt.UTC().Format(time.RFC3339),
	}
	// Raw is stored verbatim; fall back to a string when it is not JSON.
	if json.Valid(s.Raw) {
		resp.Raw = json.RawMessage(s.Raw)
	} else if len(s.Raw) > 0 {
		resp.Raw = string(s.Raw)
	}
	return resp
}
