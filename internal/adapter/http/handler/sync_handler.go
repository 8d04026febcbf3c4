package handler

import (
	"wallet-risk-monitor/internal/adapter/http/dto"
	"wallet-risk-monitor/internal/core/ports"
	"wallet-risk-monitor/pkg/response"

	"github.com/gin-gonic/gin"
)

// SyncHandler exposes manual triggers and the unit status snapshot.
type SyncHandler struct {
	sync ports.SyncController
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(sync ports.SyncController) *SyncHandler {
	return &SyncHandler{sync: sync}
}

// TriggerSync handles POST /api/v1/wallets/:id/sync. The run completes
// before the response is written.
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	walletID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	result, err := h.sync.TriggerSync(c.Request.Context(), walletID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, result)
}

// TriggerAnalysis handles POST /api/v1/wallets/:id/analyze.
func (h *SyncHandler) TriggerAnalysis(c *gin.Context) {
	walletID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	result, err := h.sync.TriggerAnalysis(c.Request.Context(), walletID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, result)
}

// Units handles GET /api/v1/sync/units.
func (h *SyncHandler) Units(c *gin.Context) {
	units := h.sync.Units()
	response.OK(c, dto.UnitListResponse{Units: units, Total: len(units)})
}
