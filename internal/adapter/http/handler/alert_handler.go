package handler

import (
	"wallet-risk-monitor/internal/adapter/http/dto"
	"wallet-risk-monitor/internal/core/ports"
	"wallet-risk-monitor/pkg/apperror"
	"wallet-risk-monitor/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AlertHandler handles alert listing and lifecycle endpoints.
type AlertHandler struct {
	alertSvc ports.AlertService
}

// NewAlertHandler creates a new AlertHandler.
func NewAlertHandler(alertSvc ports.AlertService) *AlertHandler {
	return &AlertHandler{alertSvc: alertSvc}
}

// List handles GET /api/v1/alerts.
func (h *AlertHandler) List(c *gin.Context) {
	var q dto.AlertQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&q)

	filter := q.Filter()
	alerts, total, err := h.alertSvc.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paged(c, alerts, total, filter.Limit, filter.Offset)
}

// Get handles GET /api/v1/alerts/:id.
func (h *AlertHandler) Get(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	alert, err := h.alertSvc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, alert)
}

// Resolve handles POST /api/v1/alerts/:id/resolve. Resolving an already
// resolved alert returns it unchanged.
func (h *AlertHandler) Resolve(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	alert, err := h.alertSvc.Resolve(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, alert)
}

// Stats handles GET /api/v1/alerts/stats.
func (h *AlertHandler) Stats(c *gin.Context) {
	var q dto.ScopeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	stats, err := h.alertSvc.RuleStats(c.Request.Context(), q.WalletIDPtr())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, stats)
}

// pathUUID parses a UUID path parameter, writing a validation error when it
// is malformed.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Error(c, apperror.Validation("Invalid "+name+": must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}
