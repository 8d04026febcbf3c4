package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Operator actions recorded by AuditLog.
const (
	ActionResolveAlert = "alert.resolve"
	ActionTriggerSync  = "wallet.sync"
	ActionAnalyze      = "wallet.analyze"
)

// AuditLog records successful operator write actions (resolving alerts,
// manual triggers) to a dedicated structured log stream.
func AuditLog(log zerolog.Logger) gin.HandlerFunc {
	audit := log.With().Str("stream", "audit").Logger()
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		if c.Request.Method != http.MethodPost {
			return
		}

		action, resourceType := mapPathToAction(c.FullPath())
		if action == "" {
			return
		}

		resourceID := c.Param("id")
		audit.Info().
			Str("action", action).
			Str("resource_type", resourceType).
			Str("resource_id", resourceID).
			Str("request_id", c.GetString(CtxRequestID)).
			Str("client_ip", c.ClientIP()).
			Int("status", c.Writer.Status()).
			Msg("operator action")
	}
}

func mapPathToAction(route string) (string, string) {
	switch {
	case route == "/api/v1/alerts/:id/resolve":
		return ActionResolveAlert, "alert"
	case strings.HasPrefix(route, "/api/v1/wallets/:id/sync"):
		return ActionTriggerSync, "wallet"
	case strings.HasPrefix(route, "/api/v1/wallets/:id/analyze"):
		return ActionAnalyze, "wallet"
	}
	return "", ""
}
