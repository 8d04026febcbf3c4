package handler

import (
	"net/http"

	"wallet-risk-monitor/internal/adapter/http/middleware"
	"wallet-risk-monitor/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AlertSvc           ports.AlertService
	QuerySvc           ports.QueryService
	Sync               ports.SyncController
	RateLimitStore     ports.RateLimitStore // nil = rate limiting disabled
	RateLimitPerMinute int
	HealthCheckers     []ports.HealthChecker
	MetricsHandler     http.Handler // nil = /metrics not served
	Docs               *DocsHandler // nil = /swagger not served
	Mode               string
	Logger             zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Mode != "" {
		gin.SetMode(deps.Mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit
	r.Use(middleware.AuditLog(deps.Logger))

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	if deps.Docs != nil {
		swagger := r.Group("/swagger")
		{
			swagger.GET("", deps.Docs.UI)
			swagger.GET("/spec", deps.Docs.Spec)
		}
	}

	rules := middleware.DefaultRateLimitRules(deps.RateLimitPerMinute)

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	txHandler := NewTransactionHandler(deps.QuerySvc)
	transactions := v1.Group("/transactions", rl("query"))
	{
		transactions.GET("", txHandler.List)
		transactions.GET("/:wallet_id/:hash", txHandler.Get)
	}
	v1.GET("/skips", rl("query"), txHandler.ListSkips)
	v1.GET("/stats/summary", rl("query"), txHandler.Summary)

	alertHandler := NewAlertHandler(deps.AlertSvc)
	alerts := v1.Group("/alerts")
	{
		alerts.GET("", rl("query"), alertHandler.List)
		alerts.GET("/stats", rl("query"), alertHandler.Stats)
		alerts.GET("/:id", rl("query"), alertHandler.Get)
		alerts.POST("/:id/resolve", rl("query"), alertHandler.Resolve)
	}

	syncHandler := NewSyncHandler(deps.Sync)
	wallets := v1.Group("/wallets")
	{
		wallets.POST("/:id/sync", rl("trigger"), syncHandler.TriggerSync)
		wallets.POST("/:id/analyze", rl("trigger"), syncHandler.TriggerAnalysis)
	}
	v1.GET("/sync/units", rl("query"), syncHandler.Units)

	return r
}
