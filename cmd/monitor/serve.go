package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpHandler "wallet-risk-monitor/internal/adapter/http/handler"

	"github.com/spf13/cobra"
)

const openAPIPath = "docs/api/openapi.yaml"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the sync loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Wallet Risk Monitor")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	a.history.Start()
	defer a.history.Stop()
	a.dispatcher.Start()
	// Close drains queued alerts, so it runs before the stores go away.
	defer a.dispatcher.Close()

	var docs *httpHandler.DocsHandler
	if specBytes, err := os.ReadFile(openAPIPath); err == nil {
		docs = httpHandler.NewDocsHandler(specBytes, openAPIPath)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AlertSvc:           a.alertSvc,
		QuerySvc:           a.querySvc,
		Sync:               a.orchestrator,
		RateLimitStore:     a.rateLimitStore,
		RateLimitPerMinute: cfg.RateLimit.Limit,
		HealthCheckers:     a.healthCheckers,
		MetricsHandler:     a.metricsHandler,
		Docs:               docs,
		Mode:               cfg.Server.Mode,
		Logger:             log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := a.orchestrator.Run(ctx); err != nil {
			errCh <- fmt.Errorf("orchestrator: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server...")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("Fatal error, shutting down")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
	return runErr
}
