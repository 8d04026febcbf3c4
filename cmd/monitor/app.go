package main

import (
	"context"
	"fmt"
	"net/http"

	"wallet-risk-monitor/config"
	"wallet-risk-monitor/internal/adapter/chain"
	"wallet-risk-monitor/internal/adapter/metrics"
	"wallet-risk-monitor/internal/adapter/notify"
	pebbleStorage "wallet-risk-monitor/internal/adapter/storage/pebble"
	pgStorage "wallet-risk-monitor/internal/adapter/storage/postgres"
	redisStorage "wallet-risk-monitor/internal/adapter/storage/redis"
	"wallet-risk-monitor/internal/core/ports"
	"wallet-risk-monitor/internal/service"
	"wallet-risk-monitor/pkg/address"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app is the fully wired engine. close releases everything in reverse
// order of construction.
type app struct {
	pool           *pgxpool.Pool
	rdb            *goredis.Client
	orchestrator   *service.Orchestrator
	dispatcher     *notify.Dispatcher
	history        *service.HistoryCache
	alertSvc       ports.AlertService
	querySvc       ports.QueryService
	rateLimitStore ports.RateLimitStore
	healthCheckers []ports.HealthChecker
	metricsHandler http.Handler

	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// connectPostgres opens the pool. Used on its own by migrate and the
// registry commands.
func connectPostgres(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	log.Info().Msg("PostgreSQL connected")
	return pool, nil
}

// buildApp wires every adapter from cfg.
func buildApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	pool, err := connectPostgres(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)
	a.healthCheckers = append(a.healthCheckers, pgStorage.NewHealthCheck(pool))

	// Repositories
	walletRepo := pgStorage.NewWalletRepo(pool)
	ruleRepo := pgStorage.NewRuleRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	alertRepo := pgStorage.NewAlertRepo(pool)
	skipRepo := pgStorage.NewSkipRepo(pool)
	deliveryRepo := pgStorage.NewDeliveryRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Redis is optional: without it leases are process-local and rate
	// limiting is off.
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("connecting to Redis: %w", err)
		}
		a.rdb = rdb
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.healthCheckers = append(a.healthCheckers, redisStorage.NewHealthCheck(rdb))
		log.Info().Msg("Redis connected")

		if cfg.RateLimit.Enabled {
			a.rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		}
	}

	var leases ports.LeaseManager
	switch cfg.Lease.Backend {
	case "redis":
		leases = redisStorage.NewLeaseStore(a.rdb, cfg.Lease.Prefix)
	default:
		leases = service.NewLocalLeaseManager()
	}

	var cursors ports.CursorStore
	switch cfg.Cursor.Backend {
	case "pebble":
		store, err := pebbleStorage.NewCursorStore(cfg.Cursor.PebbleDir)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := store.Close(); err != nil {
				log.Error().Err(err).Msg("closing cursor store")
			}
		})
		cursors = store
	default:
		cursors = pgStorage.NewCursorRepo(pool)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	var syncMetrics ports.SyncMetrics = metrics.Nop{}
	if cfg.Metrics.Enabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		syncMetrics = metrics.New(cfg.Metrics.Namespace, reg)
		a.metricsHandler = metrics.Handler(reg)
	}

	// Chain adapters
	adapters := chain.NewRouter()
	for _, ch := range cfg.Chains {
		client := &http.Client{Timeout: ch.Timeout}
		adapters.Register(ch.Name, chain.NewHTTPAdapter(ch.Name, ch.Endpoint, ch.PageSize, ch.Timeout, client))
	}
	log.Info().Strs("chains", adapters.Chains()).Msg("chain adapters registered")

	// Notification sinks
	var sinks []ports.NotificationSink
	if cfg.Notify.Log {
		sinks = append(sinks, notify.NewLogSink(log))
	}
	if cfg.Notify.Webhook.URL != "" {
		client := &http.Client{Timeout: cfg.Notify.Webhook.Timeout}
		sinks = append(sinks, notify.NewWebhookSink(cfg.Notify.Webhook.URL, cfg.Notify.Webhook.Secret, client, cfg.Notify.Webhook.Timeout, deliveryRepo, log))
	}
	if len(cfg.Notify.Kafka.Brokers) > 0 {
		kcl, err := notify.NewKafkaClient(cfg.Notify.Kafka.Brokers, cfg.Notify.Kafka.Topic, cfg.Metrics.Namespace, reg, reg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, kcl.Close)
		sinks = append(sinks, notify.NewKafkaSink(kcl, cfg.Notify.Kafka.Topic))
	}
	a.dispatcher = notify.NewDispatcher(
		notify.NewFanout(cfg.Notify.SendTimeout, syncMetrics, sinks...),
		cfg.Notify.QueueSize,
		cfg.Notify.Workers,
		syncMetrics,
		log,
	)

	// Services
	normalizer := service.NewNormalizer(address.NewNormalizer(cfg.Sync.BitcoinNetwork), service.ScoreWeights{
		TrailingWindow: cfg.Scoring.TrailingWindow,
		Amount:         cfg.Scoring.AmountWeight,
		Counterparty:   cfg.Scoring.CounterpartyWeight,
		Method:         cfg.Scoring.MethodWeight,
	})
	a.history = service.NewHistoryCache(txRepo, cfg.Sync.HistoryTTL)
	a.alertSvc = service.NewAlertService(alertRepo, log)
	a.querySvc = service.NewQueryService(txRepo, skipRepo)

	a.orchestrator = service.NewOrchestrator(service.OrchestratorConfig{
		Interval:        cfg.Sync.Interval,
		Workers:         cfg.Sync.Workers,
		MaxAdapterCalls: cfg.Sync.MaxAdapterCalls,
		FetchTimeout:    cfg.Sync.FetchTimeout,
		UnitTimeout:     cfg.Sync.UnitTimeout,
		LeaseTTL:        cfg.Lease.TTL,
		RetryAttempts:   cfg.Sync.RetryAttempts,
		RetryBaseDelay:  cfg.Sync.RetryBaseDelay,
		MaxBackoff:      cfg.Sync.MaxBackoff,
	}, service.OrchestratorDeps{
		Wallets:      walletRepo,
		Rules:        ruleRepo,
		Cursors:      cursors,
		Transactions: txRepo,
		Alerts:       alertRepo,
		Skips:        skipRepo,
		Transactor:   transactor,
		Adapter:      adapters,
		Leases:       leases,
		Notifier:     a.dispatcher,
		Metrics:      syncMetrics,
		Normalizer:   normalizer,
		History:      a.history,
	}, log.With().Str("component", "orchestrator").Logger())
	a.healthCheckers = append(a.healthCheckers, a.orchestrator)

	ok = true
	return a, nil
}
