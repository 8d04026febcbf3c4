package ports

import (
	"context"
	"time"

	"wallet-risk-monitor/internal/core/domain"

	"github.com/google/uuid"
)

// --- External capabilities ---

// ChainAdapter fetches transactions for a wallet strictly after cursor
// (nil cursor means from the beginning). Results are ordered by position.
// Errors are apperror ADP_001 (transient) or ADP_002 (cursor rejected).
type ChainAdapter interface {
	Fetch(ctx context.Context, wallet *domain.Wallet, cursor *domain.Cursor) (*FetchResult, error)
}

// FetchResult is one page of adapter output.
type FetchResult struct {
	Transactions []domain.RawTransaction
	// Next is where the following fetch resumes; nil when the page was empty.
	Next *domain.Position
}

// NotificationSink delivers a newly created alert. Failures are reported to
// the caller but never affect persistence.
type NotificationSink interface {
	Name() string
	Send(ctx context.Context, alert *domain.Alert) error
}

// AlertNotifier queues alerts for asynchronous delivery without blocking.
type AlertNotifier interface {
	Enqueue(alert domain.Alert) bool
}

// --- Coordination ---

// LeaseManager hands out per-unit mutual exclusion that holds across
// processes when backed by a shared store.
type LeaseManager interface {
	// TryAcquire returns ok=false without error when key is already leased.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error)
}

// Lease is a held mutual-exclusion token.
type Lease interface {
	Key() string
	// Held reports whether this holder still owns the lease.
	Held(ctx context.Context) (bool, error)
	// Release gives the lease up if still owned. Safe to call twice.
	Release(ctx context.Context) error
}

// RateLimitStore manages fixed-window rate limiting counters.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// --- Observability ---

// SyncMetrics receives engine counters. Implementations must be safe for
// concurrent use.
type SyncMetrics interface {
	ObserveBatch(chain string, result domain.SyncResult, took time.Duration)
	RecordSkip(chain, reason string)
	RecordAdapterError(chain, code string)
	RecordAlert(chain string, rule domain.RuleType, level domain.RiskLevel)
	SetUnitState(key domain.UnitKey, state domain.UnitState)
	RecordNotification(sink string, ok bool)
	RecordNotificationDropped()
}

// --- Service Ports (Business Logic) ---

// AlertService is the alert query and lifecycle surface.
type AlertService interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Alert, error)
	List(ctx context.Context, filter AlertFilter) ([]domain.Alert, int64, error)
	Resolve(ctx context.Context, id uuid.UUID) (*domain.Alert, error)
	RuleStats(ctx context.Context, walletID *uuid.UUID) ([]domain.RuleHitCount, error)
}

// QueryService is the read side over the transaction ledger.
type QueryService interface {
	GetTransaction(ctx context.Context, walletID uuid.UUID, hash string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, int64, error)
	ListSkips(ctx context.Context, filter SkipFilter) ([]domain.SkippedRecord, int64, error)
	Summary(ctx context.Context, filter StatsFilter) (*domain.Stats, error)
}

// SyncController exposes manual triggers and unit status. Triggers share the
// per-unit lease with scheduled runs.
type SyncController interface {
	TriggerSync(ctx context.Context, walletID uuid.UUID) (*domain.SyncResult, error)
	TriggerAnalysis(ctx context.Context, walletID uuid.UUID) (*domain.SyncResult, error)
	Units() []domain.UnitStatus
}
