package ports

import (
	"context"
	"time"

	"wallet-risk-monitor/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRegistry is the read side of the wallet CRUD store.
type WalletRegistry interface {
	ListActive(ctx context.Context) ([]domain.Wallet, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
}

// RuleRegistry is the read side of the rule CRUD store. It is re-read at the
// start of every evaluation cycle.
type RuleRegistry interface {
	ListEnabled(ctx context.Context) ([]domain.AlertRule, error)
}

// CursorStore persists how far each (wallet, chain) has been processed.
// Get returns nil when nothing has been committed. Commit never moves a
// stored cursor backwards.
type CursorStore interface {
	Get(ctx context.Context, key domain.UnitKey) (*domain.Cursor, error)
	Commit(ctx context.Context, cursor *domain.Cursor) error
}

// TransactionRepository is the append-only transaction ledger.
type TransactionRepository interface {
	// Insert stores t unless (wallet_id, hash) exists. Reports whether a row was written.
	Insert(ctx context.Context, tx pgx.Tx, t *domain.Transaction) (bool, error)
	Get(ctx context.Context, walletID uuid.UUID, hash string) (*domain.Transaction, error)
	List(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, int64, error)
	// ListForWallet returns the whole ledger of a unit in chronological order.
	ListForWallet(ctx context.Context, key domain.UnitKey) ([]domain.Transaction, error)
	// History returns the scoring view of the ledger, with counterparties
	// resolved relative to walletAddress.
	History(ctx context.Context, key domain.UnitKey, walletAddress string) ([]domain.HistoryEntry, error)
	// LastPosition is the highest stored position for the unit, nil if none.
	LastPosition(ctx context.Context, key domain.UnitKey) (*domain.Position, error)
	Stats(ctx context.Context, filter StatsFilter) (*domain.Stats, error)
}

// AlertRepository stores alerts with at-most-once semantics per
// (wallet_id, transaction_hash, rule_id).
type AlertRepository interface {
	// InsertIfAbsent is a single atomic statement; on success a sets a.ID.
	InsertIfAbsent(ctx context.Context, tx pgx.Tx, a *domain.Alert) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Alert, error)
	List(ctx context.Context, filter AlertFilter) ([]domain.Alert, int64, error)
	// Resolve moves a pending alert to resolved. A resolved alert is returned
	// unchanged; nil means the id does not exist.
	Resolve(ctx context.Context, id uuid.UUID, at time.Time) (*domain.Alert, error)
	CountByRule(ctx context.Context, walletID *uuid.UUID) ([]domain.RuleHitCount, error)
}

// SkipRepository records raw transactions that failed normalization.
type SkipRepository interface {
	Record(ctx context.Context, tx pgx.Tx, s *domain.SkippedRecord) error
	List(ctx context.Context, filter SkipFilter) ([]domain.SkippedRecord, int64, error)
}

// DeliveryRepository records notification attempts.
type DeliveryRepository interface {
	Record(ctx context.Context, d *domain.NotificationDelivery) error
	ListByAlert(ctx context.Context, alertID uuid.UUID) ([]domain.NotificationDelivery, error)
}

// TransactionFilter holds filter + pagination for listing transactions.
type TransactionFilter struct {
	WalletID  *uuid.UUID
	Chain     string
	RiskLevel domain.RiskLevel
	Limit     int
	Offset    int
}

// AlertFilter holds filter + pagination for listing alerts.
type AlertFilter struct {
	WalletID  *uuid.UUID
	Chain     string
	RiskLevel domain.RiskLevel
	Status    domain.AlertStatus
	RuleType  domain.RuleType
	Limit     int
	Offset    int
}

// SkipFilter holds filter + pagination for listing skipped records.
type SkipFilter struct {
	WalletID *uuid.UUID
	Chain    string
	Limit    int
	Offset   int
}

// StatsFilter narrows ledger statistics.
type StatsFilter struct {
	WalletID *uuid.UUID
	Chain    string
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
