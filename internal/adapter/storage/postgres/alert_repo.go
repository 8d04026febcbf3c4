package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-risk-monitor/internal/core/domain"
	"wallet-risk-monitor/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const alertColumns = `id, wallet_id, chain, rule_id, rule_type, transaction_hash, risk_level,
	message, status, created_at, resolved_at`

// AlertRepo implements ports.AlertRepository.
type AlertRepo struct {
	pool Pool
}

// NewAlertRepo creates a new AlertRepo.
func NewAlertRepo(pool Pool) *AlertRepo {
	return &AlertRepo{pool: pool}
}

// InsertIfAbsent writes the alert unless one already exists for the same
// (wallet_id, transaction_hash, rule_id). The check and the write are one
// statement, so concurrent evaluations of the same transaction cannot both
// insert. On success a.ID is set.
func (r *AlertRepo) InsertIfAbsent(ctx context.Context, tx pgx.Tx, a *domain.Alert) (bool, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	query := `INSERT INTO alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (wallet_id, transaction_hash, rule_id) DO NOTHING`

	tag, err := tx.Exec(ctx, query,
		id, a.WalletID, a.Chain, a.RuleID, a.RuleType, a.TransactionHash, a.RiskLevel,
		a.Message, a.Status, a.CreatedAt, a.ResolvedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	a.ID = id
	return true, nil
}

// Get fetches an alert by id.
func (r *AlertRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Alert, error) {
	a, err := scanAlert(r.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

// Resolve transitions pending -> resolved. An already resolved alert is
// returned as stored, so resolved_at keeps its first value. Nil means the id
// is unknown.
func (r *AlertRepo) Resolve(ctx context.Context, id uuid.UUID, at time.Time) (*domain.Alert, error) {
	query := `UPDATE alerts SET status = 'resolved', resolved_at = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + alertColumns

	a, err := scanAlert(r.pool.QueryRow(ctx, query, id, at))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("resolve alert: %w", err)
	}
	return r.Get(ctx, id)
}

// List fetches alerts with filtering and pagination, newest first.
func (r *AlertRepo) List(ctx context.Context, f ports.AlertFilter) ([]domain.Alert, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	add := func(column string, value any) {
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}
	if f.WalletID != nil {
		add("wallet_id", *f.WalletID)
	}
	if f.Chain != "" {
		add("chain", f.Chain)
	}
	if f.RiskLevel != "" {
		add("risk_level", f.RiskLevel)
	}
	if f.Status != "" {
		add("status", f.Status)
	}
	if f.RuleType != "" {
		add("rule_type", f.RuleType)
	}
	where := whereClause(conditions)

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM alerts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	dataQuery := fmt.Sprintf(`SELECT %s FROM alerts%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		alertColumns, where, argIdx, argIdx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan alert row: %w", err)
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate alert rows: %w", err)
	}
	return alerts, total, nil
}

// CountByRule reports how often each rule fired, optionally for one wallet.
func (r *AlertRepo) CountByRule(ctx context.Context, walletID *uuid.UUID) ([]domain.RuleHitCount, error) {
	query := `SELECT rule_id, rule_type, COUNT(*), COUNT(*) FILTER (WHERE status = 'pending')
		FROM alerts`
	var args []any
	if walletID != nil {
		query += ` WHERE wallet_id = $1`
		args = append(args, *walletID)
	}
	query += ` GROUP BY rule_id, rule_type ORDER BY COUNT(*) DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count alerts by rule: %w", err)
	}
	defer rows.Close()

	var out []domain.RuleHitCount
	for rows.Next() {
		var c domain.RuleHitCount
		if err := rows.Scan(&c.RuleID, &c.RuleType, &c.Total, &c.Pending); err != nil {
			return nil, fmt.Errorf("scan rule count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanAlert(row pgx.Row) (*domain.Alert, error) {
	a := &domain.Alert{}
	err := row.Scan(
		&a.ID, &a.WalletID, &a.Chain, &a.RuleID, &a.RuleType, &a.TransactionHash, &a.RiskLevel,
		&a.Message, &a.Status, &a.CreatedAt, &a.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}
