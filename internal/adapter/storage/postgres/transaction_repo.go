package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wallet-risk-monitor/internal/core/domain"
	"wallet-risk-monitor/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `hash, wallet_id, chain, from_address, to_address, amount, block_time,
	block_number, tx_index, block_hash, status, gas_used, gas_price, method_id,
	is_contract_interaction, contract_address, anomaly_score, risk_level, created_at`

// TransactionRepo implements ports.TransactionRepository. Rows are never
// updated or deleted.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Insert writes t inside a database transaction. A duplicate (wallet_id, hash)
// is not an error: it reports false and leaves the stored row untouched.
func (r *TransactionRepo) Insert(ctx context.Context, tx pgx.Tx, t *domain.Transaction) (bool, error) {
	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (wallet_id, hash) DO NOTHING`

	tag, err := tx.Exec(ctx, query,
		t.Hash, t.WalletID, t.Chain, t.From, t.To, t.Amount, t.Timestamp,
		t.BlockNumber, t.TxIndex, t.BlockHash, t.Status, t.GasUsed, t.GasPrice, t.MethodID,
		t.IsContractInteraction, t.ContractAddress, t.AnomalyScore, t.RiskLevel, t.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert transaction: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get fetches one transaction of a wallet by hash.
func (r *TransactionRepo) Get(ctx context.Context, walletID uuid.UUID, hash string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE wallet_id = $1 AND hash = $2`

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, walletID, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// List fetches transactions with filtering and pagination, newest first.
func (r *TransactionRepo) List(ctx context.Context, f ports.TransactionFilter) ([]domain.Transaction, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if f.WalletID != nil {
		conditions = append(conditions, fmt.Sprintf("wallet_id = $%d", argIdx))
		args = append(args, *f.WalletID)
		argIdx++
	}
	if f.Chain != "" {
		conditions = append(conditions, fmt.Sprintf("chain = $%d", argIdx))
		args = append(args, f.Chain)
		argIdx++
	}
	if f.RiskLevel != "" {
		conditions = append(conditions, fmt.Sprintf("risk_level = $%d", argIdx))
		args = append(args, f.RiskLevel)
		argIdx++
	}

	where := whereClause(conditions)

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM transactions"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	dataQuery := fmt.Sprintf(`SELECT %s FROM transactions%s
		ORDER BY block_time DESC, block_number DESC, tx_index DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, argIdx, argIdx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	txns, err := collectTransactions(rows)
	if err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// ListForWallet returns the unit's whole ledger, oldest first.
func (r *TransactionRepo) ListForWallet(ctx context.Context, key domain.UnitKey) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE wallet_id = $1 AND chain = $2
		ORDER BY block_time, block_number, tx_index`

	rows, err := r.pool.Query(ctx, query, key.WalletID, key.Chain)
	if err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	return collectTransactions(rows)
}

// History loads the scoring view of the ledger. The counterparty is resolved
// in SQL relative to walletAddress.
func (r *TransactionRepo) History(ctx context.Context, key domain.UnitKey, walletAddress string) ([]domain.HistoryEntry, error) {
	query := `SELECT hash,
		CASE WHEN from_address = $3 THEN to_address ELSE from_address END AS counterparty,
		amount, block_time, block_number, tx_index, method_id
		FROM transactions
		WHERE wallet_id = $1 AND chain = $2
		ORDER BY block_time, block_number, tx_index`

	rows, err := r.pool.Query(ctx, query, key.WalletID, key.Chain, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		if err := rows.Scan(&e.Hash, &e.Counterparty, &e.Amount, &e.Timestamp, &e.BlockNumber, &e.TxIndex, &e.MethodID); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}

// LastPosition returns the highest stored position of the unit, nil if empty.
func (r *TransactionRepo) LastPosition(ctx context.Context, key domain.UnitKey) (*domain.Position, error) {
	query := `SELECT block_number, tx_index FROM transactions
		WHERE wallet_id = $1 AND chain = $2
		ORDER BY block_number DESC, tx_index DESC LIMIT 1`

	var pos domain.Position
	err := r.pool.QueryRow(ctx, query, key.WalletID, key.Chain).Scan(&pos.Block, &pos.Index)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("last position: %w", err)
	}
	return &pos, nil
}

// Stats aggregates the ledger plus the pending alert count.
func (r *TransactionRepo) Stats(ctx context.Context, f ports.StatsFilter) (*domain.Stats, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if f.WalletID != nil {
		conditions = append(conditions, fmt.Sprintf("wallet_id = $%d", argIdx))
		args = append(args, *f.WalletID)
		argIdx++
	}
	if f.Chain != "" {
		conditions = append(conditions, fmt.Sprintf("chain = $%d", argIdx))
		args = append(args, f.Chain)
	}
	where := whereClause(conditions)

	stats := &domain.Stats{ByChain: map[string]int64{}}
	query := `SELECT
		COUNT(*) AS total,
		COALESCE(SUM(amount), 0) AS volume,
		COALESCE(AVG(amount), 0) AS avg_amount,
		COUNT(*) FILTER (WHERE is_contract_interaction) AS contract_interactions,
		COUNT(*) FILTER (WHERE risk_level IN ('medium', 'high')) AS anomalies
		FROM transactions` + where

	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&stats.TotalTransactions, &stats.TotalVolume, &stats.AverageAmount,
		&stats.ContractInteractions, &stats.AnomalyCount,
	)
	if err != nil {
		return nil, fmt.Errorf("get transaction stats: %w", err)
	}

	rows, err := r.pool.Query(ctx, "SELECT chain, COUNT(*) FROM transactions"+where+" GROUP BY chain", args...)
	if err != nil {
		return nil, fmt.Errorf("get chain breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			chain string
			n     int64
		)
		if err := rows.Scan(&chain, &n); err != nil {
			return nil, fmt.Errorf("scan chain breakdown: %w", err)
		}
		stats.ByChain[chain] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chain breakdown: %w", err)
	}

	pendingWhere := " WHERE status = 'pending'"
	if where != "" {
		pendingWhere = where + " AND status = 'pending'"
	}
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM alerts"+pendingWhere, args...).Scan(&stats.PendingAlerts); err != nil {
		return nil, fmt.Errorf("count pending alerts: %w", err)
	}
	return stats, nil
}

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	err := row.Scan(
		&t.Hash, &t.WalletID, &t.Chain, &t.From, &t.To, &t.Amount, &t.Timestamp,
		&t.BlockNumber, &t.TxIndex, &t.BlockHash, &t.Status, &t.GasUsed, &t.GasPrice, &t.MethodID,
		&t.IsContractInteraction, &t.ContractAddress, &t.AnomalyScore, &t.RiskLevel, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, nil
}
