package postgres

import (
	"context"
	"fmt"

	"wallet-risk-monitor/internal/core/domain"
	"wallet-risk-monitor/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SkipRepo implements ports.SkipRepository.
type SkipRepo struct {
	pool Pool
}

// NewSkipRepo creates a new SkipRepo.
func NewSkipRepo(pool Pool) *SkipRepo {
	return &SkipRepo{pool: pool}
}

// Record stores a skipped record inside the batch transaction. Re-fetching
// the same position after a retry does not create a second row.
func (r *SkipRepo) Record(ctx context.Context, tx pgx.Tx, s *domain.SkippedRecord) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	query := `INSERT INTO skipped_records (id, wallet_id, chain, hash, block_number, tx_index, reason, raw, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (wallet_id, chain, block_number, tx_index) DO NOTHING`

	_, err := tx.Exec(ctx, query,
		s.ID, s.WalletID, s.Chain, s.Hash, s.BlockNumber, s.TxIndex, s.Reason, s.Raw, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert skipped record: %w", err)
	}
	return nil
}

// List fetches skipped records, newest first.
func (r *SkipRepo) List(ctx context.Context, f ports.SkipFilter) ([]domain.SkippedRecord, int64, error) {
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
	where := whereClause(conditions)

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM skipped_records"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count skipped records: %w", err)
	}

	query := fmt.Sprintf(`SELECT id, wallet_id, chain, hash, block_number, tx_index, reason, raw, created_at
		FROM skipped_records%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list skipped records: %w", err)
	}
	defer rows.Close()

	var out []domain.SkippedRecord
	for rows.Next() {
		var s domain.SkippedRecord
		if err := rows.Scan(&s.ID, &s.WalletID, &s.Chain, &s.Hash, &s.BlockNumber, &s.TxIndex, &s.Reason, &s.Raw, &s.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan skipped record: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate skipped records: %w", err)
	}
	return out, total, nil
}
