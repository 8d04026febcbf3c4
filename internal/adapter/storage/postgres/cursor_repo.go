package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-risk-monitor/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// CursorRepo implements ports.CursorStore on the cursors table.
type CursorRepo struct {
	pool Pool
}

// NewCursorRepo creates a new CursorRepo.
func NewCursorRepo(pool Pool) *CursorRepo {
	return &CursorRepo{pool: pool}
}

// Get returns the committed cursor, or nil if the unit never committed.
func (r *CursorRepo) Get(ctx context.Context, key domain.UnitKey) (*domain.Cursor, error) {
	query := `SELECT wallet_id, chain, last_block, last_index, updated_at
		FROM cursors WHERE wallet_id = $1 AND chain = $2`

	c := &domain.Cursor{}
	err := r.pool.QueryRow(ctx, query, key.WalletID, key.Chain).Scan(
		&c.WalletID, &c.Chain, &c.LastBlock, &c.LastIndex, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cursor: %w", err)
	}
	return c, nil
}

// Commit upserts the cursor. The WHERE guard on the conflict branch makes a
// regressing commit a no-op, so the stored position only moves forward.
func (r *CursorRepo) Commit(ctx context.Context, c *domain.Cursor) error {
	updatedAt := c.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	query := `INSERT INTO cursors (wallet_id, chain, last_block, last_index, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (wallet_id, chain) DO UPDATE
		SET last_block = EXCLUDED.last_block, last_index = EXCLUDED.last_index, updated_at = EXCLUDED.updated_at
		WHERE (cursors.last_block, cursors.last_index) < (EXCLUDED.last_block, EXCLUDED.last_index)`

	_, err := r.pool.Exec(ctx, query, c.WalletID, c.Chain, c.LastBlock, c.LastIndex, updatedAt)
	if err != nil {
		return fmt.Errorf("commit cursor: %w", err)
	}
	return nil
}
