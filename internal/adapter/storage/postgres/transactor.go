package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// batchTxOptions is used for every batch commit. Read committed is enough:
// the natural-key unique constraints resolve concurrent inserts.
var batchTxOptions = pgx.TxOptions{
	IsoLevel:   pgx.ReadCommitted,
	AccessMode: pgx.ReadWrite,
}

// Transactor implements ports.DBTransactor. One transaction covers one
// batch of transactions, alerts and skipped records.
type Transactor struct {
	pool Pool
}

// NewTransactor creates a new Transactor wrapping the connection pool.
func NewTransactor(pool Pool) *Transactor {
	return &Transactor{pool: pool}
}

// Begin opens a read-write batch transaction.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := t.pool.BeginTx(ctx, batchTxOptions)
	if err != nil {
		return nil, fmt.Errorf("begin batch transaction: %w", err)
	}
	return tx, nil
}
