package postgres

import (
	"context"
	"fmt"
	"time"
)

const healthTimeout = 2 * time.Second

// HealthCheck probes the ledger database. It checks that the schema is in
// place, not just that a connection can be made.
type HealthCheck struct {
	pool Pool
}

func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	var ok bool
	if err := h.pool.QueryRow(ctx, `SELECT to_regclass('public.cursors') IS NOT NULL`).Scan(&ok); err != nil {
		return fmt.Errorf("postgres unreachable: %w", err)
	}
	if !ok {
		return fmt.Errorf("postgres schema missing, run migrate")
	}
	return nil
}

func (h *HealthCheck) Name() string { return "postgres" }
