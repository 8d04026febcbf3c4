package postgres

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS wallets (
		id         UUID PRIMARY KEY,
		address    TEXT NOT NULL,
		chain      TEXT NOT NULL,
		name       TEXT NOT NULL DEFAULT '',
		active     BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (address, chain)
	)`,
	`CREATE TABLE IF NOT EXISTS alert_rules (
		id             UUID PRIMARY KEY,
		name           TEXT NOT NULL DEFAULT '',
		rule_type      TEXT NOT NULL CHECK (rule_type IN ('large_transfer', 'unknown_counterparty', 'frequency')),
		threshold      DOUBLE PRECISION NOT NULL DEFAULT 0,
		window_seconds BIGINT NOT NULL DEFAULT 3600,
		enabled        BOOLEAN NOT NULL DEFAULT TRUE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		wallet_id               UUID NOT NULL REFERENCES wallets (id),
		hash                    TEXT NOT NULL,
		chain                   TEXT NOT NULL,
		from_address            TEXT NOT NULL,
		to_address              TEXT NOT NULL,
		amount                  DOUBLE PRECISION NOT NULL,
		block_time              TIMESTAMPTZ NOT NULL,
		block_number            BIGINT NOT NULL,
		tx_index                BIGINT NOT NULL,
		block_hash              TEXT NOT NULL DEFAULT '',
		status                  TEXT NOT NULL DEFAULT '',
		gas_used                TEXT NOT NULL DEFAULT '',
		gas_price               TEXT NOT NULL DEFAULT '',
		method_id               TEXT NOT NULL DEFAULT '',
		is_contract_interaction BOOLEAN NOT NULL DEFAULT FALSE,
		contract_address        TEXT NOT NULL DEFAULT '',
		anomaly_score           DOUBLE PRECISION NOT NULL DEFAULT 0,
		risk_level              TEXT NOT NULL,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (wallet_id, hash)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_unit_time
		ON transactions (wallet_id, chain, block_time, block_number, tx_index)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_risk ON transactions (risk_level)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id               UUID PRIMARY KEY,
		wallet_id        UUID NOT NULL REFERENCES wallets (id),
		chain            TEXT NOT NULL,
		rule_id          UUID NOT NULL,
		rule_type        TEXT NOT NULL,
		transaction_hash TEXT NOT NULL,
		risk_level       TEXT NOT NULL,
		message          TEXT NOT NULL,
		status           TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'resolved')),
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		resolved_at      TIMESTAMPTZ,
		UNIQUE (wallet_id, transaction_hash, rule_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts (status, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS cursors (
		wallet_id  UUID NOT NULL,
		chain      TEXT NOT NULL,
		last_block BIGINT NOT NULL,
		last_index BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (wallet_id, chain)
	)`,
	`CREATE TABLE IF NOT EXISTS skipped_records (
		id           UUID PRIMARY KEY,
		wallet_id    UUID NOT NULL,
		chain        TEXT NOT NULL,
		hash         TEXT NOT NULL DEFAULT '',
		block_number BIGINT NOT NULL,
		tx_index     BIGINT NOT NULL,
		reason       TEXT NOT NULL,
		raw          JSONB,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (wallet_id, chain, block_number, tx_index)
	)`,
	`CREATE TABLE IF NOT EXISTS notification_deliveries (
		id          UUID PRIMARY KEY,
		alert_id    UUID NOT NULL,
		sink        TEXT NOT NULL,
		target      TEXT NOT NULL DEFAULT '',
		attempt     INT NOT NULL,
		status      TEXT NOT NULL,
		http_status INT,
		last_error  TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notification_deliveries_alert ON notification_deliveries (alert_id)`,
}

// Migrate applies the schema.
func Migrate(ctx context.Context, pool Pool, log zerolog.Logger) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	log.Info().Int("statements", len(schema)).Msg("postgres: schema applied")
	return nil
}
