package postgres

import (
	"context"
	"fmt"
	"time"

	"wallet-risk-monitor/internal/core/domain"

	"github.com/google/uuid"
)

// RuleRepo implements ports.RuleRegistry.
type RuleRepo struct {
	pool Pool
}

// NewRuleRepo creates a new RuleRepo.
func NewRuleRepo(pool Pool) *RuleRepo {
	return &RuleRepo{pool: pool}
}

// Create adds a rule definition.
func (r *RuleRepo) Create(ctx context.Context, rule *domain.AlertRule) error {
	query := `INSERT INTO alert_rules (id, name, rule_type, threshold, window_seconds, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		rule.ID, rule.Name, rule.RuleType, rule.Threshold,
		int64(rule.EffectiveWindow()/time.Second), rule.Enabled, rule.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert rule: %w", err)
	}
	return nil
}

// SetEnabled toggles a rule. Returns false if it does not exist.
func (r *RuleRepo) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE alert_rules SET enabled = $1 WHERE id = $2`, enabled, id)
	if err != nil {
		return false, fmt.Errorf("update alert rule: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListEnabled returns enabled rules. Called at the start of every cycle so
// edits apply without a restart.
func (r *RuleRepo) ListEnabled(ctx context.Context) ([]domain.AlertRule, error) {
	query := `SELECT id, name, rule_type, threshold, window_seconds, enabled, created_at
		FROM alert_rules WHERE enabled = TRUE ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list enabled rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.AlertRule
	for rows.Next() {
		var (
			rule          domain.AlertRule
			windowSeconds int64
		)
		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.RuleType, &rule.Threshold,
			&windowSeconds, &rule.Enabled, &rule.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan alert rule row: %w", err)
		}
		rule.Window = time.Duration(windowSeconds) * time.Second
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert rule rows: %w", err)
	}
	return rules, nil
}
