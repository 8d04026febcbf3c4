package postgres

import (
	"context"
	"fmt"

	"wallet-risk-monitor/internal/core/domain"

	"github.com/google/uuid"
)

// DeliveryRepo implements ports.DeliveryRepository.
type DeliveryRepo struct {
	pool Pool
}

// NewDeliveryRepo creates a new DeliveryRepo.
func NewDeliveryRepo(pool Pool) *DeliveryRepo {
	return &DeliveryRepo{pool: pool}
}

// Record appends one delivery attempt.
func (r *DeliveryRepo) Record(ctx context.Context, d *domain.NotificationDelivery) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notification_deliveries
		(id, alert_id, sink, target, attempt, status, http_status, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.AlertID, d.Sink, d.Target, d.Attempt, d.Status,
		d.HTTPStatus, d.LastError, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification delivery: %w", err)
	}
	return nil
}

// ListByAlert returns the attempts for one alert, latest first.
func (r *DeliveryRepo) ListByAlert(ctx context.Context, alertID uuid.UUID) ([]domain.NotificationDelivery, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, alert_id, sink, target, attempt, status, http_status, last_error, created_at
		FROM notification_deliveries
		WHERE alert_id = $1
		ORDER BY created_at DESC`, alertID)
	if err != nil {
		return nil, fmt.Errorf("list notification deliveries: %w", err)
	}
	defer rows.Close()

	var out []domain.NotificationDelivery
	for rows.Next() {
		var d domain.NotificationDelivery
		if err := rows.Scan(
			&d.ID, &d.AlertID, &d.Sink, &d.Target, &d.Attempt, &d.Status,
			&d.HTTPStatus, &d.LastError, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
