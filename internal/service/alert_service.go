package service

import (
	"context"
	"time"

	"wallet-risk-monitor/internal/core/domain"
	"wallet-risk-monitor/internal/core/ports"
	"wallet-risk-monitor/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// alertService implements ports.AlertService.
type alertService struct {
	alertRepo ports.AlertRepository
	now       func() time.Time
	log       zerolog.Logger
}

// NewAlertService creates a new alert service.
func NewAlertService(alertRepo ports.AlertRepository, log zerolog.Logger) ports.AlertService {
	return &alertService{
		alertRepo: alertRepo,
		now:       time.Now,
		log:       log,
	}
}

func (s *alertService) Get(ctx context.Context, id uuid.UUID) (*domain.Alert, error) {
	a, err := s.alertRepo.Get(ctx, id)
	if err != nil {
		return nil, apperror.ErrStorageFailure(err)
	}
	if a == nil {
		return nil, apperror.ErrAlertNotFound()
	}
	return a, nil
}

func (s *alertService) List(ctx context.Context, filter ports.AlertFilter) ([]domain.Alert, int64, error) {
	alerts, total, err := s.alertRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, apperror.ErrStorageFailure(err)
	}
	return alerts, total, nil
}

// Resolve marks an alert resolved. Resolving twice is a no-op that returns
// the alert with its original resolved_at.
func (s *alertService) Resolve(ctx context.Context, id uuid.UUID) (*domain.Alert, error) {
	a, err := s.alertRepo.Resolve(ctx, id, s.now().UTC())
	if err != nil {
		return nil, apperror.ErrStorageFailure(err)
	}
	if a == nil {
		return nil, apperror.ErrAlertNotFound()
	}
	s.log.Info().
		Str("alert_id", a.ID.String()).
		Str("rule_type", string(a.RuleType)).
		Msg("alert resolved")
	return a, nil
}

// RuleStats reports alert counts per rule, optionally for one wallet.
func (s *alertService) RuleStats(ctx context.Context, walletID *uuid.UUID) ([]domain.RuleHitCount, error) {
	counts, err := s.alertRepo.CountByRule(ctx, walletID)
	if err != nil {
		return nil, apperror.ErrStorageFailure(err)
	}
	return counts, nil
}
