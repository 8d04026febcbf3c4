package service

import (
	"context"

	"wallet-risk-monitor/internal/core/domain"
	"wallet-risk-monitor/internal/core/ports"
	"wallet-risk-monitor/pkg/apperror"

	"github.com/google/uuid"
)

// queryService implements ports.QueryService.
type queryService struct {
	txRepo   ports.TransactionRepository
	skipRepo ports.SkipRepository
}

// NewQueryService creates a new query service.
func NewQueryService(txRepo ports.TransactionRepository, skipRepo ports.SkipRepository) ports.QueryService {
	return &queryService{txRepo: txRepo, skipRepo: skipRepo}
}

func (s *queryService) GetTransaction(ctx context.Context, walletID uuid.UUID, hash string) (*domain.Transaction, error) {
	tx, err := s.txRepo.Get(ctx, walletID, hash)
	if err != nil {
		return nil, apperror.ErrStorageFailure(err)
	}
	if tx == nil {
		return nil, apperror.ErrTransactionNotFound()
	}
	return tx, nil
}

func (s *queryService) ListTransactions(ctx context.Context, filter ports.TransactionFilter) ([]domain.Transaction, int64, error) {
	txns, total, err := s.txRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, apperror.ErrStorageFailure(err)
	}
	return txns, total, nil
}

func (s *queryService) ListSkips(ctx context.Context, filter ports.SkipFilter) ([]domain.SkippedRecord, int64, error) {
	skips, total, err := s.skipRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, apperror.ErrStorageFailure(err)
	}
	return skips, total, nil
}

func (s *queryService) Summary(ctx context.Context, filter ports.StatsFilter) (*domain.Stats, error) {
	stats, err := s.txRepo.Stats(ctx, filter)
	if err != nil {
		return nil, apperror.ErrStorageFailure(err)
	}
	return stats, nil
}
