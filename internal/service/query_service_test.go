package service

import (
	"context"
	"testing"

	"wallet-risk-monitor/internal/core/domain"
	"wallet-risk-monitor/internal/core/ports"
	"wallet-risk-monitor/internal/core/ports/mocks"
	"wallet-risk-monitor/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type queryTestDeps struct {
	svc      ports.QueryService
	txRepo   *mocks.MockTransactionRepository
	skipRepo *mocks.MockSkipRepository
}

func setupQueryService(t *testing.T) *queryTestDeps {
	ctrl := gomock.NewController(t)
	d := &queryTestDeps{
		txRepo:   mocks.NewMockTransactionRepository(ctrl),
		skipRepo: mocks.NewMockSkipRepository(ctrl),
	}
	d.svc = NewQueryService(d.txRepo, d.skipRepo)
	return d
}

func TestQueryService_GetTransaction(t *testing.T) {
	d := setupQueryService(t)
	walletID := uuid.New()

	d.txRepo.EXPECT().Get(gomock.Any(), walletID, "0xabc").
		Return(&domain.Transaction{Hash: "0xabc", WalletID: walletID}, nil)

	tx, err := d.svc.GetTransaction(context.Background(), walletID, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", tx.Hash)
}

func TestQueryService_GetTransaction_NotFound(t *testing.T) {
	d := setupQueryService(t)

	d.txRepo.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

	_, err := d.svc.GetTransaction(context.Background(), uuid.New(), "0xmissing")
	assertAppError(t, err, apperror.CodeTransactionNotFound)
}

func TestQueryService_ListTransactions(t *testing.T) {
	d := setupQueryService(t)
	walletID := uuid.New()
	filter := ports.TransactionFilter{WalletID: &walletID, RiskLevel: domain.RiskHigh, Limit: 10}

	d.txRepo.EXPECT().List(gomock.Any(), filter).
		Return([]domain.Transaction{{Hash: "0x1"}, {Hash: "0x2"}}, int64(2), nil)

	txs, total, err := d.svc.ListTransactions(context.Background(), filter)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
	assert.Equal(t, int64(2), total)
}

func TestQueryService_ListTransactions_StorageError(t *testing.T) {
	d := setupQueryService(t)

	d.txRepo.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, int64(0), errDBDown)

	_, _, err := d.svc.ListTransactions(context.Background(), ports.TransactionFilter{})
	assertAppError(t, err, apperror.CodeStorageFailure)
}

func TestQueryService_ListSkips(t *testing.T) {
	d := setupQueryService(t)

	d.skipRepo.EXPECT().List(gomock.Any(), gomock.Any()).
		Return([]domain.SkippedRecord{{Hash: "0xbad", Reason: "Malformed record: amount"}}, int64(1), nil)

	skips, total, err := d.svc.ListSkips(context.Background(), ports.SkipFilter{Limit: 5})
	require.NoError(t, err)
	require.Len(t, skips, 1)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "0xbad", skips[0].Hash)
}

func TestQueryService_Summary(t *testing.T) {
	d := setupQueryService(t)

	d.txRepo.EXPECT().Stats(gomock.Any(), ports.StatsFilter{Chain: "ethereum"}).
		Return(&domain.Stats{TotalTransactions: 12, AnomalyCount: 2}, nil)

	stats, err := d.svc.Summary(context.Background(), ports.StatsFilter{Chain: "ethereum"})
	require.NoError(t, err)
	assert.Equal(t, int64(12), stats.TotalTransactions)
	assert.Equal(t, int64(2), stats.AnomalyCount)
}

func TestQueryService_Summary_StorageError(t *testing.T) {
	d := setupQueryService(t)

	d.txRepo.EXPECT().Stats(gomock.Any(), gomock.Any()).Return(nil, errDBDown)

	_, err := d.svc.Summary(context.Background(), ports.StatsFilter{})
	assertAppError(t, err, apperror.CodeStorageFailure)
}
