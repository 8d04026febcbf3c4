package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"wallet-risk-monitor/internal/core/domain"
	"wallet-risk-monitor/internal/core/ports"
	"wallet-risk-monitor/internal/core/ports/mocks"
	"wallet-risk-monitor/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func assertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T", err)
	assert.Equal(t, expectedCode, appErr.Code)
}

func TestAlertService_Get(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockAlertRepository(ctrl)
	svc := NewAlertService(repo, zerolog.Nop())

	id := uuid.New()
	repo.EXPECT().Get(gomock.Any(), id).Return(&domain.Alert{ID: id}, nil)

	a, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, a.ID)
}

func TestAlertService_Get_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockAlertRepository(ctrl)
	svc := NewAlertService(repo, zerolog.Nop())

	repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)

	_, err := svc.Get(context.Background(), uuid.New())
	assertAppError(t, err, apperror.CodeAlertNotFound)
}

func TestAlertService_Get_StorageError(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockAlertRepository(ctrl)
	svc := NewAlertService(repo, zerolog.Nop())

	repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errDBDown)

	_, err := svc.Get(context.Background(), uuid.New())
	assertAppError(t, err, apperror.CodeStorageFailure)
	assert.ErrorIs(t, err, errDBDown)
}

func TestAlertService_List(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockAlertRepository(ctrl)
	svc := NewAlertService(repo, zerolog.Nop())

	filter := ports.AlertFilter{Status: domain.AlertPending, Limit: 20}
	repo.EXPECT().List(gomock.Any(), filter).Return([]domain.Alert{{ID: uuid.New()}}, int64(1), nil)

	alerts, total, err := svc.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
	assert.Equal(t, int64(1), total)
}

func TestAlertService_Resolve_UsesUTCNow(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockAlertRepository(ctrl)
	svc := NewAlertService(repo, zerolog.Nop()).(*alertService)

	at := time.Date(2025, 3, 1, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	svc.now = func() time.Time { return at }

	id := uuid.New()
	resolvedAt := at.UTC()
	repo.EXPECT().Resolve(gomock.Any(), id, resolvedAt).
		Return(&domain.Alert{ID: id, Status: domain.AlertResolved, ResolvedAt: &resolvedAt}, nil)

	a, err := svc.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.AlertResolved, a.Status)
	assert.Equal(t, resolvedAt, *a.ResolvedAt)
}

func TestAlertService_Resolve_Idempotent(t *testing.T) {
	store := newMemStore()

	id := uuid.New()
	store.alerts["k"] = domain.Alert{ID: id, Status: domain.AlertPending}
	svc := NewAlertService(memAlerts{store}, zerolog.Nop()).(*alertService)

	first := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return first }
	a, err := svc.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, first, *a.ResolvedAt)

	svc.now = func() time.Time { return first.Add(time.Hour) }
	b, err := svc.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.AlertResolved, b.Status)
	assert.Equal(t, first, *b.ResolvedAt, "resolving again keeps the original timestamp")
}

func TestAlertService_Resolve_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockAlertRepository(ctrl)
	svc := NewAlertService(repo, zerolog.Nop())

	repo.EXPECT().Resolve(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

	_, err := svc.Resolve(context.Background(), uuid.New())
	assertAppError(t, err, apperror.CodeAlertNotFound)
}

func TestAlertService_RuleStats(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockAlertRepository(ctrl)
	svc := NewAlertService(repo, zerolog.Nop())

	walletID := uuid.New()
	counts := []domain.RuleHitCount{{RuleID: uuid.New(), RuleType: domain.RuleFrequency, Total: 3, Pending: 1}}
	repo.EXPECT().CountByRule(gomock.Any(), &walletID).Return(counts, nil)

	got, err := svc.RuleStats(context.Background(), &walletID)
	require.NoError(t, err)
	assert.Equal(t, counts, got)
}

func TestAlertService_RuleStats_StorageError(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockAlertRepository(ctrl)
	svc := NewAlertService(repo, zerolog.Nop())

	repo.EXPECT().CountByRule(gomock.Any(), gomock.Nil()).Return(nil, errDBDown)

	_, err := svc.RuleStats(context.Background(), nil)
	assertAppError(t, err, apperror.CodeStorageFailure)
}
