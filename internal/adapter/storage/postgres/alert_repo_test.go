package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"wallet-risk-monitor/internal/core/domain"
	"wallet-risk-monitor/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAlert() *domain.Alert {
	return &domain.Alert{
		ID:              uuid.New(),
		WalletID:        uuid.New(),
		Chain:           "ethereum",
		RuleID:          uuid.New(),
		RuleType:        domain.RuleLargeTransfer,
		TransactionHash: "0xabc",
		RiskLevel:       domain.RiskHigh,
		Message:         "transfer of 5 exceeds threshold 1",
		Status:          domain.AlertPending,
		CreatedAt:       time.Now().UTC().Truncate(time.Microsecond),
	}
}

func alertColumnNames() []string {
	return []string{"id", "wallet_id", "chain", "rule_id", "rule_type", "transaction_hash", "risk_level",
		"message", "status", "created_at", "resolved_at"}
}

func alertRow(a *domain.Alert) *pgxmock.Rows {
	return pgxmock.NewRows(alertColumnNames()).AddRow(
		a.ID, a.WalletID, a.Chain, a.RuleID, a.RuleType, a.TransactionHash, a.RiskLevel,
		a.Message, a.Status, a.CreatedAt, a.ResolvedAt,
	)
}

func TestAlertRepo_InsertIfAbsent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAlertRepo(mock)
	a := newTestAlert()
	a.ID = uuid.Nil

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO alerts .+ ON CONFLICT \\(wallet_id, transaction_hash, rule_id\\) DO NOTHING").
		WithArgs(pgxmock.AnyArg(), a.WalletID, a.Chain, a.RuleID, a.RuleType, a.TransactionHash, a.RiskLevel,
			a.Message, a.Status, a.CreatedAt, a.ResolvedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	inserted, err := repo.InsertIfAbsent(context.Background(), dbTx, a)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEqual(t, uuid.Nil, a.ID, "id is assigned on insert")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepo_InsertIfAbsent_Duplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAlertRepo(mock)
	a := newTestAlert()
	a.ID = uuid.Nil

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO alerts").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	inserted, err := repo.InsertIfAbsent(context.Background(), dbTx, a)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, uuid.Nil, a.ID, "a duplicate candidate keeps no id")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepo_Get_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAlertRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM alerts WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(alertColumnNames()))

	a, err := repo.Get(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, a)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepo_Resolve_Pending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAlertRepo(mock)
	at := time.Now().UTC().Truncate(time.Microsecond)
	resolved := newTestAlert()
	resolved.Status = domain.AlertResolved
	resolved.ResolvedAt = &at

	mock.ExpectQuery("UPDATE alerts SET status = 'resolved', resolved_at = \\$2 WHERE id = \\$1 AND status = 'pending' RETURNING").
		WithArgs(resolved.ID, at).
		WillReturnRows(alertRow(resolved))

	a, err := repo.Resolve(context.Background(), resolved.ID, at)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, domain.AlertResolved, a.Status)
	require.NotNil(t, a.ResolvedAt)
	assert.Equal(t, at, *a.ResolvedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepo_Resolve_AlreadyResolvedKeepsTimestamp(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAlertRepo(mock)
	first := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	stored := newTestAlert()
	stored.Status = domain.AlertResolved
	stored.ResolvedAt = &first

	mock.ExpectQuery("UPDATE alerts SET status = 'resolved'").
		WithArgs(stored.ID, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(alertColumnNames()))
	mock.ExpectQuery("SELECT .+ FROM alerts WHERE id = \\$1").
		WithArgs(stored.ID).
		WillReturnRows(alertRow(stored))

	a, err := repo.Resolve(context.Background(), stored.ID, time.Now())
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, first, *a.ResolvedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepo_Resolve_Unknown(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAlertRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("UPDATE alerts").
		WithArgs(id, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(alertColumnNames()))
	mock.ExpectQuery("SELECT .+ FROM alerts WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(alertColumnNames()))

	a, err := repo.Resolve(context.Background(), id, time.Now())
	assert.NoError(t, err)
	assert.Nil(t, a)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepo_Resolve_DBError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAlertRepo(mock)

	mock.ExpectQuery("UPDATE alerts").WillReturnError(errors.New("conn closed"))

	_, err = repo.Resolve(context.Background(), uuid.New(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve alert")
}

func TestAlertRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAlertRepo(mock)
	a := newTestAlert()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM alerts WHERE status = \\$1 AND rule_type = \\$2").
		WithArgs(domain.AlertPending, domain.RuleLargeTransfer).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT .+ FROM alerts WHERE status = \\$1 AND rule_type = \\$2 ORDER BY created_at DESC, id LIMIT \\$3 OFFSET \\$4").
		WithArgs(domain.AlertPending, domain.RuleLargeTransfer, 10, 0).
		WillReturnRows(alertRow(a))

	alerts, total, err := repo.List(context.Background(), ports.AlertFilter{
		Status:   domain.AlertPending,
		RuleType: domain.RuleLargeTransfer,
		Limit:    10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, alerts, 1)
	assert.Equal(t, a.ID, alerts[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepo_CountByRule(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAlertRepo(mock)
	walletID := uuid.New()
	ruleID := uuid.New()

	mock.ExpectQuery("SELECT rule_id, rule_type, COUNT\\(\\*\\).+FROM alerts WHERE wallet_id = \\$1 GROUP BY rule_id, rule_type").
		WithArgs(walletID).
		WillReturnRows(pgxmock.NewRows([]string{"rule_id", "rule_type", "total", "pending"}).
			AddRow(ruleID, domain.RuleFrequency, int64(7), int64(2)))

	counts, err := repo.CountByRule(context.Background(), &walletID)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, domain.RuleHitCount{RuleID: ruleID, RuleType: domain.RuleFrequency, Total: 7, Pending: 2}, counts[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}
