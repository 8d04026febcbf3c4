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

func newTestTransaction(walletID uuid.UUID) *domain.Transaction {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Transaction{
		Hash:                  "0xabc123",
		WalletID:              walletID,
		Chain:                 "ethereum",
		From:                  "0x1111111111111111111111111111111111111111",
		To:                    "0x2222222222222222222222222222222222222222",
		Amount:                1.5,
		Timestamp:             now.Add(-time.Minute),
		BlockNumber:           19000000,
		TxIndex:               7,
		BlockHash:             "0xblock",
		Status:                "success",
		GasUsed:               "21000",
		GasPrice:              "30000000000",
		MethodID:              "0xa9059cbb",
		IsContractInteraction: true,
		ContractAddress:       "0x3333333333333333333333333333333333333333",
		AnomalyScore:          0.55,
		RiskLevel:             domain.RiskMedium,
		CreatedAt:             now,
	}
}

func txColumns() []string {
	return []string{"hash", "wallet_id", "chain", "from_address", "to_address", "amount", "block_time",
		"block_number", "tx_index", "block_hash", "status", "gas_used", "gas_price", "method_id",
		"is_contract_interaction", "contract_address", "anomaly_score", "risk_level", "created_at"}
}

func txRow(rows *pgxmock.Rows, t *domain.Transaction) *pgxmock.Rows {
	return rows.AddRow(
		t.Hash, t.WalletID, t.Chain, t.From, t.To, t.Amount, t.Timestamp,
		t.BlockNumber, t.TxIndex, t.BlockHash, t.Status, t.GasUsed, t.GasPrice, t.MethodID,
		t.IsContractInteraction, t.ContractAddress, t.AnomalyScore, t.RiskLevel, t.CreatedAt,
	)
}

func txArgs(t *domain.Transaction) []any {
	return []any{
		t.Hash, t.WalletID, t.Chain, t.From, t.To, t.Amount, t.Timestamp,
		t.BlockNumber, t.TxIndex, t.BlockHash, t.Status, t.GasUsed, t.GasPrice, t.MethodID,
		t.IsContractInteraction, t.ContractAddress, t.AnomalyScore, t.RiskLevel, t.CreatedAt,
	}
}

func TestTransactionRepo_Insert(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"new row", 1, true},
		{"duplicate hash", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			repo := NewTransactionRepo(mock)
			txn := newTestTransaction(uuid.New())

			mock.ExpectBegin()
			mock.ExpectExec("INSERT INTO transactions .+ ON CONFLICT \\(wallet_id, hash\\) DO NOTHING").
				WithArgs(txArgs(txn)...).
				WillReturnResult(pgxmock.NewResult("INSERT", tt.affected))

			dbTx, err := mock.Begin(context.Background())
			require.NoError(t, err)

			inserted, err := repo.Insert(context.Background(), dbTx, txn)
			require.NoError(t, err)
			assert.Equal(t, tt.want, inserted)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTransactionRepo_Insert_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").WillReturnError(errors.New("connection reset"))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	_, err = repo.Insert(context.Background(), dbTx, txn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert transaction")
}

func TestTransactionRepo_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE wallet_id = \\$1 AND hash = \\$2").
		WithArgs(txn.WalletID, txn.Hash).
		WillReturnRows(txRow(pgxmock.NewRows(txColumns()), txn))

	result, err := repo.Get(context.Background(), txn.WalletID, txn.Hash)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, txn.Hash, result.Hash)
	assert.Equal(t, txn.Amount, result.Amount)
	assert.Equal(t, domain.RiskMedium, result.RiskLevel)
	assert.True(t, result.IsContractInteraction)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_Get_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE wallet_id").
		WithArgs(pgxmock.AnyArg(), "0xmissing").
		WillReturnRows(pgxmock.NewRows(txColumns()))

	result, err := repo.Get(context.Background(), uuid.New(), "0xmissing")
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_List_Filters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	walletID := uuid.New()
	txn := newTestTransaction(walletID)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM transactions WHERE wallet_id = \\$1 AND chain = \\$2 AND risk_level = \\$3").
		WithArgs(walletID, "ethereum", domain.RiskMedium).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT .+ FROM transactions WHERE .+ ORDER BY block_time DESC .+ LIMIT \\$4 OFFSET \\$5").
		WithArgs(walletID, "ethereum", domain.RiskMedium, 50, 0).
		WillReturnRows(txRow(pgxmock.NewRows(txColumns()), txn))

	txns, total, err := repo.List(context.Background(), ports.TransactionFilter{
		WalletID:  &walletID,
		Chain:     "ethereum",
		RiskLevel: domain.RiskMedium,
		Limit:     50,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, txns, 1)
	assert.Equal(t, txn.Hash, txns[0].Hash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_List_NoFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM transactions$").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery("SELECT .+ FROM transactions\\s+ORDER BY").
		WithArgs(20, 40).
		WillReturnRows(pgxmock.NewRows(txColumns()))

	txns, total, err := repo.List(context.Background(), ports.TransactionFilter{Limit: 20, Offset: 40})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, txns)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_ListForWallet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	key := domain.UnitKey{WalletID: uuid.New(), Chain: "ethereum"}
	first := newTestTransaction(key.WalletID)
	second := newTestTransaction(key.WalletID)
	second.Hash = "0xdef456"
	second.TxIndex = 8

	rows := txRow(txRow(pgxmock.NewRows(txColumns()), first), second)
	mock.ExpectQuery("SELECT .+ FROM transactions\\s+WHERE wallet_id = \\$1 AND chain = \\$2\\s+ORDER BY block_time, block_number, tx_index").
		WithArgs(key.WalletID, key.Chain).
		WillReturnRows(rows)

	txns, err := repo.ListForWallet(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "0xdef456", txns[1].Hash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_History(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	key := domain.UnitKey{WalletID: uuid.New(), Chain: "ethereum"}
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT hash,\\s+CASE WHEN from_address = \\$3 THEN to_address ELSE from_address END").
		WithArgs(key.WalletID, key.Chain, "0xwallet").
		WillReturnRows(pgxmock.NewRows([]string{"hash", "counterparty", "amount", "block_time", "block_number", "tx_index", "method_id"}).
			AddRow("0x1", "0xalice", 2.0, ts, int64(10), int64(0), "").
			AddRow("0x2", "0xbob", 4.0, ts.Add(time.Minute), int64(11), int64(3), "0xa9059cbb"))

	entries, err := repo.History(context.Background(), key, "0xwallet")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "0xalice", entries[0].Counterparty)
	assert.Equal(t, "0xa9059cbb", entries[1].MethodID)
	assert.Equal(t, int64(3), entries[1].TxIndex)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_LastPosition(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	key := domain.UnitKey{WalletID: uuid.New(), Chain: "bitcoin"}

	mock.ExpectQuery("SELECT block_number, tx_index FROM transactions").
		WithArgs(key.WalletID, key.Chain).
		WillReturnRows(pgxmock.NewRows([]string{"block_number", "tx_index"}).AddRow(int64(840000), int64(12)))

	pos, err := repo.LastPosition(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, domain.Position{Block: 840000, Index: 12}, *pos)

	mock.ExpectQuery("SELECT block_number, tx_index FROM transactions").
		WithArgs(key.WalletID, key.Chain).
		WillReturnRows(pgxmock.NewRows([]string{"block_number", "tx_index"}))

	pos, err = repo.LastPosition(context.Background(), key)
	require.NoError(t, err)
	assert.Nil(t, pos)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_Stats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	walletID := uuid.New()

	mock.ExpectQuery("SELECT\\s+COUNT\\(\\*\\) AS total,.+FROM transactions WHERE wallet_id = \\$1").
		WithArgs(walletID).
		WillReturnRows(pgxmock.NewRows([]string{"total", "volume", "avg_amount", "contract_interactions", "anomalies"}).
			AddRow(int64(12), 30.0, 2.5, int64(4), int64(3)))
	mock.ExpectQuery("SELECT chain, COUNT\\(\\*\\) FROM transactions WHERE wallet_id = \\$1 GROUP BY chain").
		WithArgs(walletID).
		WillReturnRows(pgxmock.NewRows([]string{"chain", "count"}).
			AddRow("ethereum", int64(10)).
			AddRow("polygon", int64(2)))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM alerts WHERE wallet_id = \\$1 AND status = 'pending'").
		WithArgs(walletID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(5)))

	stats, err := repo.Stats(context.Background(), ports.StatsFilter{WalletID: &walletID})
	require.NoError(t, err)
	assert.Equal(t, int64(12), stats.TotalTransactions)
	assert.Equal(t, 30.0, stats.TotalVolume)
	assert.Equal(t, 2.5, stats.AverageAmount)
	assert.Equal(t, int64(4), stats.ContractInteractions)
	assert.Equal(t, int64(3), stats.AnomalyCount)
	assert.Equal(t, int64(5), stats.PendingAlerts)
	assert.Equal(t, map[string]int64{"ethereum": 10, "polygon": 2}, stats.ByChain)
	assert.NoError(t, mock.ExpectationsWereMet())
}
