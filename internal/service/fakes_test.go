package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"wallet-risk-monitor/internal/core/domain"
	"wallet-risk-monitor/internal/core/ports"
	"wallet-risk-monitor/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// memStore is an in-memory stand-in for PostgreSQL. Writes made through a
// fakeTx become visible only on Commit.
type memStore struct {
	mu       sync.Mutex
	wallets  map[uuid.UUID]domain.Wallet
	rules    []domain.AlertRule
	cursors  map[domain.UnitKey]domain.Cursor
	txs      map[string]domain.Transaction
	alerts   map[string]domain.Alert
	skips    []domain.SkippedRecord
	listErr  error
	beginErr error
	commits  int
}

func newMemStore() *memStore {
	return &memStore{
		wallets: make(map[uuid.UUID]domain.Wallet),
		cursors: make(map[domain.UnitKey]domain.Cursor),
		txs:     make(map[string]domain.Transaction),
		alerts:  make(map[string]domain.Alert),
	}
}

func txKey(walletID uuid.UUID, hash string) string { return walletID.String() + "|" + hash }

func (s *memStore) addWallet(w domain.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[w.ID] = w
}

func (s *memStore) setActive(id uuid.UUID, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.wallets[id]
	w.Active = active
	s.wallets[id] = w
}

func (s *memStore) setRules(rules ...domain.AlertRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = rules
}

func (s *memStore) dropCursor(key domain.UnitKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cursors, key)
}

func (s *memStore) txCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txs)
}

func (s *memStore) alertList() []domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DedupKey() < out[j].DedupKey() })
	return out
}

func (s *memStore) skipList() []domain.SkippedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SkippedRecord(nil), s.skips...)
}

func (s *memStore) cursor(key domain.UnitKey) *domain.Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cursors[key]
	if !ok {
		return nil
	}
	return &c
}

// fakeTx implements pgx.Tx for the in-memory store.
type fakeTx struct {
	pgx.Tx
	s      *memStore
	ops    []func()
	staged map[string]bool
	done   bool
}

func (t *fakeTx) Commit(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, op := range t.ops {
		op()
	}
	t.s.commits++
	t.done = true
	return nil
}

func (t *fakeTx) Rollback(_ context.Context) error {
	t.done = true
	return nil
}

type memTransactor struct{ *memStore }

func (m memTransactor) Begin(_ context.Context) (pgx.Tx, error) {
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	return &fakeTx{s: m.memStore, staged: make(map[string]bool)}, nil
}

type memWallets struct{ *memStore }

func (m memWallets) ListActive(_ context.Context) ([]domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.Wallet
	for _, w := range m.wallets {
		if w.Active {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (m memWallets) GetByID(_ context.Context, id uuid.UUID) (*domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

type memRules struct{ *memStore }

func (m memRules) ListEnabled(_ context.Context) ([]domain.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AlertRule
	for _, r := range m.rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

type memCursors struct{ *memStore }

func (m memCursors) Get(_ context.Context, key domain.UnitKey) (*domain.Cursor, error) {
	return m.cursor(key), nil
}

func (m memCursors) Commit(_ context.Context, c *domain.Cursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.cursors[c.UnitKey()]
	if ok && !cur.Advances(c.Position()) {
		return nil
	}
	m.cursors[c.UnitKey()] = *c
	return nil
}

type memTxs struct{ *memStore }

func (m memTxs) Insert(_ context.Context, tx pgx.Tx, t *domain.Transaction) (bool, error) {
	ft := tx.(*fakeTx)
	k := txKey(t.WalletID, t.Hash)
	m.mu.Lock()
	_, exists := m.txs[k]
	m.mu.Unlock()
	if exists || ft.staged[k] {
		return false, nil
	}
	ft.staged[k] = true
	row := *t
	ft.ops = append(ft.ops, func() { m.txs[k] = row })
	return true, nil
}

func (m memTxs) Get(_ context.Context, walletID uuid.UUID, hash string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txs[txKey(walletID, hash)]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m memTxs) List(ctx context.Context, filter ports.TransactionFilter) ([]domain.Transaction, int64, error) {
	if filter.WalletID == nil {
		return nil, 0, nil
	}
	out, err := m.ListForWallet(ctx, domain.UnitKey{WalletID: *filter.WalletID, Chain: filter.Chain})
	return out, int64(len(out)), err
}

func (m memTxs) ListForWallet(_ context.Context, key domain.UnitKey) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, t := range m.txs {
		if t.WalletID == key.WalletID && t.Chain == key.Chain {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Position().Less(out[j].Position())
	})
	return out, nil
}

func (m memTxs) History(ctx context.Context, key domain.UnitKey, walletAddress string) ([]domain.HistoryEntry, error) {
	txs, err := m.ListForWallet(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make([]domain.HistoryEntry, 0, len(txs))
	for i := range txs {
		out = append(out, domain.EntryFor(&txs[i], walletAddress))
	}
	return out, nil
}

func (m memTxs) LastPosition(ctx context.Context, key domain.UnitKey) (*domain.Position, error) {
	txs, err := m.ListForWallet(ctx, key)
	if err != nil || len(txs) == 0 {
		return nil, err
	}
	last := txs[0].Position()
	for i := range txs {
		if last.Less(txs[i].Position()) {
			last = txs[i].Position()
		}
	}
	return &last, nil
}

func (m memTxs) Stats(_ context.Context, _ ports.StatsFilter) (*domain.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &domain.Stats{TotalTransactions: int64(len(m.txs))}, nil
}

type memAlerts struct{ *memStore }

func (m memAlerts) InsertIfAbsent(_ context.Context, tx pgx.Tx, a *domain.Alert) (bool, error) {
	ft := tx.(*fakeTx)
	k := "alert|" + a.DedupKey()
	m.mu.Lock()
	_, exists := m.alerts[a.DedupKey()]
	m.mu.Unlock()
	if exists || ft.staged[k] {
		return false, nil
	}
	ft.staged[k] = true
	a.ID = uuid.New()
	row := *a
	ft.ops = append(ft.ops, func() { m.alerts[row.DedupKey()] = row })
	return true, nil
}

func (m memAlerts) Get(_ context.Context, id uuid.UUID) (*domain.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, nil
}

func (m memAlerts) List(_ context.Context, _ ports.AlertFilter) ([]domain.Alert, int64, error) {
	out := m.alertList()
	return out, int64(len(out)), nil
}

func (m memAlerts) Resolve(_ context.Context, id uuid.UUID, at time.Time) (*domain.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, a := range m.alerts {
		if a.ID != id {
			continue
		}
		if a.Status == domain.AlertPending {
			a.Status = domain.AlertResolved
			a.ResolvedAt = &at
			m.alerts[k] = a
		}
		return &a, nil
	}
	return nil, nil
}

func (m memAlerts) CountByRule(_ context.Context, _ *uuid.UUID) ([]domain.RuleHitCount, error) {
	return nil, nil
}

type memSkips struct{ *memStore }

func (m memSkips) Record(_ context.Context, tx pgx.Tx, s *domain.SkippedRecord) error {
	ft := tx.(*fakeTx)
	row := *s
	row.ID = uuid.New()
	ft.ops = append(ft.ops, func() { m.skips = append(m.skips, row) })
	return nil
}

func (m memSkips) List(_ context.Context, _ ports.SkipFilter) ([]domain.SkippedRecord, int64, error) {
	out := m.skipList()
	return out, int64(len(out)), nil
}

// fakeAdapter serves a fixed ledger page by page. Queued errors are returned
// before any data.
type fakeAdapter struct {
	mu       sync.Mutex
	records  map[uuid.UUID][]domain.RawTransaction
	errs     []error
	calls    int
	onFetch  func()
	block    bool
	pageSize int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{records: make(map[uuid.UUID][]domain.RawTransaction), pageSize: 100}
}

func (a *fakeAdapter) add(walletID uuid.UUID, raws ...domain.RawTransaction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[walletID] = append(a.records[walletID], raws...)
}

func (a *fakeAdapter) fail(errs ...error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs = append(a.errs, errs...)
}

func (a *fakeAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *fakeAdapter) Fetch(ctx context.Context, wallet *domain.Wallet, cursor *domain.Cursor) (*ports.FetchResult, error) {
	a.mu.Lock()
	a.calls++
	hook := a.onFetch
	block := a.block
	var err error
	if len(a.errs) > 0 {
		err, a.errs = a.errs[0], a.errs[1:]
	}
	all := append([]domain.RawTransaction(nil), a.records[wallet.ID]...)
	size := a.pageSize
	a.mu.Unlock()

	if hook != nil {
		hook()
	}
	if block {
		<-ctx.Done()
		return nil, apperror.ErrAdapterUnavailable(ctx.Err())
	}
	if err != nil {
		return nil, err
	}

	res := &ports.FetchResult{}
	for i := range all {
		if cursor != nil && !cursor.Position().Less(all[i].Position()) {
			continue
		}
		res.Transactions = append(res.Transactions, all[i])
		if len(res.Transactions) == size {
			break
		}
	}
	if n := len(res.Transactions); n > 0 {
		next := res.Transactions[n-1].Position()
		res.Next = &next
	}
	return res, nil
}

// recordingNotifier collects enqueued alerts.
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (n *recordingNotifier) Enqueue(a domain.Alert) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return true
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

// fakeMetrics counts what the engine reports.
type fakeMetrics struct {
	mu            sync.Mutex
	batches       int
	skips         map[string]int
	adapterErrors map[string]int
	alerts        int
	states        map[domain.UnitKey]domain.UnitState
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		skips:         make(map[string]int),
		adapterErrors: make(map[string]int),
		states:        make(map[domain.UnitKey]domain.UnitState),
	}
}

func (m *fakeMetrics) ObserveBatch(string, domain.SyncResult, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
}

func (m *fakeMetrics) RecordSkip(_, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skips[reason]++
}

func (m *fakeMetrics) RecordAdapterError(_, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapterErrors[code]++
}

func (m *fakeMetrics) RecordAlert(string, domain.RuleType, domain.RiskLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts++
}

func (m *fakeMetrics) SetUnitState(key domain.UnitKey, state domain.UnitState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[key] = state
}

func (m *fakeMetrics) RecordNotification(string, bool) {}
func (m *fakeMetrics) RecordNotificationDropped()      {}

const testWalletAddr = "0x1111111111111111111111111111111111111111"

var errDBDown = errors.New("connection refused")

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// peer returns a distinct valid EVM address for n.
func peer(n int) string {
	return fmt.Sprintf("0x%040x", 0x1000+n)
}

// incoming builds a valid raw transfer into the test wallet at block 100+i.
func incoming(i int, amount string, from string, ts time.Time) domain.RawTransaction {
	return domain.RawTransaction{
		Hash:        fmt.Sprintf("0xtx%03d", i),
		From:        from,
		To:          testWalletAddr,
		Amount:      amount,
		Timestamp:   strconv.FormatInt(ts.Unix(), 10),
		BlockNumber: int64(100 + i),
		TxIndex:     0,
	}
}
