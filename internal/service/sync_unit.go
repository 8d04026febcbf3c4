package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"wallet-risk-monitor/internal/core/domain"
	"wallet-risk-monitor/internal/core/ports"
	"wallet-risk-monitor/pkg/apperror"
	"wallet-risk-monitor/pkg/retry"

	"github.com/google/uuid"
)

// batch is the in-memory outcome of the Processing stage.
type batch struct {
	txs    []*domain.Transaction
	alerts []domain.Alert
	skips  []domain.SkippedRecord
	// last is the position of the last record handled, stored or skipped.
	last *domain.Position
	// stop is set when a record failed for a reason other than being
	// malformed; the batch ends before that record.
	stop error
}

func leaseKey(key domain.UnitKey) string {
	return "sync:" + key.String()
}

// runUnit executes one run of a unit under its lease. Scheduled, manual and
// analysis runs share this path so they exclude each other.
func (o *Orchestrator) runUnit(ctx context.Context, registered *domain.Wallet, rules []domain.AlertRule, kind domain.RunKind) (*domain.SyncResult, error) {
	key := registered.UnitKey()
	wallet, err := o.deps.Normalizer.Canonical(registered)
	if err != nil {
		o.finish(key, nil, err)
		return nil, err
	}
	prev := o.restingState(key)
	if !o.claim(key) {
		return nil, apperror.ErrUnitBusy()
	}

	lease, ok, err := o.deps.Leases.TryAcquire(ctx, leaseKey(key), o.cfg.LeaseTTL)
	if err != nil {
		o.unclaim(key, prev)
		o.log.Warn().Err(err).Str("unit", key.String()).Msg("sync: lease backend unavailable")
		return nil, apperror.InternalError(fmt.Errorf("acquire lease: %w", err))
	}
	if !ok {
		o.unclaim(key, prev)
		return nil, apperror.ErrUnitBusy()
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			o.log.Warn().Err(err).Str("unit", key.String()).Msg("sync: lease release failed")
		}
	}()

	uctx, cancel := context.WithTimeout(ctx, o.cfg.UnitTimeout)
	defer cancel()

	started := o.now()
	res := &domain.SyncResult{WalletID: wallet.ID, Chain: wallet.Chain, Kind: kind}

	if kind == domain.RunAnalysis {
		err = o.analyze(uctx, wallet, lease, rules, res)
	} else {
		err = o.sync(uctx, wallet, lease, rules, res)
	}
	if err != nil && isFatal(err) && ctx.Err() == nil {
		o.storageFailure(ctx, err)
	}

	o.finish(key, res, err)
	o.deps.Metrics.ObserveBatch(wallet.Chain, *res, o.now().Sub(started))

	ev := o.log.Info()
	if err != nil {
		ev = o.log.Warn().Err(err)
	}
	ev.Str("unit", key.String()).
		Str("kind", string(kind)).
		Int("fetched", res.Fetched).
		Int("stored", res.Stored).
		Int("skipped", res.Skipped).
		Int("alerts", res.Alerts).
		Bool("committed", res.Committed).
		Msg("sync: run finished")

	if err != nil {
		return res, err
	}
	return res, nil
}

// sync is Fetching -> Processing -> Committing for one page.
func (o *Orchestrator) sync(ctx context.Context, wallet *domain.Wallet, lease ports.Lease, rules []domain.AlertRule, res *domain.SyncResult) error {
	key := wallet.UnitKey()
	store := context.WithoutCancel(ctx)

	cursor, err := o.deps.Cursors.Get(store, key)
	if err != nil {
		return apperror.ErrStorageFailure(err)
	}

	page, err := o.fetch(ctx, wallet, cursor)
	if apperror.Is(err, apperror.CodeInvalidCursor) {
		o.log.Warn().Err(err).Str("unit", key.String()).Msg("sync: cursor rejected, rewinding to last stored transaction")
		pos, perr := o.deps.Transactions.LastPosition(store, key)
		if perr != nil {
			return apperror.ErrStorageFailure(perr)
		}
		var rewound *domain.Cursor
		if pos != nil {
			rewound = domain.CursorAt(key, *pos)
		}
		res.Rewound = true
		page, err = o.fetch(ctx, wallet, rewound)
	}
	if err != nil {
		return err
	}
	res.Fetched = len(page.Transactions)

	if err := o.checkpoint(ctx, wallet.ID, lease); err != nil {
		return err
	}
	o.setState(key, domain.UnitProcessing)

	history, err := o.deps.History.Load(store, wallet)
	if err != nil {
		return apperror.ErrStorageFailure(err)
	}
	b := o.process(wallet, page.Transactions, history, rules)

	if err := o.checkpoint(ctx, wallet.ID, lease); err != nil {
		return err
	}
	o.setState(key, domain.UnitCommitting)

	if err := o.commit(store, key, cursor, b, res); err != nil {
		return err
	}
	return b.stop
}

// fetch calls the adapter under the shared semaphore, retrying transient
// failures inside the unit.
func (o *Orchestrator) fetch(ctx context.Context, wallet *domain.Wallet, cursor *domain.Cursor) (*ports.FetchResult, error) {
	var page *ports.FetchResult
	policy := retry.Policy{
		MaxAttempts: o.cfg.RetryAttempts,
		BaseDelay:   o.cfg.RetryBaseDelay,
		MaxDelay:    o.cfg.MaxBackoff,
		Classify: func(err error) retry.Class {
			if apperror.Is(err, apperror.CodeAdapterUnavailable) {
				return retry.Retryable
			}
			return retry.Fatal
		},
		OnRetry: func(attempt int, wait time.Duration, err error) {
			o.log.Warn().Err(err).
				Str("wallet_id", wallet.ID.String()).
				Str("chain", wallet.Chain).
				Int("attempt", attempt).
				Dur("wait", wait).
				Msg("sync: adapter unavailable, retrying")
		},
	}

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		if err := o.adapterSem.Acquire(ctx, 1); err != nil {
			return apperror.ErrUnitTimeout()
		}
		defer o.adapterSem.Release(1)

		fctx := ctx
		if o.cfg.FetchTimeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(ctx, o.cfg.FetchTimeout)
			defer cancel()
		}
		p, err := o.deps.Adapter.Fetch(fctx, wallet, cursor)
		if err != nil {
			err = classifyAdapterError(err)
			o.deps.Metrics.RecordAdapterError(wallet.Chain, apperror.CodeOf(err))
			return err
		}
		if p == nil {
			p = &ports.FetchResult{}
		}
		page = p
		return nil
	})
	if err != nil {
		if ctx.Err() != nil && !apperror.Is(err, apperror.CodePermanentUnitFailure) {
			return nil, apperror.ErrUnitTimeout()
		}
		return nil, err
	}
	return page, nil
}

// classifyAdapterError maps anything that is not already a known adapter
// error to AdapterUnavailable, so a misbehaving adapter is retried rather
// than killing the unit.
func classifyAdapterError(err error) error {
	switch apperror.CodeOf(err) {
	case apperror.CodeAdapterUnavailable, apperror.CodeInvalidCursor, apperror.CodePermanentUnitFailure:
		return err
	}
	return apperror.ErrAdapterUnavailable(err)
}

// process normalizes and evaluates records in order, extending history as
// it goes so each record sees the ones before it.
func (o *Orchestrator) process(wallet *domain.Wallet, raws []domain.RawTransaction, history *domain.WalletHistory, rules []domain.AlertRule) *batch {
	b := &batch{}
	now := o.now().UTC()

	for i := range raws {
		raw := &raws[i]
		pos := raw.Position()

		tx, err := o.deps.Normalizer.Normalize(wallet, raw, history)
		if err != nil {
			if !apperror.Is(err, apperror.CodeMalformedRecord) {
				b.stop = err
				break
			}
			b.skips = append(b.skips, skippedRecord(wallet, raw, err, now))
			b.last = &pos
			o.deps.Metrics.RecordSkip(wallet.Chain, skipReason(err))
			o.log.Warn().Err(err).
				Str("wallet_id", wallet.ID.String()).
				Str("chain", wallet.Chain).
				Str("hash", raw.Hash).
				Int64("block", raw.BlockNumber).
				Int64("index", raw.TxIndex).
				Msg("sync: skipping malformed record")
			continue
		}

		tx.CreatedAt = now
		for _, a := range Evaluate(tx, wallet.Address, history.Before(tx), rules) {
			a.CreatedAt = now
			b.alerts = append(b.alerts, a)
		}
		history.Append(domain.EntryFor(tx, wallet.Address))
		b.txs = append(b.txs, tx)
		b.last = &pos
	}
	return b
}

// commit persists the batch atomically, then advances the cursor. The
// cursor is written only after the ledger rows are durable. res.Cursor is
// the stored position afterwards: a batch that ends behind prior (after a
// rewind) leaves it at prior, as the store does.
func (o *Orchestrator) commit(ctx context.Context, key domain.UnitKey, prior *domain.Cursor, b *batch, res *domain.SyncResult) error {
	created, err := o.persist(ctx, b.txs, b.alerts, b.skips, res)
	if err != nil {
		return err
	}

	if b.last != nil {
		if err := o.deps.Cursors.Commit(ctx, domain.CursorAt(key, *b.last)); err != nil {
			return apperror.ErrStorageFailure(err)
		}
		pos := *b.last
		if prior != nil && !prior.Position().Less(pos) {
			pos = prior.Position()
		}
		res.Cursor = &pos
	}
	res.Committed = true
	res.Skipped = len(b.skips)
	o.deps.History.Invalidate(key)
	o.publish(created)
	return nil
}

// persist writes transactions, alerts and skips in one database transaction
// and returns the alerts that were actually created.
func (o *Orchestrator) persist(ctx context.Context, txs []*domain.Transaction, alerts []domain.Alert, skips []domain.SkippedRecord, res *domain.SyncResult) (created []domain.Alert, err error) {
	if len(txs) == 0 && len(alerts) == 0 && len(skips) == 0 {
		return nil, nil
	}

	dbTx, err := o.deps.Transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrStorageFailure(err)
	}
	defer func() {
		if err != nil {
			_ = dbTx.Rollback(ctx)
		}
	}()

	stored := 0
	for _, tx := range txs {
		inserted, ierr := o.deps.Transactions.Insert(ctx, dbTx, tx)
		if ierr != nil {
			return nil, apperror.ErrStorageFailure(ierr)
		}
		if inserted {
			stored++
		}
	}
	for i := range alerts {
		a := alerts[i]
		inserted, ierr := o.deps.Alerts.InsertIfAbsent(ctx, dbTx, &a)
		if ierr != nil {
			return nil, apperror.ErrStorageFailure(ierr)
		}
		if inserted {
			created = append(created, a)
		}
	}
	for i := range skips {
		if serr := o.deps.Skips.Record(ctx, dbTx, &skips[i]); serr != nil {
			return nil, apperror.ErrStorageFailure(serr)
		}
	}

	if cerr := dbTx.Commit(ctx); cerr != nil {
		err = apperror.ErrStorageFailure(cerr)
		return nil, err
	}
	res.Stored = stored
	res.Alerts = len(created)
	return created, nil
}

// publish hands created alerts to the notifier. It never blocks.
func (o *Orchestrator) publish(created []domain.Alert) {
	for i := range created {
		a := created[i]
		o.deps.Metrics.RecordAlert(a.Chain, a.RuleType, a.RiskLevel)
		if o.deps.Notifier != nil {
			o.deps.Notifier.Enqueue(a)
		}
	}
}

// analyze re-evaluates the stored ledger with the current rules.
func (o *Orchestrator) analyze(ctx context.Context, wallet *domain.Wallet, lease ports.Lease, rules []domain.AlertRule, res *domain.SyncResult) error {
	key := wallet.UnitKey()
	store := context.WithoutCancel(ctx)
	o.setState(key, domain.UnitProcessing)

	txs, err := o.deps.Transactions.ListForWallet(store, key)
	if err != nil {
		return apperror.ErrStorageFailure(err)
	}
	entries := make([]domain.HistoryEntry, 0, len(txs))
	for i := range txs {
		entries = append(entries, domain.EntryFor(&txs[i], wallet.Address))
	}
	history := domain.NewWalletHistory(wallet.ID, wallet.Chain, entries)

	now := o.now().UTC()
	var candidates []domain.Alert
	for i := range txs {
		tx := &txs[i]
		for _, a := range Evaluate(tx, wallet.Address, history.Before(tx), rules) {
			a.CreatedAt = now
			candidates = append(candidates, a)
		}
	}

	if err := o.checkpoint(ctx, wallet.ID, lease); err != nil {
		return err
	}
	o.setState(key, domain.UnitCommitting)

	created, err := o.persist(store, nil, candidates, nil, res)
	if err != nil {
		return err
	}
	res.Committed = true
	o.publish(created)
	return nil
}

// checkpoint runs at stage boundaries: the unit must still be within its
// deadline, hold its lease, and its wallet must still be active.
func (o *Orchestrator) checkpoint(ctx context.Context, walletID uuid.UUID, lease ports.Lease) error {
	if ctx.Err() != nil {
		return apperror.ErrUnitTimeout()
	}
	store := context.WithoutCancel(ctx)

	held, err := lease.Held(store)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("check lease: %w", err))
	}
	if !held {
		return apperror.Wrap(apperror.CodeUnitBusy, "Sync unit lease lost", http.StatusConflict, errLeaseLost)
	}

	w, err := o.deps.Wallets.GetByID(store, walletID)
	if err != nil {
		return apperror.ErrStorageFailure(err)
	}
	if w == nil || !w.Active {
		return apperror.ErrPermanentUnitFailure("wallet is not active")
	}
	return nil
}

func skippedRecord(wallet *domain.Wallet, raw *domain.RawTransaction, cause error, now time.Time) domain.SkippedRecord {
	payload, err := json.Marshal(raw)
	if err != nil {
		payload = []byte("{}")
	}
	return domain.SkippedRecord{
		WalletID:    wallet.ID,
		Chain:       wallet.Chain,
		Hash:        raw.Hash,
		BlockNumber: raw.BlockNumber,
		TxIndex:     raw.TxIndex,
		Reason:      cause.Error(),
		Raw:         payload,
		CreatedAt:   now,
	}
}

// skipReason is the bounded metric label for a skip: the message naming the
// offending field.
func skipReason(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "unknown"
}
