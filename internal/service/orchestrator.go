package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"wallet-risk-monitor/internal/core/domain"
	"wallet-risk-monitor/internal/core/ports"
	"wallet-risk-monitor/pkg/apperror"
	"wallet-risk-monitor/pkg/retry"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// OrchestratorConfig tunes scheduling, concurrency and retries.
type OrchestratorConfig struct {
	Interval        time.Duration
	Workers         int
	MaxAdapterCalls int
	FetchTimeout    time.Duration
	UnitTimeout     time.Duration
	LeaseTTL        time.Duration
	RetryAttempts   int
	RetryBaseDelay  time.Duration
	MaxBackoff      time.Duration
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaxAdapterCalls <= 0 {
		c.MaxAdapterCalls = 1
	}
	if c.UnitTimeout <= 0 {
		c.UnitTimeout = 2 * time.Minute
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = c.UnitTimeout + time.Minute
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 1
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * c.Interval
	}
	return c
}

// OrchestratorDeps are the collaborators of the sync engine.
type OrchestratorDeps struct {
	Wallets      ports.WalletRegistry
	Rules        ports.RuleRegistry
	Cursors      ports.CursorStore
	Transactions ports.TransactionRepository
	Alerts       ports.AlertRepository
	Skips        ports.SkipRepository
	Transactor   ports.DBTransactor
	Adapter      ports.ChainAdapter
	Leases       ports.LeaseManager
	Notifier     ports.AlertNotifier
	Metrics      ports.SyncMetrics
	Normalizer   *Normalizer
	History      *HistoryCache
}

// Orchestrator schedules sync units, one per (wallet, chain), and exposes
// manual triggers. Units run in parallel up to Workers; a unit never runs
// twice at once, across processes when the lease store is shared.
type Orchestrator struct {
	cfg  OrchestratorConfig
	deps OrchestratorDeps
	log  zerolog.Logger
	now  func() time.Time

	adapterSem *semaphore.Weighted
	backoff    retry.Policy

	mu    sync.Mutex
	units map[domain.UnitKey]*domain.UnitStatus
	fatal error
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg OrchestratorConfig, deps OrchestratorDeps, log zerolog.Logger) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		cfg:        cfg,
		deps:       deps,
		log:        log,
		now:        time.Now,
		adapterSem: semaphore.NewWeighted(int64(cfg.MaxAdapterCalls)),
		backoff:    retry.Policy{BaseDelay: cfg.Interval, MaxDelay: cfg.MaxBackoff},
		units:      make(map[domain.UnitKey]*domain.UnitStatus),
	}
}

// Run executes a cycle every Interval until ctx is canceled. It returns a
// non-nil error only for a fatal storage failure.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	o.log.Info().
		Dur("interval", o.cfg.Interval).
		Int("workers", o.cfg.Workers).
		Msg("orchestrator started")

	for {
		if err := o.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			o.log.Info().Msg("orchestrator stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle runs every eligible unit once.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	if err := o.Ping(ctx); err != nil {
		return err
	}

	wallets, err := o.deps.Wallets.ListActive(ctx)
	if err != nil {
		return o.storageFailure(ctx, err)
	}
	rules, err := o.deps.Rules.ListEnabled(ctx)
	if err != nil {
		return o.storageFailure(ctx, err)
	}
	o.retire(wallets)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)

	now := o.now()
	for i := range wallets {
		w := wallets[i]
		if !o.eligible(w.UnitKey(), now) {
			continue
		}
		g.Go(func() error {
			_, err := o.runUnit(gctx, &w, rules, domain.RunScheduled)
			if apperror.Is(err, apperror.CodeStorageFailure) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return o.storageFailure(ctx, err)
	}
	return nil
}

// TriggerSync runs the wallet's unit now, outside the schedule. It clears a
// permanent failure if the wallet has been reactivated.
func (o *Orchestrator) TriggerSync(ctx context.Context, walletID uuid.UUID) (*domain.SyncResult, error) {
	return o.trigger(ctx, walletID, domain.RunManual)
}

// TriggerAnalysis re-evaluates the wallet's stored ledger against the
// current rules. Only alerts that do not exist yet are created.
func (o *Orchestrator) TriggerAnalysis(ctx context.Context, walletID uuid.UUID) (*domain.SyncResult, error) {
	return o.trigger(ctx, walletID, domain.RunAnalysis)
}

func (o *Orchestrator) trigger(ctx context.Context, walletID uuid.UUID, kind domain.RunKind) (*domain.SyncResult, error) {
	if err := o.Ping(ctx); err != nil {
		return nil, apperror.ErrStorageFailure(err)
	}
	w, err := o.deps.Wallets.GetByID(ctx, walletID)
	if err != nil {
		return nil, apperror.ErrStorageFailure(err)
	}
	if w == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	if !w.Active {
		err := apperror.ErrPermanentUnitFailure("wallet is not active")
		o.finish(w.UnitKey(), nil, err)
		return nil, err
	}
	rules, err := o.deps.Rules.ListEnabled(ctx)
	if err != nil {
		return nil, apperror.ErrStorageFailure(err)
	}
	return o.runUnit(ctx, w, rules, kind)
}

// Units returns a snapshot of every known unit, ordered by wallet and chain.
func (o *Orchestrator) Units() []domain.UnitStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]domain.UnitStatus, 0, len(o.units))
	for _, st := range o.units {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WalletID != out[j].WalletID {
			return out[i].WalletID.String() < out[j].WalletID.String()
		}
		return out[i].Chain < out[j].Chain
	})
	return out
}

// Ping implements ports.HealthChecker. It fails once a storage error has
// stopped the engine.
func (o *Orchestrator) Ping(_ context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fatal
}

// Name implements ports.HealthChecker.
func (o *Orchestrator) Name() string { return "orchestrator" }

func (o *Orchestrator) storageFailure(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !apperror.Is(err, apperror.CodeStorageFailure) {
		err = apperror.ErrStorageFailure(err)
	}
	o.mu.Lock()
	if o.fatal == nil {
		o.fatal = err
	}
	o.mu.Unlock()
	o.log.Error().Err(err).Msg("orchestrator: storage failure, stopping")
	return err
}

// eligible reports whether a scheduled run may start. Permanent failures
// wait for a manual trigger; transient ones wait out their backoff.
func (o *Orchestrator) eligible(key domain.UnitKey, now time.Time) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.units[key]
	if !ok {
		return true
	}
	if st.State.IsBusy() {
		return false
	}
	if st.State == domain.UnitFailed && st.Failure == domain.FailurePermanent {
		return false
	}
	return st.NextEligible == nil || !now.Before(*st.NextEligible)
}

// retire marks units whose wallet left the active set as permanently failed.
func (o *Orchestrator) retire(active []domain.Wallet) {
	keep := make(map[domain.UnitKey]struct{}, len(active))
	for i := range active {
		keep[active[i].UnitKey()] = struct{}{}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for key, st := range o.units {
		if _, ok := keep[key]; ok || st.State.IsBusy() {
			continue
		}
		if st.State == domain.UnitFailed && st.Failure == domain.FailurePermanent {
			continue
		}
		st.State = domain.UnitFailed
		st.Failure = domain.FailurePermanent
		st.LastError = "wallet is not active"
		st.NextEligible = nil
		o.deps.Metrics.SetUnitState(key, st.State)
	}
}

// claim moves the unit into Fetching unless it is already running here.
func (o *Orchestrator) claim(key domain.UnitKey) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.units[key]
	if !ok {
		st = &domain.UnitStatus{WalletID: key.WalletID, Chain: key.Chain, State: domain.UnitIdle}
		o.units[key] = st
	}
	if st.State.IsBusy() {
		return false
	}
	now := o.now()
	st.State = domain.UnitFetching
	st.LastRun = &now
	o.deps.Metrics.SetUnitState(key, st.State)
	return true
}

// unclaim returns a unit that never started to its previous resting state.
func (o *Orchestrator) unclaim(key domain.UnitKey, prev domain.UnitState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.units[key]; ok {
		st.State = prev
		o.deps.Metrics.SetUnitState(key, st.State)
	}
}

func (o *Orchestrator) restingState(key domain.UnitKey) domain.UnitState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.units[key]; ok && !st.State.IsBusy() {
		return st.State
	}
	return domain.UnitIdle
}

func (o *Orchestrator) setState(key domain.UnitKey, state domain.UnitState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.units[key]; ok {
		st.State = state
	}
	o.deps.Metrics.SetUnitState(key, state)
}

// finish records the outcome of a run and schedules the next one.
func (o *Orchestrator) finish(key domain.UnitKey, res *domain.SyncResult, runErr error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.units[key]
	if !ok {
		st = &domain.UnitStatus{WalletID: key.WalletID, Chain: key.Chain}
		o.units[key] = st
	}
	now := o.now()

	switch {
	case runErr == nil:
		st.State = domain.UnitIdle
		st.Failure = domain.FailureNone
		st.LastError = ""
		st.LastSuccess = &now
		st.NextEligible = nil
		st.ConsecutiveFailures = 0
		st.Batches++
		if res != nil && res.Cursor != nil && (st.Cursor == nil || st.Cursor.Less(*res.Cursor)) {
			pos := *res.Cursor
			st.Cursor = &pos
		}
	case apperror.Is(runErr, apperror.CodeUnitTimeout):
		// A timed-out run is abandoned, not failed; the next cycle retries.
		st.State = domain.UnitIdle
		st.LastError = runErr.Error()
	case apperror.Is(runErr, apperror.CodePermanentUnitFailure):
		st.State = domain.UnitFailed
		st.Failure = domain.FailurePermanent
		st.LastError = runErr.Error()
		st.NextEligible = nil
	default:
		st.State = domain.UnitFailed
		st.Failure = domain.FailureTransient
		st.LastError = runErr.Error()
		st.ConsecutiveFailures++
		next := now.Add(o.backoff.Backoff(st.ConsecutiveFailures))
		st.NextEligible = &next
	}
	o.deps.Metrics.SetUnitState(key, st.State)
}

func isFatal(err error) bool {
	return apperror.Is(err, apperror.CodeStorageFailure)
}

var errLeaseLost = errors.New("lease lost")
