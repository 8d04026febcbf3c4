// Package metrics exposes engine counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"wallet-risk-monitor/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var unitStates = []domain.UnitState{
	domain.UnitIdle,
	domain.UnitFetching,
	domain.UnitProcessing,
	domain.UnitCommitting,
	domain.UnitFailed,
}

// Collector implements ports.SyncMetrics.
type Collector struct {
	batches       *prometheus.CounterVec
	fetched       *prometheus.CounterVec
	stored        *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	skipReasons   *prometheus.CounterVec
	adapterErrors *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	unitState     *prometheus.GaugeVec
	notifications *prometheus.CounterVec
	dropped       prometheus.Counter
}

// New registers the engine metrics under namespace on reg.
func New(namespace string, reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_batches_total",
			Help:      "Sync batches run, by chain, kind and whether the batch committed.",
		}, []string{"chain", "kind", "committed"}),
		fetched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_fetched_total",
			Help:      "Raw records returned by chain adapters.",
		}, []string{"chain"}),
		stored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_stored_total",
			Help:      "Normalized transactions newly written to the ledger.",
		}, []string{"chain"}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_skipped_total",
			Help:      "Malformed records recorded and skipped.",
		}, []string{"chain"}),
		batchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_batch_duration_seconds",
			Help:      "Wall time of one fetch-process-commit batch.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"chain"}),
		skipReasons: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skip_reasons_total",
			Help:      "Skipped records by offending field.",
		}, []string{"chain", "reason"}),
		adapterErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_errors_total",
			Help:      "Chain adapter failures by error code.",
		}, []string{"chain", "code"}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Alerts persisted, by rule type and risk level.",
		}, []string{"chain", "rule_type", "risk_level"}),
		unitState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unit_state",
			Help:      "1 for the state each sync unit is currently in.",
		}, []string{"wallet_id", "chain", "state"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification sends by sink and outcome.",
		}, []string{"sink", "ok"}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Alerts not queued because the dispatcher was full or closed.",
		}),
	}
}

func (c *Collector) ObserveBatch(chain string, result domain.SyncResult, took time.Duration) {
	c.batches.WithLabelValues(chain, string(result.Kind), strconv.FormatBool(result.Committed)).Inc()
	c.fetched.WithLabelValues(chain).Add(float64(result.Fetched))
	c.stored.WithLabelValues(chain).Add(float64(result.Stored))
	c.skipped.WithLabelValues(chain).Add(float64(result.Skipped))
	c.batchDuration.WithLabelValues(chain).Observe(took.Seconds())
}

func (c *Collector) RecordSkip(chain, reason string) {
	c.skipReasons.WithLabelValues(chain, reason).Inc()
}

func (c *Collector) RecordAdapterError(chain, code string) {
	c.adapterErrors.WithLabelValues(chain, code).Inc()
}

func (c *Collector) RecordAlert(chain string, rule domain.RuleType, level domain.RiskLevel) {
	c.alerts.WithLabelValues(chain, string(rule), string(level)).Inc()
}

func (c *Collector) SetUnitState(key domain.UnitKey, state domain.UnitState) {
	wallet := key.WalletID.String()
	for _, s := range unitStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.unitState.WithLabelValues(wallet, key.Chain, string(s)).Set(v)
	}
}

func (c *Collector) RecordNotification(sink string, ok bool) {
	c.notifications.WithLabelValues(sink, strconv.FormatBool(ok)).Inc()
}

func (c *Collector) RecordNotificationDropped() {
	c.dropped.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Nop discards everything. Used when metrics are disabled.
type Nop struct{}

func (Nop) ObserveBatch(string, domain.SyncResult, time.Duration) {}
func (Nop) RecordSkip(string, string) {}
func (Nop) RecordAdapterError(string, string) {}
func (Nop) RecordAlert(string, domain.RuleType, domain.RiskLevel) {}
func (Nop) SetUnitState(domain.UnitKey, domain.UnitState) {}
func (Nop) RecordNotification(string, bool) {}
func (Nop) RecordNotificationDropped() {}
