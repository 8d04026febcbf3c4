package domain

import (
	"time"

	"github.com/google/uuid"
)

// UnitState is the lifecycle of a (wallet, chain) sync unit.
type UnitState string

const (
	UnitIdle       UnitState = "idle"
	UnitFetching   UnitState = "fetching"
	UnitProcessing UnitState = "processing"
	UnitCommitting UnitState = "committing"
	UnitFailed     UnitState = "failed"
)

// IsBusy reports whether a run is in flight.
func (s UnitState) IsBusy() bool {
	return s == UnitFetching || s == UnitProcessing || s == UnitCommitting
}

// FailureKind qualifies UnitFailed.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureTransient FailureKind = "transient"
	FailurePermanent FailureKind = "permanent"
)

// UnitStatus is an operator-facing snapshot of one sync unit.
type UnitStatus struct {
	WalletID            uuid.UUID   `json:"wallet_id"`
	Chain               string      `json:"chain"`
	State               UnitState   `json:"state"`
	Failure             FailureKind `json:"failure,omitempty"`
	LastError           string      `json:"last_error,omitempty"`
	LastRun             *time.Time  `json:"last_run,omitempty"`
	LastSuccess         *time.Time  `json:"last_success,omitempty"`
	NextEligible        *time.Time  `json:"next_eligible,omitempty"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	Batches             int64       `json:"batches"`
	Cursor              *Position   `json:"cursor,omitempty"`
}

// RunKind distinguishes why a unit ran.
type RunKind string

const (
	RunScheduled RunKind = "scheduled"
	RunManual    RunKind = "manual"
	RunAnalysis  RunKind = "analysis"
)

// SyncResult summarizes one unit run.
type SyncResult struct {
	WalletID  uuid.UUID `json:"wallet_id"`
	Chain     string    `json:"chain"`
	Kind      RunKind   `json:"kind"`
	Fetched   int       `json:"fetched"`
	Stored    int       `json:"stored"`
	Skipped   int       `json:"skipped"`
	Alerts    int       `json:"alerts"`
	Cursor    *Position `json:"cursor,omitempty"`
	Committed bool      `json:"committed"`
	Rewound   bool      `json:"rewound"`
}

// Stats aggregates the transaction ledger for dashboards.
type Stats struct {
	TotalTransactions    int64            `json:"total_transactions"`
	TotalVolume          float64          `json:"total_volume"`
	AverageAmount        float64          `json:"avg_amount"`
	ContractInteractions int64            `json:"contract_interactions"`
	AnomalyCount         int64            `json:"anomaly_count"`
	PendingAlerts        int64            `json:"pending_alerts"`
	ByChain              map[string]int64 `json:"by_chain"`
}

// RuleHitCount is the number of alerts a rule produced.
type RuleHitCount struct {
	RuleID   uuid.UUID `json:"rule_id"`
	RuleType RuleType  `json:"rule_type"`
	Total    int64     `json:"total"`
	Pending  int64     `json:"pending"`
}
