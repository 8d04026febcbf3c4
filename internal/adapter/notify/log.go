package notify

import (
	"context"

	"wallet-risk-monitor/internal/core/domain"

	"github.com/rs/zerolog"
)

// LogSink writes alerts to the structured log.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, a *domain.Alert) error {
	s.log.Warn().
		Str("alert_id", a.ID.String()).
		Str("wallet_id", a.WalletID.String()).
		Str("chain", a.Chain).
		Str("rule_type", string(a.RuleType)).
		Str("risk_level", string(a.RiskLevel)).
		Str("tx_hash", a.TransactionHash).
		Msg(a.Message)
	return nil
}
