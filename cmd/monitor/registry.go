package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	pgStorage "wallet-risk-monitor/internal/adapter/storage/postgres"
	"wallet-risk-monitor/internal/core/domain"
	"wallet-risk-monitor/pkg/address"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage monitored wallets",
}

var walletAddCmd = &cobra.Command{
	Use:   "add [chain] [address] [name]",
	Short: "Register a wallet for monitoring",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		chainName := strings.ToLower(strings.TrimSpace(args[0]))
		addr, err := address.NewNormalizer(cfg.Sync.BitcoinNetwork).Normalize(chainName, args[1])
		if err != nil {
			return fmt.Errorf("invalid address: %w", err)
		}
		name := ""
		if len(args) > 2 {
			name = args[2]
		}

		ctx := context.Background()
		pool, err := connectPostgres(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer pool.Close()

		w := &domain.Wallet{
			ID:        uuid.New(),
			Address:   addr,
			Chain:     chainName,
			Name:      name,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		}
		if err := pgStorage.NewWalletRepo(pool).Create(ctx, w); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "wallet %s registered (%s %s)\n", w.ID, w.Chain, w.Address)
		return nil
	},
}

var walletSetActiveCmd = &cobra.Command{
	Use:   "set-active [wallet-id] [true|false]",
	Short: "Enable or disable monitoring for a wallet",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid wallet id: %w", err)
		}
		active, err := parseBoolArg(args[1])
		if err != nil {
			return err
		}

		ctx := context.Background()
		pool, err := connectPostgres(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer pool.Close()

		found, err := pgStorage.NewWalletRepo(pool).SetActive(ctx, id, active)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("wallet %s not found", id)
		}
		fmt.Fprintf(os.Stdout, "wallet %s active=%t\n", id, active)
		return nil
	},
}

var ruleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Manage alert rules",
}

var ruleAddCmd = &cobra.Command{
	Use:   "add [type] [threshold]",
	Short: "Add an alert rule (large_transfer, unknown_counterparty, frequency)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ruleType := domain.RuleType(args[0])
		if !ruleType.Valid() {
			return fmt.Errorf("unknown rule type %q", args[0])
		}
		var threshold float64
		if _, err := fmt.Sscanf(args[1], "%g", &threshold); err != nil {
			return fmt.Errorf("invalid threshold: %w", err)
		}
		name, _ := cmd.Flags().GetString("name")
		window, _ := cmd.Flags().GetDuration("window")
		if name == "" {
			name = string(ruleType)
		}

		ctx := context.Background()
		pool, err := connectPostgres(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer pool.Close()

		rule := &domain.AlertRule{
			ID:        uuid.New(),
			Name:      name,
			RuleType:  ruleType,
			Threshold: threshold,
			Window:    window,
			Enabled:   true,
			CreatedAt: time.Now().UTC(),
		}
		if err := pgStorage.NewRuleRepo(pool).Create(ctx, rule); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "rule %s added (%s threshold=%g)\n", rule.ID, rule.RuleType, rule.Threshold)
		return nil
	},
}

var ruleSetEnabledCmd = &cobra.Command{
	Use:   "set-enabled [rule-id] [true|false]",
	Short: "Enable or disable an alert rule",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid rule id: %w", err)
		}
		enabled, err := parseBoolArg(args[1])
		if err != nil {
			return err
		}

		ctx := context.Background()
		pool, err := connectPostgres(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer pool.Close()

		found, err := pgStorage.NewRuleRepo(pool).SetEnabled(ctx, id, enabled)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("rule %s not found", id)
		}
		fmt.Fprintf(os.Stdout, "rule %s enabled=%t\n", id, enabled)
		return nil
	},
}

func init() {
	walletCmd.AddCommand(walletAddCmd, walletSetActiveCmd)

	ruleAddCmd.Flags().String("name", "", "display name (defaults to the rule type)")
	ruleAddCmd.Flags().Duration("window", time.Hour, "frequency rule window")
	ruleCmd.AddCommand(ruleAddCmd, ruleSetEnabledCmd)
}

func parseBoolArg(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "yes", "1", "on":
		return true, nil
	case "false", "no", "0", "off":
		return false, nil
	}
	return false, fmt.Errorf("expected true or false, got %q", s)
}
