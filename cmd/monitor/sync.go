package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"wallet-risk-monitor/internal/core/domain"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync [wallet-id]",
	Short: "Run one sync cycle (or one wallet) and exit",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		analyze, _ := cmd.Flags().GetBool("analyze")
		if analyze && len(args) == 0 {
			return fmt.Errorf("--analyze needs a wallet id")
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.close()

		a.dispatcher.Start()
		defer a.dispatcher.Close()

		if len(args) == 0 {
			if err := a.orchestrator.RunCycle(ctx); err != nil {
				return err
			}
			printUnits(a.orchestrator.Units())
			return nil
		}

		walletID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid wallet id: %w", err)
		}
		var result *domain.SyncResult
		if analyze {
			result, err = a.orchestrator.TriggerAnalysis(ctx, walletID)
		} else {
			result, err = a.orchestrator.TriggerSync(ctx, walletID)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s %s: fetched=%d stored=%d skipped=%d alerts=%d committed=%t\n",
			result.Kind, result.WalletID, result.Fetched, result.Stored, result.Skipped, result.Alerts, result.Committed)
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("analyze", false, "re-evaluate rules over the stored ledger instead of fetching")
}

func printUnits(units []domain.UnitStatus) {
	for _, u := range units {
		line := fmt.Sprintf("%s/%s state=%s batches=%d", u.WalletID, u.Chain, u.State, u.Batches)
		if u.LastError != "" {
			line += " error=" + u.LastError
		}
		fmt.Fprintln(os.Stdout, line)
	}
}
