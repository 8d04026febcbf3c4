package main

import (
	"context"

	pgStorage "wallet-risk-monitor/internal/adapter/storage/postgres"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		pool, err := connectPostgres(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer pool.Close()

		return pgStorage.Migrate(ctx, pool, log)
	},
}
