package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/etl"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the Postgres schema",
	Long:  "Creates the operator, expense, aggregate and run log tables, applying only the migration files the database has not seen yet.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		applied, err := etl.Migrate(ctx, pool)
		if err != nil {
			return eris.Wrap(err, "migrate")
		}

		zap.L().With(zap.String("command", "migrate")).Info("schema ready",
			zap.Int("applied", len(applied)),
			zap.Strings("files", applied),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
