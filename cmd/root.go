package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/config"
)

// cfg is populated before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ans-cli",
	Short: "Health-insurance operator expense ETL",
	Long:  "Downloads the regulator's quarterly accounting archives, consolidates and aggregates operator expenses, loads them into Postgres and serves them over HTTP.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := setup()
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// setup reads configuration from config.yaml and ANS_* variables and installs
// the global logger it describes.
func setup() (*config.Config, error) {
	c, err := config.Load()
	if err != nil {
		return nil, eris.Wrap(err, "ans-cli: load config")
	}
	if err := config.InitLogger(c.Log); err != nil {
		return nil, eris.Wrap(err, "ans-cli: init logger")
	}
	return c, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
