package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/etl/pipeline"
)

var runStagesFlag string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ETL stages in order",
	Long: `Runs discover, extract, aggregate and load in order, stopping at the first failure.

Use --stages to run a subset, e.g. --stages extract,aggregate. Without --stages
every available stage runs; load is skipped when no database is configured.
A YAML run summary is written to paths.processed_dir/paths.summary_file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var names []string
		if runStagesFlag != "" {
			parsed, err := pipeline.ParseStages(runStagesFlag)
			if err != nil {
				return err
			}
			names = parsed
		}

		if err := cfg.Validate("etl"); err != nil {
			return err
		}

		summary, err := runStages(cmd.Context(), cfg, names)
		if err != nil {
			return err
		}
		zap.L().Info("run finished", zap.String("run_id", summary.RunID), zap.Int("stages", len(summary.Stages)))
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runStagesFlag, "stages", "", "comma-separated stages to run (discover,extract,aggregate,load)")
	rootCmd.AddCommand(runCmd)
}
