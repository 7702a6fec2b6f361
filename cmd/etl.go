package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/ans-cli/internal/config"
	"github.com/sells-group/ans-cli/internal/db"
	"github.com/sells-group/ans-cli/internal/etl"
	"github.com/sells-group/ans-cli/internal/etl/pipeline"
	"github.com/sells-group/ans-cli/internal/fetcher"
)

var discoverLimit int

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find the latest quarters and download their archives",
	RunE: func(cmd *cobra.Command, args []string) error {
		if discoverLimit > 0 {
			cfg.Source.QuarterLimit = discoverLimit
		}
		return runStageCommand(cmd, pipeline.StageDiscover)
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Consolidate downloaded archives into one expense file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStageCommand(cmd, pipeline.StageExtract)
	},
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Clean the consolidated file and compute per-operator statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStageCommand(cmd, pipeline.StageAggregate)
	},
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load operators, expenses and statistics into Postgres",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStageCommand(cmd, pipeline.StageLoad)
	},
}

func init() {
	discoverCmd.Flags().IntVar(&discoverLimit, "limit", 0, "number of quarters to retrieve (default from config)")
	rootCmd.AddCommand(discoverCmd, extractCmd, aggregateCmd, loadCmd)
}

func runStageCommand(cmd *cobra.Command, stage string) error {
	mode := "etl"
	if stage == pipeline.StageLoad {
		mode = "db"
	}
	if err := cfg.Validate(mode); err != nil {
		return err
	}
	_, err := runStages(cmd.Context(), cfg, []string{stage})
	return err
}

// artifactPaths resolves the artifact locations from the paths section.
func artifactPaths(c *config.Config) pipeline.Paths {
	return pipeline.NewPaths(
		c.Paths.RawDir,
		c.Paths.ProcessedDir,
		c.Paths.ConsolidatedFile,
		c.Paths.AggregatedFile,
		c.Paths.SummaryFile,
		c.Paths.ReportFile,
	)
}

func newFetcher(c *config.Config) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  c.Source.UserAgent,
		Timeout:    c.Source.Timeout(),
		MaxRetries: c.Source.MaxRetries,
		RateLimit:  rate.Limit(c.Source.RateLimit),
	})
}

// newEngine wires every stage. The load stage and the run log are only
// available when pool is non-nil.
func newEngine(c *config.Config, f fetcher.Fetcher, pool db.Pool) *pipeline.Engine {
	stages := []pipeline.Stage{
		&pipeline.DiscoverStage{Fetcher: f, BaseURL: c.Source.BaseURL, Limit: c.Source.QuarterLimit},
		&pipeline.ExtractStage{Fetcher: f, RegistryURL: c.Source.RegistryURL},
		&pipeline.AggregateStage{},
	}
	if pool == nil {
		return pipeline.NewEngine(nil, stages...)
	}
	stages = append(stages, &pipeline.LoadStage{Pool: pool})
	return pipeline.NewEngine(etl.NewRunLog(pool), stages...)
}

// runStages runs the named stages, or every available stage when names is
// empty. A database connection is opened when one is configured; the schema
// is migrated before any stage runs.
func runStages(ctx context.Context, c *config.Config, names []string) (*pipeline.Summary, error) {
	log := zap.L().With(zap.String("command", "etl"))

	var pool db.Pool
	if c.Store.DatabaseURL != "" {
		p, err := openPool(ctx, c)
		if err != nil {
			return nil, err
		}
		defer p.Close()

		if _, err := etl.Migrate(ctx, p); err != nil {
			return nil, eris.Wrap(err, "etl: migrate")
		}
		pool = p
	} else {
		log.Warn("no database configured, load stage and run log disabled")
	}

	engine := newEngine(c, newFetcher(c), pool)
	summary, err := engine.Run(ctx, pipeline.RunOpts{
		Stages: names,
		Paths:  artifactPaths(c),
	})
	if err != nil {
		return summary, err
	}

	for _, s := range summary.Stages {
		log.Info("stage summary",
			zap.String("stage", s.Name),
			zap.String("status", s.Status),
			zap.Int64("rows", s.Rows),
			zap.String("elapsed", s.Elapsed),
		)
	}
	return summary, nil
}
