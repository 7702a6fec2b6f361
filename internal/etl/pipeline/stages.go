package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/db"
	"github.com/sells-group/ans-cli/internal/etl/aggregate"
	"github.com/sells-group/ans-cli/internal/etl/artifact"
	"github.com/sells-group/ans-cli/internal/etl/discover"
	"github.com/sells-group/ans-cli/internal/etl/extract"
	"github.com/sells-group/ans-cli/internal/etl/load"
	"github.com/sells-group/ans-cli/internal/fetcher"
)

// DiscoverStage finds the most recent periods on the listing and downloads
// their archives into the raw directory.
type DiscoverStage struct {
	Fetcher fetcher.Fetcher
	BaseURL string
	Limit   int
}

// Name implements Stage.
func (s *DiscoverStage) Name() string { return StageDiscover }

// Run implements Stage.
func (s *DiscoverStage) Run(ctx context.Context, state *State) (*StageResult, error) {
	quarters := discover.NewDiscoverer(s.Fetcher).Discover(ctx, s.BaseURL, s.Limit)
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "discover: cancelled")
	}

	summary, err := discover.NewRetriever(s.Fetcher, state.Paths.RawDir).FetchAll(ctx, quarters)
	if err != nil {
		return nil, err
	}
	state.Summary.Retrieve = &summary

	return &StageResult{
		Rows: int64(summary.Downloaded + summary.Skipped),
		Metadata: map[string]any{
			"discovered": len(quarters),
			"downloaded": summary.Downloaded,
			"skipped":    summary.Skipped,
			"missing":    summary.Missing,
			"failed":     summary.Failed,
		},
	}, nil
}

// ExtractStage consolidates every retrieved archive into one CSV, enriched
// from the operator registry.
type ExtractStage struct {
	Fetcher     fetcher.Fetcher
	RegistryURL string
}

// Name implements Stage.
func (s *ExtractStage) Name() string { return StageExtract }

// Run implements Stage.
func (s *ExtractStage) Run(ctx context.Context, state *State) (*StageResult, error) {
	log := zap.L().With(zap.String("component", "pipeline.extract"))

	registry, err := extract.LoadRegistry(ctx, s.Fetcher, s.RegistryURL)
	if err != nil {
		log.Warn("operator registry unavailable, rows will not be enriched", zap.Error(err))
	}

	records, summary, err := extract.NewExtractor(registry).ExtractAll(ctx, state.Paths.RawDir)
	if err != nil {
		return nil, err
	}
	state.Summary.Extract = summary

	if err := artifact.WriteConsolidated(state.Paths.Consolidated, records); err != nil {
		return nil, err
	}
	log.Info("consolidated file written",
		zap.String("path", state.Paths.Consolidated),
		zap.Int("rows", len(records)),
	)

	return &StageResult{
		Rows: int64(len(records)),
		Metadata: map[string]any{
			"archives":        summary.Archives,
			"failed_archives": summary.FailedArchives,
			"enriched":        summary.Enriched,
			"registry_size":   registry.Len(),
		},
	}, nil
}

// AggregateStage cleans the consolidated records, resolves the account
// hierarchy and writes per-operator statistics.
type AggregateStage struct{}

// Name implements Stage.
func (s *AggregateStage) Name() string { return StageAggregate }

// Run implements Stage.
func (s *AggregateStage) Run(_ context.Context, state *State) (*StageResult, error) {
	log := zap.L().With(zap.String("component", "pipeline.aggregate"))

	records, err := artifact.ReadConsolidated(state.Paths.Consolidated)
	if err != nil {
		return nil, err
	}

	cleaned, drops := aggregate.Clean(records)
	dedup := aggregate.DeduplicateHierarchy(cleaned)
	stats := aggregate.Aggregate(dedup.Records, drops)

	if err := artifact.WriteAggregated(state.Paths.Aggregated, stats); err != nil {
		return nil, err
	}
	if state.Paths.Report != "" {
		if err := aggregate.WriteReport(state.Paths.Report, stats); err != nil {
			return nil, err
		}
		log.Info("report written", zap.String("path", state.Paths.Report))
	}

	state.Summary.Aggregate = &AggregateSummary{
		Input:        len(records),
		Cleaned:      len(cleaned),
		Deduplicated: len(dedup.Records),
		Groups:       len(stats),
		Fallback:     dedup.Fallback,
		Dropped:      drops,
	}

	return &StageResult{
		Rows: int64(len(stats)),
		Metadata: map[string]any{
			"input":              len(records),
			"dropped":            drops.Total(),
			"hierarchy_fallback": dedup.Fallback,
		},
	}, nil
}

// LoadStage writes the operator dimension, the expense facts and the
// aggregate table.
type LoadStage struct {
	Pool db.Pool
}

// Name implements Stage.
func (s *LoadStage) Name() string { return StageLoad }

// Run implements Stage.
func (s *LoadStage) Run(ctx context.Context, state *State) (*StageResult, error) {
	log := zap.L().With(zap.String("component", "pipeline.load"))

	records, err := artifact.ReadConsolidated(state.Paths.Consolidated)
	if err != nil {
		return nil, err
	}

	loader := load.NewLoader(s.Pool)
	summary := &LoadSummary{}
	state.Summary.Load = summary

	summary.Operators, err = loader.LoadOperators(ctx, load.Operators(records))
	if err != nil {
		return nil, err
	}
	summary.Expenses, err = loader.LoadExpenses(ctx, records)
	if err != nil {
		return nil, err
	}

	stats, err := artifact.ReadAggregated(state.Paths.Aggregated)
	switch {
	case errors.Is(err, artifact.ErrMissingArtifact):
		log.Warn("aggregated file not found, skipping aggregate table", zap.String("path", state.Paths.Aggregated))
		summary.AggregatesSkipped = true
	case err != nil:
		return nil, err
	default:
		summary.Aggregates, err = loader.ReplaceAggregates(ctx, stats)
		if err != nil {
			return nil, err
		}
	}

	return &StageResult{
		Rows: summary.Operators + summary.Expenses + summary.Aggregates,
		Metadata: map[string]any{
			"operators":  summary.Operators,
			"expenses":   summary.Expenses,
			"aggregates": summary.Aggregates,
		},
	}, nil
}
