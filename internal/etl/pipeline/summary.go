package pipeline

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/ans-cli/internal/etl/discover"
	"github.com/sells-group/ans-cli/internal/etl/extract"
)

// Summary is the YAML report written at the end of every run.
type Summary struct {
	RunID      string                    `yaml:"run_id"`
	StartedAt  time.Time                 `yaml:"started_at"`
	FinishedAt time.Time                 `yaml:"finished_at"`
	Stages     []StageSummary            `yaml:"stages"`
	Retrieve   *discover.RetrieveSummary `yaml:"retrieve,omitempty"`
	Extract    *extract.Summary          `yaml:"extract,omitempty"`
	Aggregate  *AggregateSummary         `yaml:"aggregate,omitempty"`
	Load       *LoadSummary              `yaml:"load,omitempty"`
}

// StageSummary is the outcome of one stage within a run.
type StageSummary struct {
	Name    string `yaml:"name"`
	Status  string `yaml:"status"`
	Rows    int64  `yaml:"rows"`
	Elapsed string `yaml:"elapsed"`
	Error   string `yaml:"error,omitempty"`
}

// AggregateSummary reports cleaning, deduplication and grouping counts.
type AggregateSummary struct {
	Input        int            `yaml:"input"`
	Cleaned      int            `yaml:"cleaned"`
	Deduplicated int            `yaml:"deduplicated"`
	Groups       int            `yaml:"groups"`
	Fallback     bool           `yaml:"hierarchy_fallback"`
	Dropped      map[string]int `yaml:"dropped,omitempty"`
}

// LoadSummary reports rows written per table.
type LoadSummary struct {
	Operators         int64 `yaml:"operators"`
	Expenses          int64 `yaml:"expenses"`
	Aggregates        int64 `yaml:"aggregates"`
	AggregatesSkipped bool  `yaml:"aggregates_skipped,omitempty"`
}

// WriteSummary writes s as YAML to path.
func WriteSummary(path string, s *Summary) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return eris.Wrap(err, "pipeline: marshal summary")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "pipeline: create summary dir")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
		return eris.Wrapf(err, "pipeline: write summary %s", path)
	}
	return nil
}

// ReadSummary loads a summary written by WriteSummary.
func ReadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read summary %s", path)
	}
	var s Summary
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse summary")
	}
	return &s, nil
}
