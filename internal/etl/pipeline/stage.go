// Package pipeline runs the ETL stages in order and records their outcomes.
package pipeline

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Stage names, in execution order.
const (
	StageDiscover  = "discover"
	StageExtract   = "extract"
	StageAggregate = "aggregate"
	StageLoad      = "load"
)

// StageOrder is the fixed order stages run in. Each stage reads the
// artifact written by the one before it.
var StageOrder = []string{StageDiscover, StageExtract, StageAggregate, StageLoad}

// StageResult holds the outcome of one stage.
type StageResult struct {
	Rows     int64          `json:"rows"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Stage is one step of the ETL.
type Stage interface {
	// Name returns the stage identifier used on the command line and in the run log.
	Name() string

	// Run executes the stage, reading and writing artifacts under state.Paths.
	Run(ctx context.Context, state *State) (*StageResult, error)
}

// Paths locates the artifacts handed between stages.
type Paths struct {
	RawDir       string
	Consolidated string
	Aggregated   string
	Summary      string
	Report       string // optional xlsx export
}

// NewPaths joins artifact file names onto processedDir.
func NewPaths(rawDir, processedDir, consolidated, aggregated, summary, report string) Paths {
	p := Paths{
		RawDir:       rawDir,
		Consolidated: filepath.Join(processedDir, consolidated),
		Aggregated:   filepath.Join(processedDir, aggregated),
		Summary:      filepath.Join(processedDir, summary),
	}
	if report != "" {
		p.Report = filepath.Join(processedDir, report)
	}
	return p
}

// State is shared by the stages of one run.
type State struct {
	RunID   uuid.UUID
	Paths   Paths
	Summary *Summary
}

// NewState creates the state for a new run.
func NewState(runID uuid.UUID, paths Paths) *State {
	return &State{
		RunID:   runID,
		Paths:   paths,
		Summary: &Summary{RunID: runID.String()},
	}
}

// ParseStages converts a comma-separated list like "extract,aggregate" into
// stage names in execution order. An empty string selects every stage.
func ParseStages(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "all" {
		return append([]string(nil), StageOrder...), nil
	}

	want := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if !isStage(name) {
			return nil, eris.Errorf("pipeline: unknown stage %q (valid: %s)", name, strings.Join(StageOrder, ", "))
		}
		want[name] = true
	}
	if len(want) == 0 {
		return nil, eris.New("pipeline: no stages selected")
	}

	var out []string
	for _, name := range StageOrder {
		if want[name] {
			out = append(out, name)
		}
	}
	return out, nil
}

func isStage(name string) bool {
	for _, s := range StageOrder {
		if s == name {
			return true
		}
	}
	return false
}
