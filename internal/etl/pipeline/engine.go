package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/etl"
)

// RunRecorder records stage progress. *etl.RunLog implements it.
type RunRecorder interface {
	Start(ctx context.Context, runID uuid.UUID, stage string) (int64, error)
	Complete(ctx context.Context, entryID int64, rows int64, metadata map[string]any) error
	Fail(ctx context.Context, entryID int64, errMsg string) error
}

var _ RunRecorder = (*etl.RunLog)(nil)

// Engine orchestrates stage runs.
type Engine struct {
	stages map[string]Stage
	runLog RunRecorder
}

// RunOpts configures which stages run and where their artifacts live.
type RunOpts struct {
	Stages []string // empty runs every configured stage
	Paths  Paths
	RunID  uuid.UUID // zero value generates a new id
}

// NewEngine creates an engine over stages. runLog may be nil when no
// database is configured.
func NewEngine(runLog RunRecorder, stages ...Stage) *Engine {
	e := &Engine{stages: make(map[string]Stage), runLog: runLog}
	for _, s := range stages {
		e.stages[s.Name()] = s
	}
	return e
}

// Run executes the selected stages in StageOrder. The first failing stage
// stops the run; its error is returned after the summary is written.
func (e *Engine) Run(ctx context.Context, opts RunOpts) (*Summary, error) {
	log := zap.L().With(zap.String("component", "pipeline.engine"))

	selected, err := e.selectStages(opts.Stages)
	if err != nil {
		return nil, err
	}

	runID := opts.RunID
	if runID == uuid.Nil {
		runID = etl.NewRunID()
	}
	state := NewState(runID, opts.Paths)
	state.Summary.StartedAt = time.Now().UTC()
	log = log.With(zap.String("run_id", runID.String()))
	log.Info("run starting", zap.Int("stages", len(selected)))

	var (
		runErr    error
		completed int
	)
	for _, stage := range selected {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if err := e.runStage(ctx, state, stage); err != nil {
			runErr = err
			break
		}
		completed++
	}

	state.Summary.FinishedAt = time.Now().UTC()
	if opts.Paths.Summary != "" {
		if err := WriteSummary(opts.Paths.Summary, state.Summary); err != nil {
			log.Error("failed to write run summary", zap.Error(err))
		}
	}

	log.Info("run complete",
		zap.Int("completed", completed),
		zap.Int("selected", len(selected)),
		zap.Bool("failed", runErr != nil),
		zap.Duration("elapsed", state.Summary.FinishedAt.Sub(state.Summary.StartedAt)),
	)
	return state.Summary, runErr
}

func (e *Engine) runStage(ctx context.Context, state *State, stage Stage) error {
	log := zap.L().With(zap.String("component", "pipeline.engine"), zap.String("stage", stage.Name()))

	var entryID int64
	if e.runLog != nil {
		id, err := e.runLog.Start(ctx, state.RunID, stage.Name())
		if err != nil {
			return eris.Wrapf(err, "pipeline: start run log for %s", stage.Name())
		}
		entryID = id
	}

	log.Info("stage starting")
	start := time.Now()
	result, err := stage.Run(ctx, state)
	elapsed := time.Since(start)

	ss := StageSummary{Name: stage.Name(), Elapsed: elapsed.Round(time.Millisecond).String()}
	if err != nil {
		ss.Status = etl.StatusFailed
		ss.Error = err.Error()
		state.Summary.Stages = append(state.Summary.Stages, ss)

		log.Error("stage failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		if e.runLog != nil {
			if logErr := e.runLog.Fail(ctx, entryID, err.Error()); logErr != nil {
				log.Error("failed to record stage failure", zap.Error(logErr))
			}
		}
		return eris.Wrapf(err, "pipeline: stage %s", stage.Name())
	}

	if result == nil {
		result = &StageResult{}
	}
	ss.Status = etl.StatusComplete
	ss.Rows = result.Rows
	state.Summary.Stages = append(state.Summary.Stages, ss)

	if e.runLog != nil {
		if err := e.runLog.Complete(ctx, entryID, result.Rows, result.Metadata); err != nil {
			log.Error("failed to record stage completion", zap.Error(err))
		}
	}
	log.Info("stage complete", zap.Int64("rows", result.Rows), zap.Duration("elapsed", elapsed))
	return nil
}

func (e *Engine) selectStages(names []string) ([]Stage, error) {
	want := make(map[string]bool, len(names))
	if len(names) == 0 {
		for n := range e.stages {
			want[n] = true
		}
	}
	for _, n := range names {
		if _, ok := e.stages[n]; !ok {
			return nil, eris.Errorf("pipeline: stage %q not configured", n)
		}
		want[n] = true
	}

	var out []Stage
	for _, n := range StageOrder {
		if want[n] {
			out = append(out, e.stages[n])
		}
	}
	return out, nil
}
