package etl

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ans-cli/internal/db"
)

// Run log statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// RunEntry represents a row in etl_run_log.
type RunEntry struct {
	ID          int64          `json:"id"`
	RunID       uuid.UUID      `json:"run_id"`
	Stage       string         `json:"stage"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Rows        int64          `json:"rows"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// RunLog provides read/write access to the etl_run_log table.
type RunLog struct {
	pool db.Pool
}

// NewRunLog creates a new RunLog backed by the given connection pool.
func NewRunLog(pool db.Pool) *RunLog {
	return &RunLog{pool: pool}
}

// NewRunID returns a fresh identifier shared by every stage of one pipeline run.
func NewRunID() uuid.UUID {
	return uuid.New()
}

// Start records the beginning of a stage and returns its log entry ID.
func (s *RunLog) Start(ctx context.Context, runID uuid.UUID, stage string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO etl_run_log (run_id, stage, status, started_at)
		 VALUES ($1, $2, $3, now()) RETURNING id`,
		runID, stage, StatusRunning,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "runlog: start %s", stage)
	}
	return id, nil
}

// Complete marks a stage as successfully completed.
func (s *RunLog) Complete(ctx context.Context, entryID int64, rows int64, metadata map[string]any) error {
	var metaJSON []byte
	if metadata != nil {
		var err error
		metaJSON, err = json.Marshal(metadata)
		if err != nil {
			return eris.Wrap(err, "runlog: marshal metadata")
		}
	}

	_, err := s.pool.Exec(ctx,
		`UPDATE etl_run_log
		 SET status = $1, completed_at = now(), rows = $2, metadata = $3
		 WHERE id = $4`,
		StatusComplete, rows, metaJSON, entryID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete %d", entryID)
	}
	return nil
}

// Fail marks a stage as failed with an error message.
func (s *RunLog) Fail(ctx context.Context, entryID int64, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE etl_run_log
		 SET status = $1, completed_at = now(), error = $2
		 WHERE id = $3`,
		StatusFailed, errMsg, entryID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail %d", entryID)
	}
	return nil
}

// LastComplete returns when the stage last completed, or nil if it never has.
func (s *RunLog) LastComplete(ctx context.Context, stage string) (*time.Time, error) {
	var t time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT completed_at FROM etl_run_log
		 WHERE stage = $1 AND status = $2
		 ORDER BY completed_at DESC LIMIT 1`,
		stage, StatusComplete,
	).Scan(&t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "runlog: last complete for %s", stage)
	}
	return &t, nil
}

// ListAll returns all run log entries, most recent first.
func (s *RunLog) ListAll(ctx context.Context) ([]RunEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, stage, status, started_at, completed_at, rows, error, metadata
		 FROM etl_run_log ORDER BY started_at DESC, id DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list all")
	}
	defer rows.Close()

	var entries []RunEntry
	for rows.Next() {
		var e RunEntry
		var errStr *string
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.RunID, &e.Stage, &e.Status, &e.StartedAt, &e.CompletedAt, &e.Rows, &errStr, &metaJSON); err != nil {
			return nil, eris.Wrap(err, "runlog: scan entry")
		}
		if errStr != nil {
			e.Error = *errStr
		}
		if metaJSON != nil {
			_ = json.Unmarshal(metaJSON, &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
