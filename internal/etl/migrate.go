// Package etl holds the relational schema and the run log shared by the pipeline stages.
package etl

import (
	"context"
	"embed"
	"io/fs"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockID serializes concurrent "migrate" and "run" invocations
// against the same database.
const migrationLockID = 20240401

// Migrate brings the operator, expense, aggregate and run log tables up to
// date. Files under migrations/ are applied in name order, each one at most
// once, and the names applied by this call are returned.
func Migrate(ctx context.Context, pool db.Pool) ([]string, error) {
	log := zap.L().With(zap.String("component", "etl.migrate"))

	if _, err := pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return nil, eris.Wrap(err, "etl: acquire migration advisory lock")
	}
	defer func() {
		if _, err := pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn("schema lock not released", zap.Error(err))
		}
	}()

	pending, err := pendingMigrations(ctx, pool)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		log.Debug("schema up to date")
		return nil, nil
	}

	var applied []string
	for i, name := range pending {
		ddl, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return applied, eris.Wrapf(err, "etl: read migration %s", name)
		}
		if _, err := pool.Exec(ctx, string(ddl)); err != nil {
			return applied, eris.Wrapf(err, "etl: apply migration %s", name)
		}
		if _, err := pool.Exec(ctx,
			"INSERT INTO schema_migrations (filename, applied_at) VALUES ($1, now())",
			name,
		); err != nil {
			return applied, eris.Wrapf(err, "etl: record migration %s", name)
		}
		applied = append(applied, name)
		log.Info("migration applied",
			zap.String("file", name),
			zap.Int("step", i+1),
			zap.Int("pending", len(pending)),
		)
	}
	return applied, nil
}

// pendingMigrations lists embedded migration files not yet recorded in
// schema_migrations, creating the tracking table on first use.
func pendingMigrations(ctx context.Context, pool db.Pool) ([]string, error) {
	const ddl = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id         SERIAL PRIMARY KEY,
			filename   TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, eris.Wrap(err, "etl: ensure migration table")
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, eris.Wrap(err, "etl: read migration dir")
	}

	rows, err := pool.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "etl: query applied migrations")
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "etl: scan migration row")
		}
		done[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "etl: iterate applied migrations")
	}

	var pending []string
	for _, e := range entries {
		if !done[e.Name()] {
			pending = append(pending, e.Name())
		}
	}
	slices.Sort(pending)
	return pending, nil
}
