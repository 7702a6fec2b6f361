package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/config"
)

// openPool connects to store.database_url and verifies the connection.
func openPool(ctx context.Context, c *config.Config) (*pgxpool.Pool, error) {
	if c.Store.DatabaseURL == "" {
		return nil, eris.New("no database_url configured (set store.database_url or ANS_STORE_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, c.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "ping database")
	}

	zap.L().Debug("connected to database")
	return pool, nil
}
