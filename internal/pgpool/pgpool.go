// Package pgpool wraps pgxpool.Pool construction with a startup ping,
// shared by every Postgres-backed store in this module.
package pgpool

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB holds the shared connection pool handed to each postgres-backed store.
type DB struct {
	Pool *pgxpool.Pool
}

// New parses databaseURL, opens a pool, and verifies connectivity with a ping
// before returning, so startup fails fast on a bad DSN instead of on the
// first query.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close releases all pooled connections.
func (db *DB) Close() {
	db.Pool.Close()
}
