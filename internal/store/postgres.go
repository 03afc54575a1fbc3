// Package store is the Postgres-backed persistence layer: the shared
// connection pool, hot-state upsert + history append in the ingestion
// writers, the schema, and the fleet snapshot read. It keeps the
// teacher's pool-per-process shape (TimescaleStore.NewTimescaleStore)
// generalized to the schema this system needs.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rahullalw/smart-ev-analytics/internal/config"
)

// DB wraps the process's shared connection pool, bounded by
// Config.DBMaxConns. In cmd/ingestor the two stream writers share it
// (50 connections by default); in cmd/api session.Service,
// analytics.Aggregator and the fleet snapshot read share it (20).
type DB struct {
	Pool *pgxpool.Pool
}

func NewDB(ctx context.Context, cfg *config.Config) (*DB, error) {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBMaxConns,
	)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("store: create db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping db: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Close() {
	if d != nil && d.Pool != nil {
		d.Pool.Close()
	}
}

func (d *DB) Ping(ctx context.Context) error {
	return d.Pool.Ping(ctx)
}
