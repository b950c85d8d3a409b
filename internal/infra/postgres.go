package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// PoolConfig holds tunable parameters for the PostgreSQL connection pool.
// Zero values keep the defaults.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

func (p PoolConfig) apply(cfg *pgxpool.Config) {
	cfg.MaxConns = 10
	if p.MaxConns > 0 {
		cfg.MaxConns = p.MaxConns
	}
	cfg.MinConns = 2
	if p.MinConns > 0 {
		cfg.MinConns = p.MinConns
	}
	if cfg.MinConns > cfg.MaxConns {
		cfg.MinConns = cfg.MaxConns
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
}

// NewPostgresDB opens a pool for the pgvector document store and checks
// connectivity.
func NewPostgresDB(ctx context.Context, dsn string, pool PoolConfig) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	pool.apply(config)

	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	db, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return db, nil
}
