package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresKV is a PostgreSQL-backed key-value backend: one row per key in
// the app_state table.
type PostgresKV struct {
	pool *pgxpool.Pool
}

// NewPostgresKV ensures the app_state table exists and returns a backend
// over the pool.
func NewPostgresKV(ctx context.Context, pool *pgxpool.Pool) (*PostgresKV, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS app_state (
		   key        text PRIMARY KEY,
		   value      bytea NOT NULL,
		   updated_at timestamptz NOT NULL DEFAULT NOW()
		 )`)
	if err != nil {
		return nil, fmt.Errorf("ensure app_state table: %w", err)
	}

	return &PostgresKV{pool: pool}, nil
}

func (p *PostgresKV) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var value []byte
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM app_state WHERE key = $1`,
		key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select %s: %w", key, err)
	}
	return value, nil
}

func (p *PostgresKV) Set(ctx context.Context, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := p.pool.Exec(ctx,
		`INSERT INTO app_state (key, value, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (key) DO UPDATE
		 SET value = EXCLUDED.value, updated_at = NOW()`,
		key,
		value,
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}
