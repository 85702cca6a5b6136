// Package postgres provides a PostgreSQL implementation of usage.Store.
// It uses pgx/v5 for connection pooling and applies embedded schema
// migrations on startup when configured to.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polygate-dev/polygate/pkg/usage"
)

// Store is a PostgreSQL-backed usage ledger.
type Store struct {
	pool *pgxpool.Pool
}

var _ usage.Store = (*Store)(nil)

// New creates a PostgreSQL store with the given configuration. If
// MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// Save records one finished completion. Saving the same completion id
// twice is treated as a replay and ignored.
func (s *Store) Save(ctx context.Context, rec usage.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO usage_records (id, model, input_tokens, output_tokens, stream, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.Model, rec.InputTokens, rec.OutputTokens, rec.Stream, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}
	return nil
}

// List returns up to limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]usage.Record, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, model, input_tokens, output_tokens, stream, created_at
		FROM usage_records
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying usage records: %w", err)
	}
	defer rows.Close()

	var out []usage.Record
	for rows.Next() {
		var rec usage.Record
		if err := rows.Scan(&rec.ID, &rec.Model, &rec.InputTokens, &rec.OutputTokens, &rec.Stream, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning usage record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading usage records: %w", err)
	}
	return out, nil
}

// Get retrieves a single record by completion id.
func (s *Store) Get(ctx context.Context, id string) (usage.Record, error) {
	var rec usage.Record
	err := s.pool.QueryRow(ctx, `
		SELECT id, model, input_tokens, output_tokens, stream, created_at
		FROM usage_records WHERE id = $1
	`, id).Scan(&rec.ID, &rec.Model, &rec.InputTokens, &rec.OutputTokens, &rec.Stream, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return usage.Record{}, usage.ErrNotFound
	}
	if err != nil {
		return usage.Record{}, fmt.Errorf("querying usage record: %w", err)
	}
	return rec, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
