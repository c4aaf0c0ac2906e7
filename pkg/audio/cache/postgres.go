package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the audio_cache table. Execute it via
// [Postgres.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS audio_cache (
    cache_key  TEXT PRIMARY KEY,
    audio      BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [Postgres]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is a [Store] backed by a PostgreSQL bytea column.
type Postgres struct {
	db DB
}

var _ Store = (*Postgres)(nil)

// NewPostgres returns a store using db. Call [Postgres.Migrate] before use.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate executes the [Schema] DDL.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("cache: migrate: %w", err)
	}
	return nil
}

// Get implements [Store].
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := p.db.QueryRow(ctx, `SELECT audio FROM audio_cache WHERE cache_key = $1`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get %q: %w", key, err)
	}
	return data, nil
}

// Put implements [Store].
func (p *Postgres) Put(ctx context.Context, key string, data []byte) error {
	const query = `
		INSERT INTO audio_cache (cache_key, audio) VALUES ($1, $2)
		ON CONFLICT (cache_key) DO UPDATE SET audio = EXCLUDED.audio, created_at = now()`
	if _, err := p.db.Exec(ctx, query, key, data); err != nil {
		return fmt.Errorf("cache: put %q: %w", key, err)
	}
	return nil
}

// Has implements [Store].
func (p *Postgres) Has(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := p.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM audio_cache WHERE cache_key = $1)`, key).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("cache: has %q: %w", key, err)
	}
	return ok, nil
}
