// Package postgres is an [archive.Store] backed by PostgreSQL.
//
// Listing columns are stored as plain columns; the full archive (players, log,
// timeline) is one JSONB document. Both *pgxpool.Pool and *pgx.Conn can be
// passed as the [DB].
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/werewolf/internal/archive"
	"github.com/MrWong99/werewolf/internal/game"
)

// Schema is the SQL DDL for the game_archives table. Execute it via
// [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS game_archives (
    id           TEXT PRIMARY KEY,
    mode         TEXT NOT NULL DEFAULT 'werewolf',
    title        TEXT NOT NULL DEFAULT '',
    winner       TEXT NOT NULL DEFAULT '',
    turns        INTEGER NOT NULL DEFAULT 0,
    player_count INTEGER NOT NULL DEFAULT 0,
    document     JSONB NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_game_archives_created ON game_archives(created_at DESC);
`

// DB is the database interface used by [Store].
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is an [archive.Store] backed by a PostgreSQL table.
type Store struct {
	db DB
}

var _ archive.Store = (*Store)(nil)

// New returns a store using db. The caller must call [Store.Migrate] before
// first use.
func New(db DB) *Store {
	return &Store{db: db}
}

// Migrate executes the [Schema] DDL.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("archive: migrate: %w", err)
	}
	return nil
}

// Save implements [archive.Store].
func (s *Store) Save(ctx context.Context, a game.Archive) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("archive: marshal %q: %w", a.ID, err)
	}
	const query = `
		INSERT INTO game_archives (id, mode, title, winner, turns, player_count, document, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`
	tag, err := s.db.Exec(ctx, query,
		a.ID, a.Mode, a.Title, string(a.Winner), a.Turns, a.PlayerCount, doc, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("archive: save %q: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("archive: save %q: %w", a.ID, archive.ErrExists)
	}
	return nil
}

// Get implements [archive.Store].
func (s *Store) Get(ctx context.Context, id string) (game.Archive, error) {
	var doc []byte
	err := s.db.QueryRow(ctx, `SELECT document FROM game_archives WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Archive{}, fmt.Errorf("archive: get %q: %w", id, archive.ErrNotFound)
	}
	if err != nil {
		return game.Archive{}, fmt.Errorf("archive: get %q: %w", id, err)
	}
	var a game.Archive
	if err := json.Unmarshal(doc, &a); err != nil {
		return game.Archive{}, fmt.Errorf("archive: decode %q: %w", id, err)
	}
	return a, nil
}

// List implements [archive.Store].
func (s *Store) List(ctx context.Context) ([]game.Summary, error) {
	const query = `
		SELECT id, mode, title, winner, turns, player_count, created_at
		FROM game_archives
		ORDER BY created_at DESC, id`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	defer rows.Close()

	out := []game.Summary{}
	for rows.Next() {
		var (
			sum    game.Summary
			winner string
		)
		if err := rows.Scan(&sum.ID, &sum.Mode, &sum.Title, &winner, &sum.Turns, &sum.PlayerCount, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("archive: list scan: %w", err)
		}
		sum.Winner = game.Outcome(winner)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: list rows: %w", err)
	}
	return out, nil
}

// Delete implements [archive.Store].
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM game_archives WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("archive: delete %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("archive: delete %q: %w", id, archive.ErrNotFound)
	}
	return nil
}
