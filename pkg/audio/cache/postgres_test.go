package cache

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return m.queryRowFunc(ctx, sql, args...)
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return m.execFunc(ctx, sql, args...)
}

func TestPostgres_Migrate(t *testing.T) {
	t.Parallel()

	var got string
	db := &mockDB{execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
		got = sql
		return pgconn.CommandTag{}, nil
	}}
	if err := NewPostgres(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if got != Schema {
		t.Error("Migrate did not execute Schema")
	}
}

func TestPostgres_GetMiss(t *testing.T) {
	t.Parallel()

	db := &mockDB{queryRowFunc: func(context.Context, string, ...any) pgx.Row {
		return &mockRow{scanFunc: func(...any) error { return pgx.ErrNoRows }}
	}}
	if _, err := NewPostgres(db).Get(context.Background(), "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("err = %v, want ErrMiss", err)
	}
}

func TestPostgres_GetHit(t *testing.T) {
	t.Parallel()

	db := &mockDB{queryRowFunc: func(_ context.Context, _ string, args ...any) pgx.Row {
		if args[0] != "k" {
			t.Errorf("key arg = %v", args[0])
		}
		return &mockRow{scanFunc: func(dest ...any) error {
			*dest[0].(*[]byte) = []byte("wav")
			return nil
		}}
	}}
	got, err := NewPostgres(db).Get(context.Background(), "k")
	if err != nil || string(got) != "wav" {
		t.Errorf("Get = %q, %v", got, err)
	}
}

func TestPostgres_PutUpserts(t *testing.T) {
	t.Parallel()

	db := &mockDB{execFunc: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		if !strings.Contains(sql, "ON CONFLICT") {
			t.Error("Put is not an upsert")
		}
		if len(args) != 2 || args[0] != "k" {
			t.Errorf("args = %v", args)
		}
		return pgconn.CommandTag{}, nil
	}}
	if err := NewPostgres(db).Put(context.Background(), "k", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
}

func TestPostgres_PutError(t *testing.T) {
	t.Parallel()

	boom := errors.New("conn reset")
	db := &mockDB{execFunc: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, boom
	}}
	if err := NewPostgres(db).Put(context.Background(), "k", nil); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}

// TestPostgres_Integration runs against a real database when
// WEREWOLF_TEST_POSTGRES_DSN is set.
func TestPostgres_Integration(t *testing.T) {
	dsn := os.Getenv("WEREWOLF_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("WEREWOLF_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	s := NewPostgres(pool)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	key := "it-" + strings.ReplaceAll(t.Name(), "/", "-")
	if err := s.Put(ctx, key, []byte("clip")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	t.Cleanup(func() { _, _ = pool.Exec(ctx, `DELETE FROM audio_cache WHERE cache_key = $1`, key) })

	if ok, err := s.Has(ctx, key); err != nil || !ok {
		t.Fatalf("Has = %v, %v", ok, err)
	}
	got, err := s.Get(ctx, key)
	if err != nil || string(got) != "clip" {
		t.Fatalf("Get = %q, %v", got, err)
	}
}
