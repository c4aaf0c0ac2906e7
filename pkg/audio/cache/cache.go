// Package cache stores rendered speech clips under their cache keys.
//
// Three backends are provided: an in-process LRU ([Memory]), a directory of
// WAV files ([File]) and a PostgreSQL bytea table ([Postgres]). All of them are
// safe for concurrent use and treat a missing key as [ErrMiss].
package cache

import (
	"context"
	"errors"
)

// ErrMiss is returned by Get when the key is not cached.
var ErrMiss = errors.New("cache: miss")

// Store maps cache keys to encoded audio blobs.
type Store interface {
	// Get returns the blob for key or [ErrMiss].
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores data under key, replacing any previous blob.
	Put(ctx context.Context, key string, data []byte) error

	// Has reports whether key is cached without loading the blob.
	Has(ctx context.Context, key string) (bool, error)
}
