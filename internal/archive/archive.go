// Package archive persists concluded games so they can be listed, replayed and
// deleted later.
//
// An archive is written exactly once per game id and never modified. Saving an
// id twice fails with [ErrExists]; [Debounced] absorbs the rapid double save a
// finishing engine can produce. Backends live here ([MemStore], [FileStore])
// and in the postgres and mongo sub-packages.
package archive

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"strings"

	"github.com/MrWong99/werewolf/internal/game"
)

var (
	// ErrNotFound is returned when no archive has the requested id.
	ErrNotFound = errors.New("archive: not found")

	// ErrExists is returned when saving an id that is already stored.
	ErrExists = errors.New("archive: already exists")
)

// Store is a keyed collection of archives. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save stores a. It returns [ErrExists] if a.ID is already stored.
	Save(ctx context.Context, a game.Archive) error

	// Get returns the archive with the given id or [ErrNotFound].
	Get(ctx context.Context, id string) (game.Archive, error)

	// List returns summaries of every stored archive, newest first.
	List(ctx context.Context) ([]game.Summary, error)

	// Delete removes the archive with the given id or returns [ErrNotFound].
	Delete(ctx context.Context, id string) error
}

var idRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidID reports whether id can be used as an archive key by every backend.
func ValidID(id string) bool { return idRe.MatchString(id) }

// SortSummaries orders summaries newest first, breaking ties by id.
func SortSummaries(s []game.Summary) {
	slices.SortFunc(s, func(a, b game.Summary) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
