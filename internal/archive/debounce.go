package archive

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/werewolf/internal/game"
)

// DefaultDebounce is the window within which a second save of the same id is
// dropped.
const DefaultDebounce = 2 * time.Second

// Debounced wraps a [Store] and drops saves of an id that was already saved
// within the window. Dropped saves and saves of an id the store already holds
// report success; the stored archive is never replaced. Reads and deletes pass
// straight through.
type Debounced struct {
	Store

	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	saved map[string]time.Time
}

var _ Store = (*Debounced)(nil)

// NewDebounced wraps s. A non-positive window uses [DefaultDebounce].
func NewDebounced(s Store, window time.Duration) *Debounced {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Debounced{
		Store:  s,
		window: window,
		now:    time.Now,
		saved:  make(map[string]time.Time),
	}
}

// Save implements [Store].
func (d *Debounced) Save(ctx context.Context, a game.Archive) error {
	now := d.now()
	d.mu.Lock()
	for id, at := range d.saved {
		if now.Sub(at) >= d.window {
			delete(d.saved, id)
		}
	}
	if _, ok := d.saved[a.ID]; ok {
		d.mu.Unlock()
		slog.Warn("archive: duplicate save dropped", "id", a.ID)
		return nil
	}
	d.saved[a.ID] = now
	d.mu.Unlock()

	err := d.Store.Save(ctx, a)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrExists):
		slog.Warn("archive: archive already stored", "id", a.ID)
		return nil
	default:
		// Let a retry through immediately.
		d.mu.Lock()
		delete(d.saved, a.ID)
		d.mu.Unlock()
		return err
	}
}
