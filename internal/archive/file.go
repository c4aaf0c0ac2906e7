package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MrWong99/werewolf/internal/game"
)

// FileStore keeps one JSON document per archive in a directory.
type FileStore struct {
	dir string

	// mu serialises the exists-check and rename in Save.
	mu sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates dir if needed and returns a store writing "<id>.json".
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(id string) (string, error) {
	if !ValidID(id) {
		return "", fmt.Errorf("archive: invalid id %q", id)
	}
	return filepath.Join(f.dir, id+".json"), nil
}

// Save implements [Store]. The document is written to a temporary file, synced
// and renamed into place.
func (f *FileStore) Save(_ context.Context, a game.Archive) error {
	p, err := f.path(a.ID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: marshal %q: %w", a.ID, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := os.Stat(p); err == nil {
		return fmt.Errorf("archive: save %q: %w", a.ID, ErrExists)
	}

	tmp, err := os.CreateTemp(f.dir, ".archive-*")
	if err != nil {
		return fmt.Errorf("archive: save %q: %w", a.ID, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("archive: save %q: %w", a.ID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("archive: save %q: fsync: %w", a.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("archive: save %q: %w", a.ID, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("archive: save %q: %w", a.ID, err)
	}
	return nil
}

// Get implements [Store].
func (f *FileStore) Get(_ context.Context, id string) (game.Archive, error) {
	p, err := f.path(id)
	if err != nil {
		return game.Archive{}, fmt.Errorf("archive: get %q: %w", id, ErrNotFound)
	}
	return readArchive(p, id)
}

func readArchive(path, id string) (game.Archive, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return game.Archive{}, fmt.Errorf("archive: get %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return game.Archive{}, fmt.Errorf("archive: get %q: %w", id, err)
	}
	var a game.Archive
	if err := json.Unmarshal(data, &a); err != nil {
		return game.Archive{}, fmt.Errorf("archive: decode %q: %w", id, err)
	}
	return a, nil
}

// List implements [Store]. Unreadable files are skipped with a warning.
func (f *FileStore) List(_ context.Context) ([]game.Summary, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	out := make([]game.Summary, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		a, err := readArchive(filepath.Join(f.dir, name), id)
		if err != nil {
			slog.Warn("archive: skipping unreadable file", "file", name, "err", err)
			continue
		}
		out = append(out, a.Summary())
	}
	SortSummaries(out)
	return out, nil
}

// Delete implements [Store].
func (f *FileStore) Delete(_ context.Context, id string) error {
	p, err := f.path(id)
	if err != nil {
		return fmt.Errorf("archive: delete %q: %w", id, ErrNotFound)
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("archive: delete %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("archive: delete %q: %w", id, err)
	}
	return nil
}
