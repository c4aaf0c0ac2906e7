package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrWong99/werewolf/internal/game"
)

func sample(id string, created time.Time) game.Archive {
	return game.Archive{
		ID:   id,
		Mode: game.ModeWerewolf,
		Players: []game.Player{
			{Seat: 1, Role: game.RoleWerewolf, Status: game.StatusDeadVote},
			{Seat: 2, Role: game.RoleSeer, Status: game.StatusAlive},
		},
		Log: []game.Entry{
			{ID: "01", Turn: 1, Phase: game.PhaseNightStart, Content: "天黑请闭眼", IsSystem: true},
			{ID: "02", Turn: 1, Phase: game.PhaseWerewolfAction, Speaker: 1, Content: "刀2号", VisibleTo: []int{1}},
		},
		Timeline: []game.TimelineEvent{
			{ID: "01", Kind: game.SpeakerNarrator, Name: "法官", Text: "天黑请闭眼"},
		},
		Winner:      game.OutcomeGoodWin,
		Turns:       2,
		PlayerCount: 2,
		Composition: []game.Role{game.RoleWerewolf, game.RoleSeer},
		CreatedAt:   created.UTC(),
	}
}

// storeContract exercises the behaviour every backend must share.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	older := sample("game-a", base)
	newer := sample("game-b", base.Add(time.Hour))
	require.NoError(t, s.Save(ctx, older))
	require.NoError(t, s.Save(ctx, newer))

	err := s.Save(ctx, older)
	assert.ErrorIs(t, err, ErrExists)

	got, err := s.Get(ctx, "game-a")
	require.NoError(t, err)
	assert.Equal(t, older.Log, got.Log)
	assert.Equal(t, older.Timeline, got.Timeline)
	assert.Equal(t, []int{1}, got.Log[1].VisibleTo)
	assert.Nil(t, got.Log[0].VisibleTo, "public entries must stay public")

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "game-b", list[0].ID, "newest first")
	assert.Equal(t, game.OutcomeGoodWin, list[1].Winner)
	assert.Equal(t, 2, list[1].Turns)

	require.NoError(t, s.Delete(ctx, "game-a"))
	_, err = s.Get(ctx, "game-a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "game-a"), ErrNotFound)
}

func TestMemStore(t *testing.T) {
	t.Parallel()
	storeContract(t, NewMemStore())
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	storeContract(t, s)
}

func TestFileStore_RejectsPathIDs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	assert.Error(t, s.Save(context.Background(), sample("../escape", time.Now())))
	_, err = s.Get(context.Background(), "../escape")
	assert.ErrorIs(t, err, ErrNotFound)
	_, statErr := os.Stat(filepath.Join(filepath.Dir(dir), "escape.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileStore_ListSkipsGarbage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), sample("ok", time.Now())))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	list, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ok", list[0].ID)
}

type countingStore struct {
	*MemStore
	mu    sync.Mutex
	saves int
	fail  error
}

func (c *countingStore) Save(ctx context.Context, a game.Archive) error {
	c.mu.Lock()
	c.saves++
	fail := c.fail
	c.mu.Unlock()
	if fail != nil {
		return fail
	}
	return c.MemStore.Save(ctx, a)
}

func TestDebounced_DropsRapidDuplicates(t *testing.T) {
	t.Parallel()

	inner := &countingStore{MemStore: NewMemStore()}
	d := NewDebounced(inner, time.Minute)
	ctx := context.Background()
	a := sample("g1", time.Now())

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, d.Save(ctx, a))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inner.saves)
	list, err := d.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDebounced_WindowExpires(t *testing.T) {
	t.Parallel()

	inner := &countingStore{MemStore: NewMemStore()}
	d := NewDebounced(inner, time.Second)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, d.Save(ctx, sample("g1", now)))
	now = now.Add(2 * time.Second)

	// Past the window the store is asked again and its ErrExists is absorbed.
	require.NoError(t, d.Save(ctx, sample("g1", now)))
	assert.Equal(t, 2, inner.saves)
}

func TestDebounced_FailureAllowsRetry(t *testing.T) {
	t.Parallel()

	inner := &countingStore{MemStore: NewMemStore(), fail: errors.New("disk full")}
	d := NewDebounced(inner, time.Minute)
	ctx := context.Background()

	require.Error(t, d.Save(ctx, sample("g1", time.Now())))
	inner.mu.Lock()
	inner.fail = nil
	inner.mu.Unlock()
	require.NoError(t, d.Save(ctx, sample("g1", time.Now())))
	assert.Equal(t, 2, inner.saves)

	_, err := d.Get(ctx, "g1")
	assert.NoError(t, err)
}

func TestValidID(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidID("3f2c9a1e-0d4b-4c55-9a57-1f0c2b7d8e90"))
	assert.True(t, ValidID("01J0ABCDEF"))
	assert.False(t, ValidID(""))
	assert.False(t, ValidID("a/b"))
	assert.False(t, ValidID("a.json"))
}
