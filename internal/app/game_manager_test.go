package app_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/MrWong99/werewolf/internal/agent"
	"github.com/MrWong99/werewolf/internal/app"
	"github.com/MrWong99/werewolf/internal/engine"
	"github.com/MrWong99/werewolf/internal/game"
)

func pausedFactory(t *testing.T) app.EngineFactory {
	t.Helper()
	return func() (*engine.Engine, error) {
		roles, err := game.PresetComposition(game.Preset9)
		if err != nil {
			return nil, err
		}
		players, err := game.Deal(roles, nil, 0, rand.New(rand.NewPCG(1, 2)))
		if err != nil {
			return nil, err
		}
		return engine.New(game.NewState(players), agent.NewRandomDecider(1),
			engine.WithPacing(engine.Pacing{}), engine.WithAutoPlay(false))
	}
}

func TestGameManager_StartStop(t *testing.T) {
	t.Parallel()

	var started []string
	gm := app.NewGameManager(pausedFactory(t), func(e *engine.Engine) { started = append(started, e.ID()) })

	if gm.Current() != nil {
		t.Fatal("Current() before Start should be nil")
	}
	if gm.IsActive() {
		t.Fatal("IsActive() before Start should be false")
	}

	e, err := gm.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if !gm.IsActive() {
		t.Error("expected the game to be active after Start")
	}
	info := gm.Info()
	if info.GameID != e.ID() {
		t.Errorf("GameID = %q, want %q", info.GameID, e.ID())
	}
	if info.StartedAt.IsZero() {
		t.Error("StartedAt should be set")
	}
	if len(started) != 1 || started[0] != e.ID() {
		t.Errorf("onStart calls = %v, want [%s]", started, e.ID())
	}

	if err := gm.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if gm.IsActive() {
		t.Error("expected the game to be inactive after Stop")
	}
	if gm.Current() != e {
		t.Error("a stopped game should stay current")
	}
}

func TestGameManager_DoubleStartFails(t *testing.T) {
	t.Parallel()

	gm := app.NewGameManager(pausedFactory(t), nil)
	if _, err := gm.Start(context.Background()); err != nil {
		t.Fatalf("first Start() error: %v", err)
	}
	defer gm.Stop()

	if _, err := gm.Start(context.Background()); err == nil {
		t.Fatal("expected an error for a second Start while the game is running")
	}
}

func TestGameManager_StopWithoutGame(t *testing.T) {
	t.Parallel()

	gm := app.NewGameManager(pausedFactory(t), nil)
	if err := gm.Stop(); !errors.Is(err, app.ErrNoActiveGame) {
		t.Errorf("Stop() error = %v, want ErrNoActiveGame", err)
	}
}

func TestGameManager_Restart(t *testing.T) {
	t.Parallel()

	gm := app.NewGameManager(pausedFactory(t), nil)
	first, err := gm.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	second, err := gm.Restart(context.Background())
	if err != nil {
		t.Fatalf("Restart() error: %v", err)
	}
	defer gm.Stop()

	if first.ID() == second.ID() {
		t.Error("Restart returned the same game")
	}
	if gm.Current() != second {
		t.Error("Current() should be the restarted game")
	}
}

func TestGameManager_FactoryError(t *testing.T) {
	t.Parallel()

	boom := errors.New("no seats")
	gm := app.NewGameManager(func() (*engine.Engine, error) { return nil, boom }, nil)
	if _, err := gm.Start(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Start() error = %v, want wrapped %v", err, boom)
	}
	if gm.IsActive() {
		t.Error("failed Start should leave no active game")
	}
}

func TestGameManager_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	gm := app.NewGameManager(pausedFactory(t), nil)
	if _, err := gm.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer gm.Stop()

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			_ = gm.IsActive()
			_ = gm.Info()
			_ = gm.Current()
		})
	}
	wg.Wait()
}
