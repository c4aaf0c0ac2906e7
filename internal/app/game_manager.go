package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/werewolf/internal/engine"
)

// ErrNoActiveGame is returned by [GameManager.Stop] when nothing is running.
var ErrNoActiveGame = errors.New("game: no active game")

// GameInfo holds metadata about the managed game.
type GameInfo struct {
	// GameID is the engine's game id.
	GameID string

	// StartedAt is when the game was started.
	StartedAt time.Time

	// Finished reports whether the game reached GAME_REVIEW.
	Finished bool
}

// EngineFactory builds a fresh engine in SETUP.
type EngineFactory func() (*engine.Engine, error)

// GameManager owns the live game. Only one game runs at a time; a finished
// game stays current, readable and archived, until the next Start.
// All exported methods are safe for concurrent use.
type GameManager struct {
	mu      sync.Mutex
	factory EngineFactory
	current *engine.Engine
	info    GameInfo
	cancel  context.CancelFunc
	done    chan struct{}

	// onStart is called with every started engine while mu is held.
	onStart func(*engine.Engine)
}

// NewGameManager returns a manager building games with factory. onStart may
// be nil.
func NewGameManager(factory EngineFactory, onStart func(*engine.Engine)) *GameManager {
	return &GameManager{factory: factory, onStart: onStart}
}

// Start builds a new game and runs its loop until the game ends or ctx is
// cancelled. It fails while another game is still in progress.
func (m *GameManager) Start(ctx context.Context) (*engine.Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && !m.current.Finished() {
		return nil, fmt.Errorf("game: a game is already running (id=%s)", m.info.GameID)
	}
	return m.startLocked(ctx)
}

// Restart stops the current game, if any, and starts a new one.
func (m *GameManager) Restart(ctx context.Context) (*engine.Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	return m.startLocked(ctx)
}

func (m *GameManager) startLocked(ctx context.Context) (*engine.Engine, error) {
	eng, err := m.factory()
	if err != nil {
		return nil, fmt.Errorf("game: build engine: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := eng.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("game: loop ended with error", "game", eng.ID(), "err", err)
		}
	}()

	m.current = eng
	m.cancel = cancel
	m.done = done
	m.info = GameInfo{GameID: eng.ID(), StartedAt: time.Now().UTC()}
	if m.onStart != nil {
		m.onStart(eng)
	}

	slog.Info("game started", "game", eng.ID())
	return eng, nil
}

// Stop cancels the current game's loop and waits for it to return. The
// engine stays readable through [GameManager.Current].
func (m *GameManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return ErrNoActiveGame
	}
	m.stopLocked()
	return nil
}

func (m *GameManager) stopLocked() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel, m.done = nil, nil
	slog.Info("game stopped", "game", m.info.GameID)
}

// Current returns the managed engine, or nil before the first Start.
func (m *GameManager) Current() *engine.Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// IsActive reports whether a game is running and not yet finished.
func (m *GameManager) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil && !m.current.Finished()
}

// Info returns metadata about the managed game. The zero value is returned
// before the first Start.
func (m *GameManager) Info() GameInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := m.info
	if m.current != nil {
		info.Finished = m.current.Finished()
	}
	return info
}
