// Package engine implements the God Loop: the state machine that runs one game
// of Werewolf from SETUP to GAME_REVIEW.
//
// Each call to [Engine.Step] performs one unit of work: a phase transition, one
// speaker's turn, the parallel voting round or a night role's action. Speakers
// act strictly one at a time; a turn is finished only after its speech has been
// played (or its simulated speaking delay has passed). VOTING is the only phase
// that gathers decisions concurrently.
//
// [Engine.Run] drives Step on a fixed polling interval while auto-play is on.
// A processing guard makes Step non-reentrant, so an HTTP "step" request and
// the run loop can never advance the same game at once.
//
// When the seat holding the turn is human-controlled the engine waits for
// [Engine.SubmitInput]. Only that turn stalls; the engine stays readable.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/werewolf/internal/agent"
	"github.com/MrWong99/werewolf/internal/archive"
	"github.com/MrWong99/werewolf/internal/game"
	"github.com/MrWong99/werewolf/internal/observe"
	"github.com/MrWong99/werewolf/pkg/audio"
)

var (
	// ErrBusy is returned by Step while a previous step is still in flight.
	ErrBusy = errors.New("engine: step already in progress")

	// ErrGameOver is returned by Step once the game reached GAME_REVIEW.
	ErrGameOver = errors.New("engine: game is over")

	// ErrNoHumanSeat is returned by SubmitInput when no living seat is
	// human-controlled.
	ErrNoHumanSeat = errors.New("engine: no living human seat")
)

// Pacing controls how long the engine waits between and during turns. All
// values may be zero for a headless run.
type Pacing struct {
	// PollInterval is how often Run re-evaluates whether to step.
	PollInterval time.Duration

	// SpeechDelay is the simulated speaking time of one line when no audio
	// service is configured.
	SpeechDelay time.Duration

	// PhaseDelayMin and PhaseDelayMax bound the random dramatic pause taken
	// after every phase transition.
	PhaseDelayMin time.Duration
	PhaseDelayMax time.Duration
}

// DefaultPacing is used when no pacing option is given.
var DefaultPacing = Pacing{
	PollInterval:  500 * time.Millisecond,
	SpeechDelay:   1500 * time.Millisecond,
	PhaseDelayMin: 500 * time.Millisecond,
	PhaseDelayMax: 1500 * time.Millisecond,
}

// Engine runs a single game. All exported methods are safe for concurrent use.
type Engine struct {
	// mu guards state and the fields below it. Step is the only writer; it
	// takes mu for every mutation so View can read at any time.
	mu      sync.Mutex
	state   *game.State
	queue   []int
	hunter  int
	byVote  bool
	winEval int

	decider  agent.Decider
	audio    audio.Service
	archives archive.Store
	metrics  *observe.Metrics
	ids      *game.IDGenerator
	rng      *rand.Rand
	narrator game.Voice

	pacing     atomic.Pointer[Pacing]
	processing atomic.Bool
	autoPlay   atomic.Bool
	replaying  atomic.Bool
	started    atomic.Bool

	input inputSlot

	subMu      sync.Mutex
	subs       map[chan game.Entry]struct{}
	subsClosed bool

	finishOnce sync.Once
	done       chan struct{}
}

// Option is a functional option for [New].
type Option func(*Engine)

// WithAudio voices every line through svc. Without it the engine waits
// [Pacing.SpeechDelay] per line instead.
func WithAudio(svc audio.Service) Option {
	return func(e *Engine) { e.audio = svc }
}

// WithArchive persists the finished game into s.
func WithArchive(s archive.Store) Option {
	return func(e *Engine) { e.archives = s }
}

// WithMetrics records deaths and finished games into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithSeed makes tie-breaks, fallback targets and speaking order reproducible.
func WithSeed(seed uint64) Option {
	return func(e *Engine) { e.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithPacing overrides [DefaultPacing].
func WithPacing(p Pacing) Option {
	return func(e *Engine) { e.pacing.Store(&p) }
}

// WithNarratorVoice sets the voice the narrator speaks with.
func WithNarratorVoice(v game.Voice) Option {
	return func(e *Engine) { e.narrator = v }
}

// WithAutoPlay sets the initial auto-play flag. Default: on.
func WithAutoPlay(on bool) Option {
	return func(e *Engine) { e.autoPlay.Store(on) }
}

// New returns an engine for state, which must be in SETUP. decider answers for
// every AI-controlled seat.
func New(state *game.State, decider agent.Decider, opts ...Option) (*Engine, error) {
	if state == nil || decider == nil {
		return nil, errors.New("engine: state and decider are required")
	}
	if state.Phase != game.PhaseSetup {
		return nil, fmt.Errorf("engine: state must start in %s, got %s", game.PhaseSetup, state.Phase)
	}
	e := &Engine{
		state:   state,
		decider: decider,
		ids:     game.NewIDGenerator(),
		subs:    make(map[chan game.Entry]struct{}),
		done:    make(chan struct{}),
		input:   newInputSlot(),
	}
	e.autoPlay.Store(true)
	p := DefaultPacing
	e.pacing.Store(&p)
	for _, o := range opts {
		o(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return e, nil
}

// ID returns the game id.
func (e *Engine) ID() string { return e.state.ID }

// Step advances the game by one unit of work. It returns [ErrBusy] if another
// step is in flight and [ErrGameOver] after GAME_REVIEW. A cancelled context
// aborts a step that waits for a decision without applying it.
func (e *Engine) Step(ctx context.Context) error {
	if !e.processing.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer e.processing.Store(false)

	e.mu.Lock()
	phase, turn := e.state.Phase, e.state.Turn
	e.mu.Unlock()
	if phase == game.PhaseGameReview {
		return ErrGameOver
	}

	ctx, span := observe.StartStepSpan(ctx, e.state.ID, string(phase), turn)
	defer span.End()

	if e.started.CompareAndSwap(false, true) && e.metrics != nil {
		e.metrics.ActiveGames.Add(ctx, 1)
	}

	if err := e.dispatch(ctx, phase); err != nil {
		observe.FailSpan(span, err)
		return err
	}

	e.mu.Lock()
	e.state.Snapshot()
	e.mu.Unlock()
	return nil
}

// Run steps the game while auto-play is enabled, nothing is in flight and no
// replay is running. It returns nil when the game is over and ctx.Err() when
// ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.pollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.done:
			return nil
		case <-ticker.C:
		}
		ticker.Reset(e.pollInterval())
		if !e.autoPlay.Load() || e.replaying.Load() || e.processing.Load() {
			continue
		}
		switch err := e.Step(ctx); {
		case err == nil, errors.Is(err, ErrBusy):
		case errors.Is(err, ErrGameOver):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			slog.Warn("engine: step failed", "game", e.state.ID, "err", err)
		}
	}
}

func (e *Engine) pollInterval() time.Duration {
	if d := e.pacing.Load().PollInterval; d > 0 {
		return d
	}
	return time.Millisecond
}

// SetAutoPlay turns automatic stepping on or off. It has no effect once the
// game is over.
func (e *Engine) SetAutoPlay(on bool) {
	if on && e.Finished() {
		return
	}
	e.autoPlay.Store(on)
}

// AutoPlay reports whether Run advances the game.
func (e *Engine) AutoPlay() bool { return e.autoPlay.Load() }

// SetPacing replaces the pacing for subsequent turns.
func (e *Engine) SetPacing(p Pacing) { e.pacing.Store(&p) }

// SetReplaying pauses Run while a replay of another game is playing.
func (e *Engine) SetReplaying(on bool) { e.replaying.Store(on) }

// Done is closed when the game reaches GAME_REVIEW.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Finished reports whether the game reached GAME_REVIEW.
func (e *Engine) Finished() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// View is a read-only copy of the engine's state.
type View struct {
	State game.State `json:"state"`

	AutoPlay   bool `json:"autoPlay"`
	Processing bool `json:"processing"`

	// AwaitingInput is the decision the human seat is being asked for, or ""
	// while no human turn is pending.
	AwaitingInput agent.Kind `json:"awaitingInput,omitempty"`

	// Queue lists the seats still to speak in the current phase.
	Queue []int `json:"queue,omitempty"`
}

// View returns a consistent copy of the current state.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return View{
		State:         e.state.Clone(),
		AutoPlay:      e.autoPlay.Load(),
		Processing:    e.processing.Load(),
		AwaitingInput: e.input.awaiting(),
		Queue:         slices.Clone(e.queue),
	}
}

// Archive returns the archive of a finished game and true, or false while
// the game is still running.
func (e *Engine) Archive() (game.Archive, bool) {
	if !e.Finished() {
		return game.Archive{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return game.NewArchive(e.state), true
}

// Subscribe returns a channel receiving every entry appended from now on and a
// function that ends the subscription. The channel is closed once the game is
// over; subscribing to a finished game yields a closed channel. Slow
// subscribers miss entries rather than stall the game.
func (e *Engine) Subscribe() (<-chan game.Entry, func()) {
	ch := make(chan game.Entry, 64)
	e.subMu.Lock()
	defer e.subMu.Unlock()
	if e.subsClosed {
		close(ch)
		return ch, func() {}
	}
	e.subs[ch] = struct{}{}
	return ch, func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if _, ok := e.subs[ch]; ok {
			delete(e.subs, ch)
			close(ch)
		}
	}
}

// closeSubscribers ends every subscription. Later publishes go nowhere.
func (e *Engine) closeSubscribers() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for ch := range e.subs {
		close(ch)
	}
	clear(e.subs)
	e.subsClosed = true
}

func (e *Engine) publish(entry game.Entry) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for ch := range e.subs {
		select {
		case ch <- entry:
		default:
			slog.Debug("engine: subscriber lagging, entry dropped", "entry", entry.ID)
		}
	}
}

// finish moves the game to GAME_REVIEW, reveals roles and persists the
// archive. It runs at most once.
func (e *Engine) finish(ctx context.Context, winner game.Outcome) {
	e.finishOnce.Do(func() {
		e.autoPlay.Store(false)

		e.mu.Lock()
		e.state.Winner = winner
		e.state.Phase = game.PhaseGameReview
		e.queue = nil
		e.mu.Unlock()

		e.say(ctx, game.PhaseGameReview, gameOverLine(winner))
		e.record(game.Entry{Phase: game.PhaseGameReview, Content: revealLine(e.state.Players), IsSystem: true, Silent: true})

		e.mu.Lock()
		a := game.NewArchive(e.state)
		e.mu.Unlock()
		if e.archives != nil {
			if err := e.archives.Save(ctx, a); err != nil {
				slog.Error("engine: archive save failed", "game", a.ID, "err", err)
			}
		}
		if e.metrics != nil {
			e.metrics.RecordGameFinished(ctx, game.ModeWerewolf, string(winner))
			if e.started.Load() {
				e.metrics.ActiveGames.Add(ctx, -1)
			}
		}
		observe.Logger(ctx).Info("game over", "game", a.ID, "winner", winner, "turns", a.Turns)
		e.closeSubscribers()
		close(e.done)
	})
}
