// Package app wires the werewolf subsystems into a running application.
//
// The App struct owns the full lifecycle: New connects storage, audio and the
// decision layer, Serve runs the HTTP API around the live game, and Shutdown
// tears everything down in order. Play, Replay and Debate are the headless
// entry points used by the CLI.
//
// For testing, inject doubles via functional options (WithArchive,
// WithAudio, WithDecider). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/werewolf/internal/agent"
	"github.com/MrWong99/werewolf/internal/archive"
	"github.com/MrWong99/werewolf/internal/archive/mongo"
	"github.com/MrWong99/werewolf/internal/archive/postgres"
	"github.com/MrWong99/werewolf/internal/config"
	"github.com/MrWong99/werewolf/internal/debate"
	"github.com/MrWong99/werewolf/internal/engine"
	"github.com/MrWong99/werewolf/internal/game"
	"github.com/MrWong99/werewolf/internal/health"
	"github.com/MrWong99/werewolf/internal/observe"
	"github.com/MrWong99/werewolf/internal/resilience"
	"github.com/MrWong99/werewolf/internal/server"
	"github.com/MrWong99/werewolf/internal/theater"
	"github.com/MrWong99/werewolf/pkg/audio"
	"github.com/MrWong99/werewolf/pkg/audio/cache"
)

// ErrNoLLM is returned by [App.Debate] when no text-generation provider is
// configured.
var ErrNoLLM = errors.New("app: debate requires an llm provider")

// App owns all subsystem lifetimes.
type App struct {
	mu        sync.Mutex
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	pool     *pgxpool.Pool
	archives archive.Store
	audio    audio.Service
	gen      *agent.Generator
	decider  agent.Decider
	metrics  *observe.Metrics
	scrape   http.Handler
	games    *GameManager
	server   *server.Server
	level    *slog.LevelVar

	// gameCtx parents every game loop; Serve replaces it with its own
	// context so games outlive the request that created them.
	gameCtx context.Context

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithArchive injects an archive store instead of creating one from config.
func WithArchive(s archive.Store) Option {
	return func(a *App) { a.archives = s }
}

// WithAudio injects an audio service instead of building a player from the
// TTS provider.
func WithAudio(svc audio.Service) Option {
	return func(a *App) { a.audio = svc }
}

// WithDecider injects the decider answering for every AI seat.
func WithDecider(d agent.Decider) Option {
	return func(a *App) { a.decider = d }
}

// WithMetrics injects the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithTelemetry records into tel's instruments and serves its registry at
// /metrics. It overrides [WithMetrics].
func WithTelemetry(tel *observe.Telemetry) Option {
	return func(a *App) {
		a.metrics = tel.Metrics()
		a.scrape = tel.Handler()
	}
}

// WithLogLevel hands the app the level variable of the process logger so a
// reloaded config can change verbosity.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from [BuildProviders]; nil is treated as no providers.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		gameCtx:   context.Background(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.scrape == nil {
		a.scrape = promhttp.Handler()
	}

	// ── 1. Database pool ─────────────────────────────────────────────────
	if err := a.initPool(ctx); err != nil {
		return nil, fmt.Errorf("app: init database: %w", err)
	}

	// ── 2. Archive store ─────────────────────────────────────────────────
	if err := a.initArchive(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init archive: %w", err)
	}

	// ── 3. Audio ─────────────────────────────────────────────────────────
	if err := a.initAudio(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init audio: %w", err)
	}

	// ── 4. Decision layer ────────────────────────────────────────────────
	a.initDecider()

	// ── 5. Game manager and HTTP surface ─────────────────────────────────
	a.server = server.New(
		server.WithArchive(a.archives),
		server.WithHealth(a.healthHandler()),
		server.WithMetrics(a.metrics, a.scrape),
		server.WithNewGame(a.restartGame),
	)
	a.games = NewGameManager(a.NewGame, func(e *engine.Engine) { a.server.SetGame(e) })

	return a, nil
}

// initPool opens the shared PostgreSQL pool when any component needs it.
func (a *App) initPool(ctx context.Context) error {
	needsPool := a.archives == nil && a.cfg.Archive.Backend == config.ArchivePostgres
	needsPool = needsPool || (a.audio == nil && a.cfg.Audio.Enabled && a.cfg.Audio.Cache == config.CachePostgres)
	if !needsPool {
		return nil
	}
	pool, err := pgxpool.New(ctx, a.cfg.Archive.DSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	a.pool = pool
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	return nil
}

func (a *App) initArchive(ctx context.Context) error {
	if a.archives != nil {
		return nil
	}

	var store archive.Store
	switch a.cfg.Archive.Backend {
	case config.ArchiveMemory:
		store = archive.NewMemStore()
	case config.ArchivePostgres:
		pg := postgres.New(a.pool)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		store = pg
	case config.ArchiveMongo:
		m, disconnect, err := mongo.Connect(ctx, a.cfg.Archive.URI, a.cfg.Archive.Database)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return disconnect(ctx)
		})
		store = m
	default:
		fs, err := archive.NewFileStore(a.cfg.Archive.Dir)
		if err != nil {
			return err
		}
		store = fs
	}
	a.archives = archive.NewDebounced(store, a.cfg.Archive.Debounce)
	slog.Info("archive store ready", "backend", a.cfg.Archive.Backend)
	return nil
}

func (a *App) initAudio(ctx context.Context) error {
	if a.audio != nil {
		return nil
	}
	if !a.cfg.Audio.Enabled || a.providers.TTS == nil {
		slog.Info("audio disabled; lines are paced by speech_delay")
		return nil
	}

	var store cache.Store
	switch a.cfg.Audio.Cache {
	case config.CacheFile:
		f, err := cache.NewFile(a.cfg.Audio.CacheDir)
		if err != nil {
			return err
		}
		store = f
	case config.CachePostgres:
		pg := cache.NewPostgres(a.pool)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		store = pg
	default:
		store = cache.NewMemory(a.cfg.Audio.CacheBudget)
	}

	metrics := a.metrics
	player := audio.NewPlayer(
		audio.WithProvider(a.providers.TTSName, a.providers.TTS),
		audio.WithStore(store),
		audio.WithFormat(audio.Format{SampleRate: a.cfg.Audio.SampleRate, Channels: 1}),
		audio.WithSynthesisObserver(func(provider string, d time.Duration, err error) {
			metrics.TTSDuration.Record(context.Background(), d.Seconds(), metric.WithAttributes(observe.Attr("provider", provider)))
			if err != nil {
				metrics.RecordProviderError(context.Background(), provider, "synthesis")
			}
		}),
	)
	a.audio = player
	a.closers = append(a.closers, func() error {
		player.Stop()
		return nil
	})
	slog.Info("audio ready", "tts", a.providers.TTSName, "cache", a.cfg.Audio.Cache)
	return nil
}

func (a *App) initDecider() {
	if a.providers.LLM != nil {
		metrics := a.metrics
		a.gen = agent.NewGenerator(a.providers.LLM, agent.WithRetry(resilience.RetryConfig{
			Attempts:  3,
			BaseDelay: time.Second,
			MaxDelay:  2 * time.Second,
			OnRetry: func(attempt int, err error) {
				metrics.GenerationRetries.Add(context.Background(), 1)
				slog.Warn("generation failed, retrying", "attempt", attempt, "err", err)
			},
		}))
	}
	if a.decider != nil {
		return
	}
	if a.gen != nil {
		a.decider = agent.NewLLMDecider(a.gen, agent.WithMetrics(a.metrics))
		return
	}
	a.decider = agent.NewRandomDecider(a.cfg.Game.Seed)
}

func (a *App) healthHandler() *health.Handler {
	checks := []health.Check{{
		Name: "archive",
		Run: func(ctx context.Context) error {
			_, err := a.archives.List(ctx)
			return err
		},
	}}
	if a.pool != nil {
		checks = append(checks, health.Check{Name: "postgres", Run: a.pool.Ping})
	}
	if a.providers.TTS != nil {
		checks = append(checks, health.Check{
			Name:     "tts",
			Optional: true,
			Run: func(ctx context.Context) error {
				_, err := a.providers.TTS.ListVoices(ctx)
				return err
			},
		})
	}
	return health.New(checks, health.WithGame(func() map[string]any {
		if a.games == nil {
			return nil
		}
		info := a.games.Info()
		if info.GameID == "" {
			return nil
		}
		return map[string]any{
			"id":        info.GameID,
			"startedAt": info.StartedAt,
			"finished":  info.Finished,
		}
	}))
}

// ─── Games ───────────────────────────────────────────────────────────────────

// NewGame deals a fresh table from the current config and returns its engine
// in SETUP. It does not start the engine.
func (a *App) NewGame() (*engine.Engine, error) {
	a.mu.Lock()
	cfg := *a.cfg
	a.mu.Unlock()

	roles, err := cfg.Game.Composition()
	if err != nil {
		return nil, err
	}
	seed := cfg.Game.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	players, err := game.Deal(roles, cfg.Actors, cfg.Game.HumanSeat, rng)
	if err != nil {
		return nil, err
	}

	opts := []engine.Option{
		engine.WithArchive(a.archives),
		engine.WithMetrics(a.metrics),
		engine.WithSeed(seed),
		engine.WithPacing(enginePacing(cfg.Pacing)),
		engine.WithNarratorVoice(cfg.Narrator.Voice),
		engine.WithAutoPlay(cfg.Game.AutoPlayEnabled()),
	}
	if a.audio != nil {
		opts = append(opts, engine.WithAudio(a.audio))
	}
	eng, err := engine.New(game.NewState(players), a.decider, opts...)
	if err != nil {
		return nil, err
	}
	slog.Info("game dealt", "game", eng.ID(), "seats", len(players), "human_seat", cfg.Game.HumanSeat, "seed", seed)
	return eng, nil
}

// Play deals a game and runs it headless to the end. onEntry, when set,
// receives every entry as it is appended; it must not block for long.
func (a *App) Play(ctx context.Context, onEntry func(game.Entry)) (game.Archive, error) {
	if a.cfg.Game.HumanSeat != 0 {
		return game.Archive{}, errors.New("app: headless play needs an all-AI table (game.human_seat: 0)")
	}
	eng, err := a.NewGame()
	if err != nil {
		return game.Archive{}, err
	}
	eng.SetAutoPlay(true)

	var wg sync.WaitGroup
	if onEntry != nil {
		entries, unsubscribe := eng.Subscribe()
		defer wg.Wait()
		defer unsubscribe()
		wg.Go(func() {
			for e := range entries {
				onEntry(e)
			}
		})
	}

	if err := eng.Run(ctx); err != nil {
		return game.Archive{}, err
	}
	arch, ok := eng.Archive()
	if !ok {
		return game.Archive{}, errors.New("app: game ended without an archive")
	}
	return arch, nil
}

// Replay loads the archive id and replays it through perspective. observer
// may be nil. A live game, if any, is paused for the duration.
func (a *App) Replay(ctx context.Context, id string, perspective game.Perspective, observer func(theater.Frame)) (theater.Result, error) {
	arch, err := a.archives.Get(ctx, id)
	if err != nil {
		return theater.Result{}, err
	}

	a.mu.Lock()
	p := a.cfg.Pacing
	a.mu.Unlock()
	opts := []theater.Option{
		theater.WithPerspective(perspective),
		theater.WithMetrics(a.metrics),
		theater.WithPacing(theater.Pacing{
			HiddenDelay: p.ReplayHiddenDelay,
			SpeechDelay: p.SpeechDelay,
			TextDelay:   min(p.SpeechDelay, theater.DefaultPacing.TextDelay),
		}),
	}
	if observer != nil {
		opts = append(opts, theater.WithObserver(observer))
	}
	if live := a.games.Current(); live != nil {
		opts = append(opts, theater.WithPauser(live))
	}

	th := theater.New(a.audio, opts...)
	if a.audio != nil {
		cached, total := th.Readiness(ctx, arch)
		slog.Info("replay audio readiness", "id", id, "cached", cached, "total", total)
	}
	return th.Replay(ctx, arch)
}

// Debate runs the configured podcast debate. A non-empty topic overrides the
// configured one.
func (a *App) Debate(ctx context.Context, topic string) (game.Archive, error) {
	if a.gen == nil {
		return game.Archive{}, ErrNoLLM
	}
	a.mu.Lock()
	dc := a.cfg.Debate
	narrator := a.cfg.Narrator.Voice
	speech := a.cfg.Pacing.SpeechDelay
	a.mu.Unlock()
	if topic != "" {
		dc.Topic = topic
	}
	if err := dc.Ready(); err != nil {
		return game.Archive{}, err
	}

	opts := []debate.Option{
		debate.WithArchive(a.archives),
		debate.WithMetrics(a.metrics),
		debate.WithNarratorVoice(narrator),
		debate.WithSpeechDelay(speech),
	}
	if a.audio != nil {
		opts = append(opts, debate.WithAudio(a.audio))
	}
	d, err := debate.New(debate.Config{
		Topic:  dc.Topic,
		Rounds: dc.Rounds,
		Host:   debate.Participant{Actor: dc.Host.Actor, Stance: dc.Host.Stance},
		Guest:  debate.Participant{Actor: dc.Guest.Actor, Stance: dc.Guest.Stance},
	}, a.gen, opts...)
	if err != nil {
		return game.Archive{}, err
	}
	return d.Run(ctx)
}

// restartGame backs POST /api/game/new. The request context only bounds the
// call; the new game runs under gameCtx.
func (a *App) restartGame(context.Context) error {
	a.mu.Lock()
	ctx := a.gameCtx
	a.mu.Unlock()
	_, err := a.games.Restart(ctx)
	return err
}

// Archives returns the archive store.
func (a *App) Archives() archive.Store { return a.archives }

// Games returns the live game manager.
func (a *App) Games() *GameManager { return a.games }

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// ─── Serve ───────────────────────────────────────────────────────────────────

// Serve starts the first game and the HTTP API on the configured address and
// blocks until ctx is cancelled or the listener fails. The HTTP server is
// drained before Serve returns.
func (a *App) Serve(ctx context.Context) error {
	a.mu.Lock()
	addr := a.cfg.Server.ListenAddr
	a.gameCtx = ctx
	a.mu.Unlock()
	if _, err := a.games.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("app: http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown error", "err", err)
	}
	if err := a.games.Stop(); err != nil && !errors.Is(err, ErrNoActiveGame) {
		slog.Warn("game stop error", "err", err)
	}
	return nil
}

// ApplyConfig takes over the hot-reloadable parts of next as reported by
// changes. Sections listed in changes.RestartRequired are logged and ignored.
func (a *App) ApplyConfig(next *config.Config, changes config.Changes) {
	a.mu.Lock()
	defer a.mu.Unlock()

	live := a.games.Current()
	if changes.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(changes.NewLogLevel))
		a.cfg.Server.LogLevel = changes.NewLogLevel
		slog.Info("log level changed", "level", changes.NewLogLevel)
	}
	if changes.PacingChanged {
		a.cfg.Pacing = changes.NewPacing
		if live != nil {
			live.SetPacing(enginePacing(changes.NewPacing))
		}
		slog.Info("pacing changed")
	}
	if changes.AutoPlayChanged {
		on := changes.NewAutoPlay
		a.cfg.Game.AutoPlay = &on
		if live != nil {
			live.SetAutoPlay(on)
		}
		slog.Info("auto-play changed", "enabled", on)
	}
	if changes.NarratorChanged {
		a.cfg.Narrator = next.Narrator
		slog.Info("narrator voice changed; applies to the next game")
	}
	if len(changes.RestartRequired) > 0 {
		slog.Warn("config sections changed that need a restart", "sections", changes.RestartRequired)
	}
}

// Shutdown stops the live game and runs all closers in reverse order. It
// honours ctx's deadline between closers.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.games != nil {
			if err := a.games.Stop(); err != nil && !errors.Is(err, ErrNoActiveGame) {
				slog.Warn("game stop error", "err", err)
			}
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// SlogLevel converts a config.LogLevel to its slog level. Unknown values map
// to info.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func enginePacing(p config.PacingConfig) engine.Pacing {
	return engine.Pacing{
		PollInterval:  p.PollInterval,
		SpeechDelay:   p.SpeechDelay,
		PhaseDelayMin: p.PhaseDelayMin,
		PhaseDelayMax: p.PhaseDelayMax,
	}
}
