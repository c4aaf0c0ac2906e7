package app_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/werewolf/internal/app"
	"github.com/MrWong99/werewolf/internal/archive"
	"github.com/MrWong99/werewolf/internal/config"
	"github.com/MrWong99/werewolf/internal/game"
	"github.com/MrWong99/werewolf/internal/theater"
	llmmock "github.com/MrWong99/werewolf/pkg/provider/llm/mock"
)

// testConfig returns an all-AI 9-seat table that plays without pauses.
func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Archive.Backend = config.ArchiveMemory
	cfg.Game.Seed = 11
	config.ApplyDefaults(cfg)
	cfg.Pacing = config.PacingConfig{}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, providers *app.Providers, opts ...app.Option) (*app.App, *archive.MemStore) {
	t.Helper()
	store := archive.NewMemStore()
	opts = append([]app.Option{app.WithArchive(store)}, opts...)
	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a, store
}

func TestApp_PlayToCompletion(t *testing.T) {
	t.Parallel()

	a, store := newTestApp(t, testConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var streamed int
	arch, err := a.Play(ctx, func(game.Entry) { streamed++ })
	if err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if !arch.Winner.Decided() {
		t.Errorf("Winner = %q, want a decided outcome", arch.Winner)
	}
	if arch.Mode != game.ModeWerewolf {
		t.Errorf("Mode = %q, want %q", arch.Mode, game.ModeWerewolf)
	}
	if streamed == 0 {
		t.Error("onEntry was never called")
	}
	if _, err := store.Get(ctx, arch.ID); err != nil {
		t.Errorf("archive not saved: %v", err)
	}
}

func TestApp_PlayRejectsHumanSeat(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Game.HumanSeat = 3
	a, _ := newTestApp(t, cfg, nil)

	if _, err := a.Play(context.Background(), nil); err == nil {
		t.Fatal("expected an error for a table with a human seat")
	}
}

func TestApp_NewGameIsSeeded(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t, testConfig(), nil)

	first, err := a.NewGame()
	if err != nil {
		t.Fatalf("NewGame() error: %v", err)
	}
	second, err := a.NewGame()
	if err != nil {
		t.Fatalf("NewGame() error: %v", err)
	}
	if first.ID() == second.ID() {
		t.Error("two games share an id")
	}

	p1, p2 := first.View().State.Players, second.View().State.Players
	if len(p1) != 9 {
		t.Fatalf("seats = %d, want 9", len(p1))
	}
	for i := range p1 {
		if p1[i].Role != p2[i].Role {
			t.Errorf("seat %d: role %s vs %s, want the same deal for the same seed", i+1, p1[i].Role, p2[i].Role)
		}
	}
}

func TestApp_NewGameAppliesActorsAndHumanSeat(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Game.HumanSeat = 2
	cfg.Actors = []game.Actor{{Name: "阿明"}, {Name: "小红"}}
	a, _ := newTestApp(t, cfg, nil)

	e, err := a.NewGame()
	if err != nil {
		t.Fatalf("NewGame() error: %v", err)
	}
	for _, p := range e.View().State.Players {
		if p.IsHuman != (p.Seat == 2) {
			t.Errorf("seat %d: IsHuman = %v", p.Seat, p.IsHuman)
		}
		if p.Actor.Name != "阿明" && p.Actor.Name != "小红" {
			t.Errorf("seat %d: actor %q not from config", p.Seat, p.Actor.Name)
		}
	}
}

func TestApp_Replay(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t, testConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	arch, err := a.Play(ctx, nil)
	if err != nil {
		t.Fatalf("Play() error: %v", err)
	}

	var frames int
	res, err := a.Replay(ctx, arch.ID, game.PerspectiveGood, func(theater.Frame) { frames++ })
	if err != nil {
		t.Fatalf("Replay() error: %v", err)
	}
	if len(res.Log) != len(arch.Log) {
		t.Errorf("replayed %d entries, want %d", len(res.Log), len(arch.Log))
	}
	if len(res.Visible) >= len(arch.Log) {
		t.Errorf("GOOD saw %d of %d entries, want night actions hidden", len(res.Visible), len(arch.Log))
	}
	if frames < len(arch.Log) {
		t.Errorf("observer got %d frames, want at least %d", frames, len(arch.Log))
	}

	if _, err := a.Replay(ctx, "missing", game.PerspectiveGod, nil); !errors.Is(err, archive.ErrNotFound) {
		t.Errorf("Replay(missing) error = %v, want ErrNotFound", err)
	}
}

func TestApp_DebateNeedsLLM(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t, testConfig(), nil)
	if _, err := a.Debate(context.Background(), "topic"); !errors.Is(err, app.ErrNoLLM) {
		t.Errorf("Debate() error = %v, want ErrNoLLM", err)
	}
}

func TestApp_Debate(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Debate = config.DebateConfig{
		Topic:  "AI 是否会取代程序员",
		Rounds: 1,
		Host:   config.DebateSpeaker{Actor: game.Actor{Name: "小林"}, Stance: "不会"},
		Guest:  config.DebateSpeaker{Actor: game.Actor{Name: "老周"}, Stance: "会"},
	}
	p := &llmmock.Provider{Responses: []string{"我先说两句"}}
	a, store := newTestApp(t, cfg, &app.Providers{LLM: p})

	arch, err := a.Debate(context.Background(), "远程办公是否提高效率")
	if err != nil {
		t.Fatalf("Debate() error: %v", err)
	}
	if arch.Mode != game.ModeDebate {
		t.Errorf("Mode = %q, want %q", arch.Mode, game.ModeDebate)
	}
	if arch.Title != "远程办公是否提高效率" {
		t.Errorf("Title = %q, want the topic override", arch.Title)
	}
	if len(p.Calls()) != 6 {
		t.Errorf("llm calls = %d, want 6", len(p.Calls()))
	}
	if _, err := store.Get(context.Background(), arch.ID); err != nil {
		t.Errorf("debate not archived: %v", err)
	}
}

func TestApp_DebateIncompleteConfig(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t, testConfig(), &app.Providers{LLM: &llmmock.Provider{}})
	_, err := a.Debate(context.Background(), "")
	if err == nil || !strings.Contains(err.Error(), "debate.topic") {
		t.Errorf("Debate() error = %v, want a missing topic", err)
	}
}

func TestApp_ApplyConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	off := false
	cfg.Game.AutoPlay = &off
	var level slog.LevelVar
	a, _ := newTestApp(t, cfg, nil, app.WithLogLevel(&level))

	live, err := a.Games().Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	next := testConfig()
	next.Server.LogLevel = config.LogDebug
	a.ApplyConfig(next, config.Changes{
		LogLevelChanged: true,
		NewLogLevel:     config.LogDebug,
		AutoPlayChanged: true,
		NewAutoPlay:     true,
		RestartRequired: []string{"game"},
	})

	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
	if !live.AutoPlay() {
		t.Error("auto-play not applied to the live game")
	}
	if err := a.Games().Stop(); err != nil {
		t.Errorf("Stop() error: %v", err)
	}
}

func TestApp_HandlerServesLiveGame(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	off := false
	cfg.Game.AutoPlay = &off
	a, _ := newTestApp(t, cfg, nil)

	h := a.Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/game", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /api/game before start = %d, want 404", rec.Code)
	}

	live, err := a.Games().Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer a.Games().Stop()

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/game", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/game = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), live.ID()) {
		t.Errorf("body does not mention game %s", live.ID())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/game/new", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/game/new = %d, want 201", rec.Code)
	}
	if got := a.Games().Current().ID(); got == live.ID() {
		t.Error("new game did not replace the live one")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if !strings.Contains(rec.Body.String(), a.Games().Current().ID()) {
		t.Errorf("healthz body %q does not report the live game", rec.Body.String())
	}
}

func TestApp_ShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(), nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("first Shutdown() error: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error: %v", err)
	}
}

func TestApp_FileArchiveFromConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Archive = config.ArchiveConfig{Backend: config.ArchiveFile, Dir: t.TempDir(), Debounce: time.Second}
	a, err := app.New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer a.Shutdown(context.Background())

	list, err := a.Archives().List(context.Background())
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("List() = %d entries, want 0", len(list))
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := app.SlogLevel(tt.in); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
