// Package server is the HTTP boundary of a running werewolf server: the live
// game's filtered state, the human seat's input, manual stepping, a WebSocket
// feed of log entries and the archive listing.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/MrWong99/werewolf/internal/archive"
	"github.com/MrWong99/werewolf/internal/engine"
	"github.com/MrWong99/werewolf/internal/game"
	"github.com/MrWong99/werewolf/internal/health"
	"github.com/MrWong99/werewolf/internal/observe"
)

// maxBody caps request bodies.
const maxBody = 64 << 10

// ErrNoGame is reported while no game is attached.
var ErrNoGame = errors.New("server: no game running")

// Game is the live game the server exposes. [*engine.Engine] satisfies it.
type Game interface {
	ID() string
	View() engine.View
	Step(ctx context.Context) error
	SubmitInput(in engine.HumanInput) error
	SetAutoPlay(on bool)
	Subscribe() (<-chan game.Entry, func())
}

// Server routes the HTTP API. It is safe for concurrent use.
type Server struct {
	mu   sync.RWMutex
	game Game
	// swapped is closed when game is replaced.
	swapped chan struct{}

	archives archive.Store
	health   *health.Handler
	metrics  *observe.Metrics
	scrape   http.Handler
	newGame  func(ctx context.Context) error
}

// Option is a functional option for [New].
type Option func(*Server)

// WithArchive serves /api/archives from s.
func WithArchive(s archive.Store) Option { return func(srv *Server) { srv.archives = s } }

// WithHealth mounts the probe routes of h.
func WithHealth(h *health.Handler) Option { return func(srv *Server) { srv.health = h } }

// WithMetrics records request metrics into m and serves scrape at /metrics.
// scrape may be nil.
func WithMetrics(m *observe.Metrics, scrape http.Handler) Option {
	return func(srv *Server) {
		srv.metrics = m
		srv.scrape = scrape
	}
}

// WithNewGame enables POST /api/game/new, which calls fn to replace the live
// game. fn is expected to call [Server.SetGame].
func WithNewGame(fn func(ctx context.Context) error) Option {
	return func(srv *Server) { srv.newGame = fn }
}

// New returns a server without a game; attach one with [Server.SetGame].
func New(opts ...Option) *Server {
	s := &Server{}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetGame replaces the live game. nil detaches it. Streams attached to the
// previous game are closed.
func (s *Server) SetGame(g Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.swapped != nil {
		close(s.swapped)
	}
	s.game = g
	s.swapped = make(chan struct{})
}

func (s *Server) current() (Game, error) {
	g, _, err := s.attached()
	return g, err
}

// attached returns the live game and a channel closed when it is replaced.
func (s *Server) attached() (Game, <-chan struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.game == nil {
		return nil, nil, ErrNoGame
	}
	return s.game, s.swapped, nil
}

// Handler returns the routed handler, wrapped in the observe middleware when
// metrics are configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/game", s.handleGame)
	mux.HandleFunc("POST /api/game/input", s.handleInput)
	mux.HandleFunc("POST /api/game/step", s.handleStep)
	mux.HandleFunc("POST /api/game/autoplay", s.handleAutoPlay)
	mux.HandleFunc("GET /api/game/stream", s.handleStream)
	if s.newGame != nil {
		mux.HandleFunc("POST /api/game/new", s.handleNewGame)
	}

	mux.HandleFunc("GET /api/archives", s.handleArchiveList)
	mux.HandleFunc("GET /api/archives/{id}", s.handleArchiveGet)
	mux.HandleFunc("DELETE /api/archives/{id}", s.handleArchiveDelete)

	if s.health != nil {
		s.health.Register(mux)
	}
	if s.scrape != nil {
		mux.Handle("GET /metrics", s.scrape)
	}
	if s.metrics == nil {
		return mux
	}
	return observe.Middleware(s.metrics)(mux)
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	g, err := s.current()
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	v := g.View()
	l, err := lensFor(r.URL.Query().Get("perspective"), v.State.Players)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, l.view(v))
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	g, err := s.current()
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	var in engine.HumanInput
	if err := readJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := g.SubmitInput(in); err != nil {
		switch {
		case errors.Is(err, engine.ErrNoHumanSeat):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, engine.ErrGameOver):
			writeError(w, http.StatusGone, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	observe.Logger(r.Context()).Debug("human input accepted", "game", g.ID(), "target", in.ActionTarget)
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	g, err := s.current()
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if g.View().AutoPlay {
		writeError(w, http.StatusConflict, errors.New("server: auto-play is on"))
		return
	}
	switch err := g.Step(r.Context()); {
	case err == nil:
	case errors.Is(err, engine.ErrBusy):
		writeError(w, http.StatusConflict, err)
		return
	case errors.Is(err, engine.ErrGameOver):
		writeError(w, http.StatusGone, err)
		return
	case r.Context().Err() != nil:
		return
	default:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	v := g.View()
	writeJSON(w, http.StatusOK, map[string]any{"phase": v.State.Phase, "turn": v.State.Turn})
}

func (s *Server) handleAutoPlay(w http.ResponseWriter, r *http.Request) {
	g, err := s.current()
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := readJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.Enabled == nil {
		writeError(w, http.StatusBadRequest, errors.New("server: enabled is required"))
		return
	}
	g.SetAutoPlay(*body.Enabled)
	writeJSON(w, http.StatusOK, map[string]any{"autoPlay": g.View().AutoPlay})
}

func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	if err := s.newGame(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	g, err := s.current()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": g.ID()})
}

func (s *Server) handleArchiveList(w http.ResponseWriter, r *http.Request) {
	if s.archives == nil {
		writeJSON(w, http.StatusOK, []game.Summary{})
		return
	}
	list, err := s.archives.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []game.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleArchiveGet(w http.ResponseWriter, r *http.Request) {
	a, ok := s.loadArchive(w, r)
	if !ok {
		return
	}
	persp := r.URL.Query().Get("perspective")
	if persp == "" {
		persp = string(game.PerspectiveGod)
	}
	l, err := lensFor(persp, a.Players)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, l.archive(a))
}

func (s *Server) handleArchiveDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !archive.ValidID(id) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("server: invalid archive id %q", id))
		return
	}
	if s.archives == nil {
		writeError(w, http.StatusNotFound, archive.ErrNotFound)
		return
	}
	if err := s.archives.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) loadArchive(w http.ResponseWriter, r *http.Request) (game.Archive, bool) {
	id := r.PathValue("id")
	if !archive.ValidID(id) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("server: invalid archive id %q", id))
		return game.Archive{}, false
	}
	if s.archives == nil {
		writeError(w, http.StatusNotFound, archive.ErrNotFound)
		return game.Archive{}, false
	}
	a, err := s.archives.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return game.Archive{}, false
	}
	return a, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, archive.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("server: decode body: %w", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.Error("server: request failed", "status", status, "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
