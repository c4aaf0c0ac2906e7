package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/werewolf/internal/game"
	"github.com/MrWong99/werewolf/internal/observe"
)

const writeTimeout = 5 * time.Second

// streamMessage is one frame of the live feed.
type streamMessage struct {
	Type  string      `json:"type"`
	Entry *game.Entry `json:"entry,omitempty"`
	Phase game.Phase  `json:"phase,omitempty"`
	Turn  int         `json:"turn,omitempty"`
}

// handleStream upgrades to a WebSocket and pushes every new log entry the
// requested lens may see. The lens is fixed at connect time; the players it
// is evaluated against are refreshed per entry so deaths and reveals apply.
// The stream ends when the game is over or replaced.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	g, swapped, err := s.attached()
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

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	entries, unsubscribe := g.Subscribe()
	defer unsubscribe()

	// The client never sends; CloseRead cancels ctx when it goes away.
	ctx := conn.CloseRead(r.Context())
	log := observe.Logger(ctx).With("game", g.ID(), "perspective", l.name())
	log.Debug("stream connected")
	if s.metrics != nil {
		s.metrics.ActiveSpectators.Add(ctx, 1)
		defer s.metrics.ActiveSpectators.Add(context.WithoutCancel(ctx), -1)
	}

	if err := write(ctx, conn, streamMessage{Type: "hello", Phase: v.State.Phase, Turn: v.State.Turn}); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			log.Debug("stream closed by client")
			return
		case <-swapped:
			conn.Close(websocket.StatusNormalClosure, "game replaced")
			return
		case e, ok := <-entries:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "game over")
				return
			}
			players := g.View().State.Players
			if !l.visible(e, players) {
				continue
			}
			e = l.entry(e)
			if err := write(ctx, conn, streamMessage{Type: "entry", Entry: &e}); err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Debug("stream write failed", "err", err)
				}
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg streamMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}
