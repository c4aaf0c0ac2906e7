package server

import (
	"fmt"

	"github.com/MrWong99/werewolf/internal/agent"
	"github.com/MrWong99/werewolf/internal/engine"
	"github.com/MrWong99/werewolf/internal/game"
)

// lens decides what one client may see of a game.
type lens struct {
	god         bool
	perspective game.Perspective

	// viewer is set when the lens is the human seat's own eyes.
	viewer *game.Player
}

// lensFor resolves the perspective query value. An empty value means the
// human seat's live view, or the GOOD spectator view when no seat is human.
func lensFor(query string, players []game.Player) (lens, error) {
	if query == "" {
		for _, p := range players {
			if p.IsHuman {
				return lens{viewer: &p}, nil
			}
		}
		return lens{perspective: game.PerspectiveGood}, nil
	}
	p, err := game.ParsePerspective(query)
	if err != nil {
		return lens{}, err
	}
	return lens{god: p == game.PerspectiveGod, perspective: p}, nil
}

func (l lens) name() string {
	if l.viewer != nil {
		return fmt.Sprintf("SEAT_%d", l.viewer.Seat)
	}
	return string(l.perspective)
}

func (l lens) visible(e game.Entry, players []game.Player) bool {
	if l.god {
		return true
	}
	if l.viewer != nil {
		return game.IsVisibleTo(e, *l.viewer, players)
	}
	return game.IsVisible(e, l.perspective, players)
}

// entry strips the reasoning of everyone but the viewer.
func (l lens) entry(e game.Entry) game.Entry {
	if l.god || (l.viewer != nil && e.Speaker == l.viewer.Seat) {
		return e
	}
	e.Thought = ""
	return e
}

func (l lens) log(log []game.Entry, players []game.Player) []game.Entry {
	out := make([]game.Entry, 0, len(log))
	for _, e := range log {
		if l.visible(e, players) {
			out = append(out, l.entry(e))
		}
	}
	return out
}

// players masks roles and potions the lens must not reveal. Everything is
// revealed once the game is over.
func (l lens) players(ps []game.Player, over bool) []playerView {
	out := make([]playerView, 0, len(ps))
	wolfEyes := l.perspective == game.PerspectiveWolf || (l.viewer != nil && l.viewer.Role.IsWolf())
	for _, p := range ps {
		pv := playerView{Seat: p.Seat, Name: p.Actor.Name, Status: p.Status, IsHuman: p.IsHuman}
		own := l.viewer != nil && l.viewer.Seat == p.Seat
		if l.god || over || own || (wolfEyes && p.Role.IsWolf()) {
			pv.Role = p.Role
		}
		if (l.god || own) && p.Role == game.RoleWitch {
			potions := p.Potions
			pv.Potions = &potions
		}
		out = append(out, pv)
	}
	return out
}

type playerView struct {
	Seat    int           `json:"seat"`
	Name    string        `json:"name"`
	Role    game.Role     `json:"role,omitempty"`
	Status  game.Status   `json:"status"`
	IsHuman bool          `json:"isHuman,omitempty"`
	Potions *game.Potions `json:"potions,omitempty"`
}

// gameView is the JSON body of GET /api/game.
type gameView struct {
	ID          string         `json:"id"`
	Perspective string         `json:"perspective"`
	Phase       game.Phase     `json:"phase"`
	Turn        int            `json:"turn"`
	Winner      game.Outcome   `json:"winner,omitempty"`
	Players     []playerView   `json:"players"`
	Log         []game.Entry   `json:"log"`
	God         *game.GodState `json:"godState,omitempty"`
	AutoPlay    bool           `json:"autoPlay"`
	Processing  bool           `json:"processing"`
	Queue       []int          `json:"queue,omitempty"`

	// AwaitingInput is only reported to the human seat's own lens and GOD.
	AwaitingInput agent.Kind `json:"awaitingInput,omitempty"`
}

func (l lens) view(v engine.View) gameView {
	s := v.State
	over := s.Phase == game.PhaseGameReview
	gv := gameView{
		ID:          s.ID,
		Perspective: l.name(),
		Phase:       s.Phase,
		Turn:        s.Turn,
		Winner:      s.Winner,
		Players:     l.players(s.Players, over),
		Log:         l.log(s.Log, s.Players),
		AutoPlay:    v.AutoPlay,
		Processing:  v.Processing,
		Queue:       v.Queue,
	}
	if l.god {
		god := s.God
		gv.God = &god
	}
	if l.god || l.viewer != nil {
		gv.AwaitingInput = v.AwaitingInput
	}
	return gv
}

// archiveView is an archive seen through a lens. Roles are always revealed:
// archives are only written once a game is over.
func (l lens) archive(a game.Archive) game.Archive {
	if l.god {
		return a
	}
	a.Log = l.log(a.Log, a.Players)
	ids := make(map[string]bool, len(a.Log))
	for _, e := range a.Log {
		ids[e.ID] = true
	}
	timeline := make([]game.TimelineEvent, 0, len(a.Timeline))
	for _, ev := range a.Timeline {
		if ids[ev.ID] {
			timeline = append(timeline, ev)
		}
	}
	a.Timeline = timeline
	return a
}
