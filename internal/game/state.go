package game

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// GodState is the narrator's notebook for a single night. Zero seat values mean
// "nobody".
type GodState struct {
	WolfTarget    int   `json:"wolfTarget,omitempty"`
	SeerCheck     int   `json:"seerCheck,omitempty"`
	WitchSave     bool  `json:"witchSave,omitempty"`
	WitchPoison   int   `json:"witchPoison,omitempty"`
	GuardProtect  int   `json:"guardProtect,omitempty"`
	DeathsTonight []int `json:"deathsTonight,omitempty"`
}

// Reset clears the notebook for a new night.
func (g *GodState) Reset() { *g = GodState{} }

func (g GodState) clone() GodState {
	g.DeathsTonight = slices.Clone(g.DeathsTonight)
	return g
}

// NightDeaths resolves the notebook into the seats that die tonight, in
// ascending order without duplicates.
//
// The wolf target dies unless exactly one of guard protection and witch cure
// covers it; poison always kills.
func (g GodState) NightDeaths() []int {
	var dead []int
	if g.WolfTarget != 0 {
		guarded := g.GuardProtect == g.WolfTarget
		if guarded == g.WitchSave {
			dead = append(dead, g.WolfTarget)
		}
	}
	if g.WitchPoison != 0 {
		dead = append(dead, g.WitchPoison)
	}
	slices.Sort(dead)
	return slices.Compact(dead)
}

// Snapshot captures the game after a state-affecting step.
type Snapshot struct {
	Phase   Phase     `json:"phase"`
	Turn    int       `json:"turn"`
	Players []Player  `json:"players"`
	Log     []Entry   `json:"log"`
	God     GodState  `json:"godState"`
	TakenAt time.Time `json:"takenAt"`
}

// State is the aggregate the engine owns. It is not safe for concurrent use;
// the engine serialises access.
type State struct {
	ID       string          `json:"id"`
	Phase    Phase           `json:"phase"`
	Turn     int             `json:"turn"`
	Players  []Player        `json:"players"`
	Log      []Entry         `json:"log"`
	Timeline []TimelineEvent `json:"timeline"`
	God      GodState        `json:"godState"`
	Winner   Outcome         `json:"winner,omitempty"`

	// LastGuarded is the seat the guard protected on the previous night.
	LastGuarded int `json:"lastGuarded,omitempty"`

	Composition []Role     `json:"composition"`
	Snapshots   []Snapshot `json:"-"`
	StartedAt   time.Time  `json:"startedAt"`
}

// NewState creates a game in SETUP with the given dealt players.
func NewState(players []Player) *State {
	comp := make([]Role, 0, len(players))
	for _, p := range players {
		comp = append(comp, p.Role)
	}
	return &State{
		ID:          uuid.NewString(),
		Phase:       PhaseSetup,
		Players:     players,
		Composition: comp,
		StartedAt:   time.Now(),
	}
}

// Append adds an entry to the log.
func (s *State) Append(e Entry) { s.Log = append(s.Log, e) }

// AppendTimeline adds a timeline event.
func (s *State) AppendTimeline(ev TimelineEvent) { s.Timeline = append(s.Timeline, ev) }

// Player returns a pointer to the player at seat, or nil.
func (s *State) Player(seat int) *Player {
	for i := range s.Players {
		if s.Players[i].Seat == seat {
			return &s.Players[i]
		}
	}
	return nil
}

// Alive returns the living players in seat order.
func (s *State) Alive() []Player {
	var out []Player
	for _, p := range s.Players {
		if p.Alive() {
			out = append(out, p)
		}
	}
	return out
}

// AliveWith returns the first living player holding role.
func (s *State) AliveWith(role Role) (Player, bool) {
	for _, p := range s.Players {
		if p.Role == role && p.Alive() {
			return p, true
		}
	}
	return Player{}, false
}

// HasRole reports whether role was dealt in this game.
func (s *State) HasRole(role Role) bool { return slices.Contains(s.Composition, role) }

// Kill moves a living player to a terminal status. It reports false if the seat
// is unknown or already dead; statuses never revert.
func (s *State) Kill(seat int, status Status) bool {
	p := s.Player(seat)
	if p == nil || !p.Alive() || status.Alive() {
		return false
	}
	p.Status = status
	return true
}

// Snapshot records the current state into the snapshot history.
func (s *State) Snapshot() {
	s.Snapshots = append(s.Snapshots, Snapshot{
		Phase:   s.Phase,
		Turn:    s.Turn,
		Players: ClonePlayers(s.Players),
		// The log is append-only, so a capped re-slice is a stable copy.
		Log:     s.Log[:len(s.Log):len(s.Log)],
		God:     s.God.clone(),
		TakenAt: time.Now(),
	})
}

// Clone returns a copy safe to hand to readers outside the engine.
func (s *State) Clone() State {
	c := *s
	c.Players = ClonePlayers(s.Players)
	c.Log = s.Log[:len(s.Log):len(s.Log)]
	c.Timeline = s.Timeline[:len(s.Timeline):len(s.Timeline)]
	c.God = s.God.clone()
	c.Composition = slices.Clone(s.Composition)
	c.Snapshots = nil
	return c
}
