package game

import "fmt"

// Voice is the speech configuration an actor speaks with. It is recorded
// verbatim into every timeline event so replays resynthesise identical audio.
type Voice struct {
	// Provider names the TTS backend (e.g., "elevenlabs", "coqui").
	Provider string `json:"provider,omitempty" yaml:"provider"`

	// ID is the provider-specific voice identifier.
	ID string `json:"id,omitempty" yaml:"voice_id"`

	// Speed is a playback speed multiplier; zero means 1.0.
	Speed float64 `json:"speed,omitempty" yaml:"speed_factor"`
}

// Actor is the decision and voice backend bound to a seat.
type Actor struct {
	Name        string  `json:"name" yaml:"name"`
	Personality string  `json:"personality,omitempty" yaml:"personality"`
	Model       string  `json:"model,omitempty" yaml:"model"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature"`
	Voice       Voice   `json:"voice" yaml:"voice"`
}

// Potions tracks the witch's single-use charges. True means still available.
type Potions struct {
	Cure   bool `json:"cure"`
	Poison bool `json:"poison"`
}

// Player is one seat at the table.
type Player struct {
	// Seat is the 1-based seat number and doubles as the display identity.
	Seat int `json:"seat"`

	Role    Role   `json:"role"`
	Status  Status `json:"status"`
	IsHuman bool   `json:"isHuman,omitempty"`

	// Potions is only meaningful for the witch.
	Potions Potions `json:"potions"`

	Actor Actor `json:"actor"`
}

// Alive reports whether the player is still in the game.
func (p Player) Alive() bool { return p.Status.Alive() }

// Label is the narrator's name for the seat, e.g. "3号".
func (p Player) Label() string { return SeatLabel(p.Seat) }

// SeatLabel formats a seat number the way the narrator says it.
func SeatLabel(seat int) string { return fmt.Sprintf("%d号", seat) }

// ClonePlayers returns a deep copy of ps.
func ClonePlayers(ps []Player) []Player {
	if ps == nil {
		return nil
	}
	out := make([]Player, len(ps))
	copy(out, ps)
	return out
}

// SeatsWhere returns the seats of all players matching keep, in seat order.
func SeatsWhere(ps []Player, keep func(Player) bool) []int {
	var seats []int
	for _, p := range ps {
		if keep(p) {
			seats = append(seats, p.Seat)
		}
	}
	return seats
}

// WolfSeats returns every werewolf seat, alive or dead.
func WolfSeats(ps []Player) []int {
	return SeatsWhere(ps, func(p Player) bool { return p.Role.IsWolf() })
}

// AliveSeats returns the seats of all living players.
func AliveSeats(ps []Player) []int {
	return SeatsWhere(ps, Player.Alive)
}

// FindPlayer returns the player at seat and true, or false if no such seat exists.
func FindPlayer(ps []Player, seat int) (Player, bool) {
	for _, p := range ps {
		if p.Seat == seat {
			return p, true
		}
	}
	return Player{}, false
}

// IsAliveSeat reports whether seat names a living player.
func IsAliveSeat(ps []Player, seat int) bool {
	p, ok := FindPlayer(ps, seat)
	return ok && p.Alive()
}
