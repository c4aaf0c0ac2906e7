package game

import "time"

// Archive mode values.
const (
	ModeWerewolf = "werewolf"
	ModeDebate   = "debate"
)

// Archive is the immutable record of one concluded game.
type Archive struct {
	ID          string          `json:"id" bson:"_id"`
	Mode        string          `json:"mode" bson:"mode"`
	Title       string          `json:"title,omitempty" bson:"title,omitempty"`
	Players     []Player        `json:"players" bson:"players"`
	Log         []Entry         `json:"log" bson:"log"`
	Timeline    []TimelineEvent `json:"timeline" bson:"timeline"`
	Winner      Outcome         `json:"winner" bson:"winner"`
	Turns       int             `json:"turns" bson:"turns"`
	PlayerCount int             `json:"playerCount" bson:"playerCount"`
	Composition []Role          `json:"composition" bson:"composition"`
	CreatedAt   time.Time       `json:"createdAt" bson:"createdAt"`
}

// Summary is the listing view of an archive.
type Summary struct {
	ID          string    `json:"id" bson:"_id"`
	Mode        string    `json:"mode" bson:"mode"`
	Title       string    `json:"title,omitempty" bson:"title,omitempty"`
	Winner      Outcome   `json:"winner" bson:"winner"`
	Turns       int       `json:"turns" bson:"turns"`
	PlayerCount int       `json:"playerCount" bson:"playerCount"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

// Summary returns the listing view of a.
func (a Archive) Summary() Summary {
	return Summary{
		ID:          a.ID,
		Mode:        a.Mode,
		Title:       a.Title,
		Winner:      a.Winner,
		Turns:       a.Turns,
		PlayerCount: a.PlayerCount,
		CreatedAt:   a.CreatedAt,
	}
}

// NewArchive freezes s into an archive keyed by the game id.
func NewArchive(s *State) Archive {
	c := s.Clone()
	return Archive{
		ID:          c.ID,
		Mode:        ModeWerewolf,
		Players:     c.Players,
		Log:         c.Log,
		Timeline:    c.Timeline,
		Winner:      c.Winner,
		Turns:       c.Turn,
		PlayerCount: len(c.Players),
		Composition: c.Composition,
		CreatedAt:   time.Now(),
	}
}
