package game

import (
	"crypto/rand"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Death is a status change carried by an announcement entry.
type Death struct {
	Seat   int    `json:"seat"`
	Status Status `json:"status"`
}

// Entry is one line of the game log. Entries are immutable once appended.
type Entry struct {
	ID    string `json:"id"`
	Turn  int    `json:"turn"`
	Phase Phase  `json:"phase"`

	// Speaker is the seat that spoke; zero means the narrator.
	Speaker int `json:"speakerId,omitempty"`

	Content string `json:"content"`

	// Thought is the speaker's private reasoning. It is never shown to other
	// players and never fed into anyone else's prompt.
	Thought string `json:"thought,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	IsSystem  bool      `json:"isSystem"`

	// VisibleTo restricts the entry to the listed seats. Nil means public.
	VisibleTo []int `json:"visibleTo,omitempty"`

	// Deaths lists the status changes this entry announces.
	Deaths []Death `json:"deaths,omitempty"`

	// Silent entries are written to the log without a timeline event.
	Silent bool `json:"silent,omitempty"`
}

// Private reports whether the entry carries an allow-list.
func (e Entry) Private() bool { return e.VisibleTo != nil }

// VisibleToSeat reports whether seat is on the entry's allow-list.
func (e Entry) VisibleToSeat(seat int) bool { return slices.Contains(e.VisibleTo, seat) }

// SpeakerKind classifies a timeline event.
type SpeakerKind string

const (
	SpeakerNarrator SpeakerKind = "NARRATOR"
	SpeakerPlayer   SpeakerKind = "PLAYER"
)

// TimelineEvent is one spoken utterance. Its ID equals the ID of the log entry
// it voices.
type TimelineEvent struct {
	ID   string      `json:"id"`
	Kind SpeakerKind `json:"kind"`
	Name string      `json:"name"`

	// Text is what is spoken, which may differ from the log content.
	Text string `json:"text"`

	Voice    Voice  `json:"voice"`
	CacheKey string `json:"cacheKey"`
}

// IDGenerator issues ULIDs: a millisecond timestamp, a monotonic counter within
// the same millisecond and 80 bits of randomness. It is safe for concurrent use.
type IDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewIDGenerator returns a generator seeded from crypto/rand.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Next returns a new id that sorts after every id previously returned.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(g.now()), g.entropy)
	if err != nil {
		// Monotonic overflow within one millisecond; fall back to fresh entropy.
		id = ulid.MustNew(ulid.Timestamp(g.now()), rand.Reader)
	}
	return id.String()
}
