// Package agent turns a seat's view of the game into a decision.
//
// The engine describes what it needs with a [Request]: who is acting, which
// kind of decision is due, and the raw game log. The adapter filters that log
// into the public history and the seat's private memory, renders a prompt,
// calls the text-generation backend through a retrying [Generator] and parses
// the reply into a [Decision].
//
// A [Decider] never returns an error. Generation failures and malformed replies
// degrade into a [Decision] with Failed set or with the raw text as speech, so
// the engine can always fall back to a neutral action.
package agent

import (
	"context"

	"github.com/MrWong99/werewolf/internal/game"
)

// Kind identifies the decision the engine is asking for.
type Kind string

const (
	// KindSpeech is a public day-discussion turn.
	KindSpeech Kind = "speech"

	// KindLastWords is the final statement of a seat voted out.
	KindLastWords Kind = "last_words"

	// KindWolfChat is a werewolf's night discussion line.
	KindWolfChat Kind = "wolf_chat"

	// KindWolfKill is the last werewolf's line together with the binding
	// kill target.
	KindWolfKill Kind = "wolf_kill"

	KindGuard  Kind = "guard"
	KindSeer   Kind = "seer"
	KindWitch  Kind = "witch"
	KindVote   Kind = "vote"
	KindHunter Kind = "hunter"
)

// Speaks reports whether a decision of this kind produces public or
// team-visible speech.
func (k Kind) Speaks() bool {
	switch k {
	case KindSpeech, KindLastWords, KindWolfChat, KindWolfKill, KindHunter:
		return true
	}
	return false
}

// Request is everything a decider may look at. Log holds the full game log;
// deciders are responsible for filtering it down to what Self may know.
type Request struct {
	Kind  Kind
	Self  game.Player
	Turn  int
	Phase game.Phase

	Players []game.Player
	Log     []game.Entry

	// WolfTarget is tonight's kill target, shown only to the witch.
	WolfTarget int

	// LastGuarded is the seat the guard protected the night before.
	LastGuarded int

	// Instruction is an optional phase-specific hint appended to the task.
	Instruction string
}

// Decision is a parsed reply. Seat fields are zero when not given.
type Decision struct {
	Thought string `json:"thought,omitempty"`
	Speak   string `json:"speak,omitempty"`

	// Target is the seat named for a kill, check, protection, vote or shot.
	Target int `json:"target,omitempty"`

	UseCure      bool `json:"useCure,omitempty"`
	PoisonTarget int  `json:"poisonTarget,omitempty"`

	// Failed marks a decision produced after generation gave up.
	Failed bool `json:"failed,omitempty"`

	// Raw is the unparsed reply text, kept for debugging.
	Raw string `json:"-"`
}

// Decider produces decisions for seats. Implementations must be safe for
// concurrent use; the engine gathers votes in parallel.
type Decider interface {
	Decide(ctx context.Context, req Request) Decision
}

// DeciderFunc adapts a function to the [Decider] interface.
type DeciderFunc func(ctx context.Context, req Request) Decision

// Decide calls f.
func (f DeciderFunc) Decide(ctx context.Context, req Request) Decision { return f(ctx, req) }
