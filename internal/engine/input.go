package engine

import (
	"context"
	"sync"

	"github.com/MrWong99/werewolf/internal/agent"
	"github.com/MrWong99/werewolf/internal/game"
	"github.com/MrWong99/werewolf/internal/observe"
)

// HumanInput is what the human seat submits for its turn. Fields that do not
// apply to the pending decision are ignored.
type HumanInput struct {
	Speak        string `json:"speak"`
	ActionTarget int    `json:"actionTarget"`
	UseCure      bool   `json:"useCure"`
	PoisonTarget int    `json:"poisonTarget"`
}

// inputSlot holds at most one pending submission. A submission made while no
// human turn is waiting is kept until the next one; a newer submission
// replaces an unconsumed older one.
type inputSlot struct {
	mu      sync.Mutex
	pending *HumanInput
	waiting agent.Kind
	ready   chan struct{}
}

func newInputSlot() inputSlot {
	return inputSlot{ready: make(chan struct{}, 1)}
}

func (s *inputSlot) put(in HumanInput) {
	s.mu.Lock()
	s.pending = &in
	s.mu.Unlock()
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// take blocks until a submission is available and consumes it.
func (s *inputSlot) take(ctx context.Context, kind agent.Kind) (HumanInput, error) {
	s.mu.Lock()
	s.waiting = kind
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.waiting = ""
		s.mu.Unlock()
	}()

	for {
		s.mu.Lock()
		if p := s.pending; p != nil {
			s.pending = nil
			s.mu.Unlock()
			select {
			case <-s.ready:
			default:
			}
			return *p, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return HumanInput{}, ctx.Err()
		case <-s.ready:
		}
	}
}

func (s *inputSlot) awaiting() agent.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting
}

// SubmitInput fills the human input slot. It returns [ErrNoHumanSeat] if no
// living seat is human-controlled and no human turn is pending, and
// [ErrGameOver] after the game ended.
func (e *Engine) SubmitInput(in HumanInput) error {
	if e.Finished() {
		return ErrGameOver
	}
	e.mu.Lock()
	human := humanSeat(e.state.Players)
	e.mu.Unlock()
	// A seat that just died may still be asked for last words or a shot.
	if human == 0 && e.input.awaiting() == "" {
		return ErrNoHumanSeat
	}
	e.input.put(in)
	return nil
}

// humanSeat returns the seat of the living human player or zero.
func humanSeat(players []game.Player) int {
	for _, p := range players {
		if p.IsHuman && p.Alive() {
			return p.Seat
		}
	}
	return 0
}

// decide asks the human slot or the decider for req. The error is non-nil
// only when ctx ended while waiting for the human.
func (e *Engine) decide(ctx context.Context, req agent.Request) (agent.Decision, error) {
	if !req.Self.IsHuman {
		return e.decider.Decide(ctx, req), nil
	}
	observe.Logger(ctx).Info("waiting for human input", "seat", req.Self.Seat, "kind", req.Kind)
	in, err := e.input.take(ctx, req.Kind)
	if err != nil {
		return agent.Decision{}, err
	}
	if e.metrics != nil {
		e.metrics.RecordDecision(ctx, string(req.Kind), observe.OutcomeHuman, 0)
	}
	return agent.Decision{
		Speak:        in.Speak,
		Target:       in.ActionTarget,
		UseCure:      in.UseCure,
		PoisonTarget: in.PoisonTarget,
	}, nil
}
