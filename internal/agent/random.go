package agent

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/MrWong99/werewolf/internal/game"
)

var stockLines = map[Kind][]string{
	KindSpeech: {
		"我是好人，这轮先听听大家的发言。",
		"我觉得昨晚的信息还不够，先过。",
		"我会重点关注发言前后矛盾的人。",
	},
	KindLastWords: {"我是好人，请大家相信我，找出真正的狼。"},
	KindWolfChat:  {"今晚刀谁都行，听队友的。"},
	KindWolfKill:  {"就这么定了。"},
	KindHunter:    {"我带走他。"},
}

// RandomDecider plays without a model: it picks uniformly among legal targets
// and speaks stock lines. It backs offline games and serves as a baseline
// opponent.
type RandomDecider struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomDecider returns a decider seeded with seed.
func NewRandomDecider(seed uint64) *RandomDecider {
	return &RandomDecider{rng: rand.New(rand.NewPCG(seed, seed^0x5eed))}
}

// Decide implements [Decider].
func (r *RandomDecider) Decide(_ context.Context, req Request) Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	var d Decision
	if lines := stockLines[req.Kind]; len(lines) > 0 {
		d.Speak = lines[r.rng.IntN(len(lines))]
	}
	alive := game.AliveSeats(req.Players)
	others := make([]int, 0, len(alive))
	for _, s := range alive {
		if s != req.Self.Seat {
			others = append(others, s)
		}
	}

	switch req.Kind {
	case KindWolfKill:
		var prey []int
		for _, s := range others {
			if p, _ := game.FindPlayer(req.Players, s); !p.Role.IsWolf() {
				prey = append(prey, s)
			}
		}
		d.Target = r.pick(prey)
	case KindSeer, KindVote:
		d.Target = r.pick(others)
	case KindGuard:
		var options []int
		for _, s := range alive {
			if s != req.LastGuarded {
				options = append(options, s)
			}
		}
		d.Target = r.pick(options)
	case KindWitch:
		if req.WolfTarget != 0 && req.Self.Potions.Cure {
			d.UseCure = true
		}
	case KindHunter:
		d.Target = r.pick(others)
	}
	return d
}

func (r *RandomDecider) pick(seats []int) int {
	if len(seats) == 0 {
		return 0
	}
	return seats[r.rng.IntN(len(seats))]
}
