package game

import (
	"maps"
	"slices"
)

// Abstain is the ballot value for "no vote".
const Abstain = 0

// Rand is the subset of math/rand/v2 the resolvers need.
type Rand interface {
	IntN(n int) int
}

// VoteResult is the tallied outcome of one voting round.
type VoteResult struct {
	// ByTarget maps each voted seat to its voters in seat order.
	ByTarget map[int][]int `json:"byTarget"`

	// Abstained lists the voters who cast no valid vote, in seat order.
	Abstained []int `json:"abstained"`

	// Tied lists every seat that shared the highest count, ascending.
	Tied []int `json:"tied,omitempty"`

	// Eliminated is the seat voted out, or zero on a peace day.
	Eliminated int `json:"eliminated,omitempty"`
}

// ResolveVotes tallies ballots (voter seat → target seat, Abstain for none).
// Among the seats with the highest count one is chosen uniformly at random.
// No votes at all means nobody is eliminated.
func ResolveVotes(ballots map[int]int, rng Rand) VoteResult {
	res := VoteResult{ByTarget: make(map[int][]int)}
	for _, voter := range slices.Sorted(maps.Keys(ballots)) {
		target := ballots[voter]
		if target == Abstain {
			res.Abstained = append(res.Abstained, voter)
			continue
		}
		res.ByTarget[target] = append(res.ByTarget[target], voter)
	}
	if len(res.ByTarget) == 0 {
		return res
	}

	best := 0
	for _, target := range slices.Sorted(maps.Keys(res.ByTarget)) {
		n := len(res.ByTarget[target])
		switch {
		case n > best:
			best = n
			res.Tied = []int{target}
		case n == best:
			res.Tied = append(res.Tied, target)
		}
	}
	res.Eliminated = res.Tied[rng.IntN(len(res.Tied))]
	return res
}
