package game

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveVotes_Majority(t *testing.T) {
	t.Parallel()

	res := ResolveVotes(map[int]int{1: 4, 2: 4, 3: 5, 6: Abstain}, rand.New(rand.NewPCG(1, 1)))

	assert.Equal(t, 4, res.Eliminated)
	assert.Equal(t, []int{1, 2}, res.ByTarget[4])
	assert.Equal(t, []int{3}, res.ByTarget[5])
	assert.Equal(t, []int{6}, res.Abstained)
	assert.Equal(t, []int{4}, res.Tied)
}

func TestResolveVotes_PeaceDay(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 1))
	for name, ballots := range map[string]map[int]int{
		"no ballots":  {},
		"all abstain": {1: Abstain, 2: Abstain},
	} {
		res := ResolveVotes(ballots, rng)
		assert.Zero(t, res.Eliminated, name)
		assert.Empty(t, res.ByTarget, name)
	}
}

func TestResolveVotes_TieIsUniform(t *testing.T) {
	t.Parallel()

	// A and B get two votes each, C one.
	const a, b, c = 4, 7, 9
	ballots := map[int]int{1: a, 2: a, 3: b, 5: b, 6: c}

	rng := rand.New(rand.NewPCG(42, 99))
	counts := map[int]int{}
	const trials = 4000
	for range trials {
		res := ResolveVotes(ballots, rng)
		require.Equal(t, []int{a, b}, res.Tied)
		counts[res.Eliminated]++
	}

	assert.Zero(t, counts[c], "a seat outside the tie must never be eliminated")
	assert.InDelta(t, trials/2, counts[a], trials*0.1)
	assert.InDelta(t, trials/2, counts[b], trials*0.1)
}
