package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsVisible(t *testing.T) {
	t.Parallel()

	players := nine() // wolves are seats 1-3, seer 7, witch 8

	tests := []struct {
		name  string
		entry Entry
		god   bool
		good  bool
		wolf  bool
	}{
		{
			name:  "public speech",
			entry: Entry{Phase: PhaseDayDiscussion, Speaker: 4, Content: "我是好人"},
			god:   true, good: true, wolf: true,
		},
		{
			name:  "wolf chat",
			entry: Entry{Phase: PhaseWerewolfAction, Speaker: 1, VisibleTo: []int{1, 2, 3}},
			god:   true, good: false, wolf: true,
		},
		{
			name:  "seer result",
			entry: Entry{Phase: PhaseSeerAction, IsSystem: true, VisibleTo: []int{7}},
			god:   true, good: false, wolf: false,
		},
		{
			name:  "werewolf phase announcement",
			entry: Entry{Phase: PhaseWerewolfAction, IsSystem: true, Content: "狼人请睁眼"},
			god:   true, good: false, wolf: true,
		},
		{
			name:  "witch phase announcement",
			entry: Entry{Phase: PhaseWitchAction, IsSystem: true, Content: "女巫请睁眼"},
			god:   true, good: false, wolf: false,
		},
		{
			name:  "guard phase announcement",
			entry: Entry{Phase: PhaseGuardAction, IsSystem: true},
			god:   true, good: false, wolf: false,
		},
		{
			name:  "public system message",
			entry: Entry{Phase: PhaseDayAnnounce, IsSystem: true, Content: "昨晚是平安夜"},
			god:   true, good: true, wolf: true,
		},
		{
			name:  "empty allow-list is private to everyone",
			entry: Entry{Phase: PhaseDayAnnounce, VisibleTo: []int{}},
			god:   true, good: false, wolf: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.god, IsVisible(tt.entry, PerspectiveGod, players), "GOD")
			assert.Equal(t, tt.good, IsVisible(tt.entry, PerspectiveGood, players), "GOOD")
			assert.Equal(t, tt.wolf, IsVisible(tt.entry, PerspectiveWolf, players), "WOLF")
		})
	}
}

func TestIsVisible_WolfAllowList(t *testing.T) {
	t.Parallel()

	players := nine()
	for _, seats := range [][]int{{1, 2}, {2, 3}, {1}, {3, 9}} {
		e := Entry{Phase: PhaseWerewolfAction, VisibleTo: seats}
		assert.True(t, IsVisible(e, PerspectiveWolf, players), "%v", seats)
		assert.False(t, IsVisible(e, PerspectiveGood, players), "%v", seats)
	}
}

func TestIsVisibleTo(t *testing.T) {
	t.Parallel()

	players := nine()
	wolf, _ := FindPlayer(players, 2)
	seer, _ := FindPlayer(players, 7)
	villager, _ := FindPlayer(players, 4)

	seerPhase := Entry{Phase: PhaseSeerAction, IsSystem: true, Content: "预言家请睁眼"}
	seerResult := Entry{Phase: PhaseSeerAction, IsSystem: true, VisibleTo: []int{7}}
	wolfChat := Entry{Phase: PhaseWerewolfAction, Speaker: 1, VisibleTo: []int{1, 2, 3}}
	wolfPhase := Entry{Phase: PhaseWerewolfAction, IsSystem: true}

	assert.True(t, IsVisibleTo(seerPhase, seer, players))
	assert.False(t, IsVisibleTo(seerPhase, villager, players))
	assert.False(t, IsVisibleTo(seerPhase, wolf, players))

	assert.True(t, IsVisibleTo(seerResult, seer, players))
	assert.False(t, IsVisibleTo(seerResult, wolf, players))

	assert.True(t, IsVisibleTo(wolfChat, wolf, players))
	assert.False(t, IsVisibleTo(wolfChat, seer, players))

	assert.True(t, IsVisibleTo(wolfPhase, wolf, players))
	assert.False(t, IsVisibleTo(wolfPhase, villager, players))
}

func TestParsePerspective(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Perspective{"god": PerspectiveGod, " Good ": PerspectiveGood, "WOLF": PerspectiveWolf} {
		got, err := ParsePerspective(in)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParsePerspective("seer")
	assert.Error(t, err)
}
