package agent

import (
	"slices"

	"github.com/MrWong99/werewolf/internal/game"
)

// memoryPhases lists the phases whose private entries a role may recall.
// Every role additionally recalls its own SETUP reveal.
var memoryPhases = map[game.Role][]game.Phase{
	game.RoleWerewolf: {game.PhaseWerewolfAction},
	game.RoleSeer:     {game.PhaseSeerAction},
	game.RoleWitch:    {game.PhaseWitchAction},
	game.RoleGuard:    {game.PhaseGuardAction},
	game.RoleHunter:   {game.PhaseHunterAction},
}

// PublicHistory returns the entries every seat at the table has witnessed:
// public speech, public narrator lines and day announcements. Night-phase
// announcements and anything with an allow-list are dropped.
func PublicHistory(log []game.Entry, players []game.Player) []game.Entry {
	var out []game.Entry
	for _, e := range log {
		if game.IsVisible(e, game.PerspectiveGood, players) {
			out = append(out, e)
		}
	}
	return out
}

// PrivateMemory returns the private entries self may recall: its own role
// reveal, plus the role's night entries that self can see. A seer recalls only
// its own check results, a witch its own potion records, and a werewolf the
// night chat of its pack.
func PrivateMemory(self game.Player, log []game.Entry, players []game.Player) []game.Entry {
	phases := memoryPhases[self.Role]
	var out []game.Entry
	for _, e := range log {
		if !e.Private() {
			continue
		}
		if e.Phase != game.PhaseSetup && !slices.Contains(phases, e.Phase) {
			continue
		}
		if !game.IsVisibleTo(e, self, players) {
			continue
		}
		out = append(out, e)
	}
	return out
}
