package main

import (
	"fmt"
	"io"

	"github.com/MrWong99/werewolf/internal/game"
)

// narratorName labels entries without a speaker.
const narratorName = "法官"

// printEntry writes one log line. names maps seats to display names; seats
// missing from it are printed by their label.
func printEntry(w io.Writer, e game.Entry, names map[int]string, thoughts bool) {
	who := narratorName
	if e.Speaker != 0 {
		who = game.SeatLabel(e.Speaker)
		if n, ok := names[e.Speaker]; ok && n != who {
			who += " " + n
		}
	}
	scope := ""
	if e.Private() {
		scope = fmt.Sprintf(" (仅 %v)", e.VisibleTo)
	}
	fmt.Fprintf(w, "[%d %-14s] %s%s：%s\n", e.Turn, e.Phase, who, scope, e.Content)
	if thoughts && e.Thought != "" {
		fmt.Fprintf(w, "    ↳ %s\n", e.Thought)
	}
}

func seatNames(players []game.Player) map[int]string {
	names := make(map[int]string, len(players))
	for _, p := range players {
		names[p.Seat] = p.Actor.Name
	}
	return names
}

func printRoster(w io.Writer, players []game.Player) {
	for _, p := range players {
		human := ""
		if p.IsHuman {
			human = " (human)"
		}
		fmt.Fprintf(w, "  %-4s %-8s %s%s\n", p.Label(), p.Actor.Name, p.Role.DisplayName(), human)
	}
}
