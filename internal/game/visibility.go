package game

import (
	"fmt"
	"slices"
	"strings"
)

// Perspective is an observer lens used when replaying a game.
type Perspective string

const (
	PerspectiveGod  Perspective = "GOD"
	PerspectiveGood Perspective = "GOOD"
	PerspectiveWolf Perspective = "WOLF"
)

// ParsePerspective accepts "god", "good" or "wolf" in any case.
func ParsePerspective(s string) (Perspective, error) {
	switch p := Perspective(strings.ToUpper(strings.TrimSpace(s))); p {
	case PerspectiveGod, PerspectiveGood, PerspectiveWolf:
		return p, nil
	}
	return "", fmt.Errorf("game: unknown perspective %q", s)
}

// IsVisible decides whether an observer with perspective p perceives e.
func IsVisible(e Entry, p Perspective, players []Player) bool {
	if p == PerspectiveGod {
		return true
	}
	if e.Private() {
		if p != PerspectiveWolf {
			return false
		}
		wolves := WolfSeats(players)
		return slices.ContainsFunc(e.VisibleTo, func(seat int) bool {
			return slices.Contains(wolves, seat)
		})
	}
	if e.IsSystem {
		if role, ok := e.Phase.NightRole(); ok {
			return p == PerspectiveWolf && role == RoleWerewolf
		}
	}
	return true
}

// IsVisibleTo is the live variant of IsVisible for a single seated viewer: the
// same rules keyed to the viewer's own seat and role.
func IsVisibleTo(e Entry, viewer Player, players []Player) bool {
	if e.Private() {
		if e.VisibleToSeat(viewer.Seat) {
			return true
		}
		if !viewer.Role.IsWolf() {
			return false
		}
		wolves := WolfSeats(players)
		return slices.ContainsFunc(e.VisibleTo, func(seat int) bool {
			return slices.Contains(wolves, seat)
		})
	}
	if e.IsSystem {
		if role, ok := e.Phase.NightRole(); ok {
			return viewer.Role == role
		}
	}
	return true
}

// Filter returns the entries of log visible under p.
func Filter(log []Entry, p Perspective, players []Player) []Entry {
	out := make([]Entry, 0, len(log))
	for _, e := range log {
		if IsVisible(e, p, players) {
			out = append(out, e)
		}
	}
	return out
}

// FilterFor returns the entries of log the viewer perceives live.
func FilterFor(log []Entry, viewer Player, players []Player) []Entry {
	out := make([]Entry, 0, len(log))
	for _, e := range log {
		if IsVisibleTo(e, viewer, players) {
			out = append(out, e)
		}
	}
	return out
}
