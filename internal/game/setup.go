package game

import (
	"errors"
	"fmt"
)

// Preset names.
const (
	Preset9  = "9p"
	Preset12 = "12p"
)

var presets = map[string][]Role{
	Preset9: {
		RoleWerewolf, RoleWerewolf, RoleWerewolf,
		RoleVillager, RoleVillager, RoleVillager,
		RoleSeer, RoleWitch, RoleHunter,
	},
	Preset12: {
		RoleWerewolf, RoleWerewolf, RoleWerewolf, RoleWerewolf,
		RoleVillager, RoleVillager, RoleVillager, RoleVillager,
		RoleSeer, RoleWitch, RoleHunter, RoleGuard,
	},
}

// PresetComposition returns a copy of the role list for a named preset.
func PresetComposition(name string) ([]Role, error) {
	roles, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("game: unknown preset %q", name)
	}
	return append([]Role(nil), roles...), nil
}

// ValidateComposition checks that a composition can be played: it needs at
// least one wolf, one plain villager and one god role, and every role once at
// most except wolves and villagers.
func ValidateComposition(roles []Role) error {
	var errs []error
	counts := make(map[Role]int)
	for _, r := range roles {
		if !r.Valid() {
			errs = append(errs, fmt.Errorf("unknown role %q", r))
			continue
		}
		counts[r]++
	}
	if counts[RoleWerewolf] == 0 {
		errs = append(errs, errors.New("at least one werewolf is required"))
	}
	if counts[RoleVillager] == 0 {
		errs = append(errs, errors.New("at least one villager is required"))
	}
	gods := 0
	for r, n := range counts {
		if r.IsGod() {
			gods += n
			if n > 1 {
				errs = append(errs, fmt.Errorf("role %s may appear only once", r))
			}
		}
	}
	if gods == 0 {
		errs = append(errs, errors.New("at least one god role is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("game: invalid composition: %w", err)
	}
	return nil
}

// Shuffler is the subset of math/rand/v2 used for dealing.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// Deal shuffles roles and actors independently onto seats 1..len(roles). Actors
// are reused round-robin when fewer actors than seats are given. humanSeat, when
// non-zero, marks that seat as human-controlled.
func Deal(roles []Role, actors []Actor, humanSeat int, rng Shuffler) ([]Player, error) {
	if err := ValidateComposition(roles); err != nil {
		return nil, err
	}
	if humanSeat < 0 || humanSeat > len(roles) {
		return nil, fmt.Errorf("game: human seat %d out of range 1..%d", humanSeat, len(roles))
	}

	dealt := append([]Role(nil), roles...)
	rng.Shuffle(len(dealt), func(i, j int) { dealt[i], dealt[j] = dealt[j], dealt[i] })

	cast := append([]Actor(nil), actors...)
	rng.Shuffle(len(cast), func(i, j int) { cast[i], cast[j] = cast[j], cast[i] })

	players := make([]Player, len(dealt))
	for i, r := range dealt {
		p := Player{
			Seat:    i + 1,
			Role:    r,
			Status:  StatusAlive,
			IsHuman: humanSeat == i+1,
		}
		if r == RoleWitch {
			p.Potions = Potions{Cure: true, Poison: true}
		}
		if len(cast) > 0 {
			p.Actor = cast[i%len(cast)]
		}
		if p.Actor.Name == "" {
			p.Actor.Name = p.Label()
		}
		players[i] = p
	}
	return players, nil
}
