package game

// EvaluateWin classifies the living players. Wolves win by wiping out either
// non-wolf sub-faction, not by outnumbering.
func EvaluateWin(players []Player) Outcome {
	var wolves, villagers, gods int
	for _, p := range players {
		if !p.Alive() {
			continue
		}
		switch p.Role.Faction() {
		case FactionWolves:
			wolves++
		case FactionVillager:
			villagers++
		case FactionGods:
			gods++
		}
	}
	switch {
	case wolves == 0:
		return OutcomeGoodWin
	case villagers == 0 || gods == 0:
		return OutcomeWolfWin
	default:
		return OutcomeNone
	}
}
