// Package game holds the static rules of a Werewolf (狼人杀) match together with
// the data records the engine produces: players, the append-only log, the
// speech timeline, per-night scratch state, snapshots and archives.
//
// Everything in this package is pure data or pure functions. The visibility
// policy, vote resolver and win evaluator never touch wall-clock time or global
// state, so the live engine and the replay theater get identical answers for
// identical inputs.
package game

// Role is the secret identity dealt to a seat. It never changes after dealing.
type Role string

const (
	RoleWerewolf Role = "WEREWOLF"
	RoleVillager Role = "VILLAGER"
	RoleSeer     Role = "SEER"
	RoleWitch    Role = "WITCH"
	RoleHunter   Role = "HUNTER"
	RoleGuard    Role = "GUARD"
)

// Faction groups roles by win condition.
type Faction string

const (
	FactionWolves   Faction = "WOLVES"
	FactionVillager Faction = "VILLAGERS"
	FactionGods     Faction = "GODS"
)

var roleFactions = map[Role]Faction{
	RoleWerewolf: FactionWolves,
	RoleVillager: FactionVillager,
	RoleSeer:     FactionGods,
	RoleWitch:    FactionGods,
	RoleHunter:   FactionGods,
	RoleGuard:    FactionGods,
}

// roleNames are the narrator's names for each role.
var roleNames = map[Role]string{
	RoleWerewolf: "狼人",
	RoleVillager: "村民",
	RoleSeer:     "预言家",
	RoleWitch:    "女巫",
	RoleHunter:   "猎人",
	RoleGuard:    "守卫",
}

// Faction reports the sub-faction r belongs to. Unknown roles report "".
func (r Role) Faction() Faction { return roleFactions[r] }

// IsWolf reports whether r plays for the werewolves.
func (r Role) IsWolf() bool { return r == RoleWerewolf }

// IsGod reports whether r is a villager-aligned role with a night or death ability.
func (r Role) IsGod() bool { return roleFactions[r] == FactionGods }

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleFactions[r]
	return ok
}

// DisplayName returns the Chinese table name of the role.
func (r Role) DisplayName() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return string(r)
}

// Status is a player's life state. Any non-alive status is terminal.
type Status string

const (
	StatusAlive      Status = "ALIVE"
	StatusDeadNight  Status = "DEAD_NIGHT"
	StatusDeadVote   Status = "DEAD_VOTE"
	StatusDeadShoot  Status = "DEAD_SHOOT"
	StatusDeadPoison Status = "DEAD_POISON"
)

// Alive reports whether s is StatusAlive.
func (s Status) Alive() bool { return s == StatusAlive }

// Phase is a step of the God Loop state machine.
type Phase string

const (
	PhaseSetup          Phase = "SETUP"
	PhaseNightStart     Phase = "NIGHT_START"
	PhaseGuardAction    Phase = "GUARD_ACTION"
	PhaseWerewolfAction Phase = "WEREWOLF_ACTION"
	PhaseSeerAction     Phase = "SEER_ACTION"
	PhaseWitchAction    Phase = "WITCH_ACTION"
	PhaseDayAnnounce    Phase = "DAY_ANNOUNCE"
	PhaseHunterAction   Phase = "HUNTER_ACTION"
	PhaseDayDiscussion  Phase = "DAY_DISCUSSION"
	PhaseVoting         Phase = "VOTING"
	PhaseLastWords      Phase = "LAST_WORDS"
	PhaseGameReview     Phase = "GAME_REVIEW"
)

// nightRoles maps each secret night sub-phase to the role that acts in it.
var nightRoles = map[Phase]Role{
	PhaseGuardAction:    RoleGuard,
	PhaseWerewolfAction: RoleWerewolf,
	PhaseSeerAction:     RoleSeer,
	PhaseWitchAction:    RoleWitch,
}

// NightRole returns the role acting in a secret night sub-phase and true, or
// "" and false for every public phase.
func (p Phase) NightRole() (Role, bool) {
	r, ok := nightRoles[p]
	return r, ok
}

// IsNightAction reports whether p is one of the secret night sub-phases.
func (p Phase) IsNightAction() bool {
	_, ok := nightRoles[p]
	return ok
}

// Outcome is the result of a win evaluation.
type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomeGoodWin Outcome = "GOOD_WIN"
	OutcomeWolfWin Outcome = "WOLF_WIN"
)

// Decided reports whether the game is over.
func (o Outcome) Decided() bool { return o != OutcomeNone }
