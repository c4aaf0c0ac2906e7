package theater

import (
	"regexp"
	"strconv"

	"github.com/MrWong99/werewolf/internal/game"
)

// Narrator phrasings that announce deaths. They are only consulted for
// entries recorded without a structured Deaths field.
var (
	nightDeathRe = regexp.MustCompile(`昨晚死亡的是([^。]+)`)
	voteDeathRe  = regexp.MustCompile(`(\d+)\s*号被放逐`)
	shotDeathRe  = regexp.MustCompile(`开枪带走了\s*(\d+)\s*号`)
	poisonRe     = regexp.MustCompile(`(\d+)\s*号被毒杀`)
	seatRe       = regexp.MustCompile(`(\d+)\s*号`)
)

// DeriveDeaths returns the status changes entry announces. The structured
// Deaths field wins; narrator entries without it are matched against the
// announcement phrasing. Player lines never kill anyone.
func DeriveDeaths(entry game.Entry) []game.Death {
	if entry.Deaths != nil {
		return entry.Deaths
	}
	if !entry.IsSystem {
		return nil
	}
	var out []game.Death
	if m := nightDeathRe.FindStringSubmatch(entry.Content); m != nil {
		for _, s := range seatRe.FindAllStringSubmatch(m[1], -1) {
			out = appendDeath(out, s[1], game.StatusDeadNight)
		}
	}
	for _, m := range poisonRe.FindAllStringSubmatch(entry.Content, -1) {
		out = appendDeath(out, m[1], game.StatusDeadPoison)
	}
	for _, m := range voteDeathRe.FindAllStringSubmatch(entry.Content, -1) {
		out = appendDeath(out, m[1], game.StatusDeadVote)
	}
	for _, m := range shotDeathRe.FindAllStringSubmatch(entry.Content, -1) {
		out = appendDeath(out, m[1], game.StatusDeadShoot)
	}
	return out
}

func appendDeath(out []game.Death, digits string, status game.Status) []game.Death {
	seat, err := strconv.Atoi(digits)
	if err != nil || seat <= 0 {
		return out
	}
	for _, d := range out {
		if d.Seat == seat {
			return out
		}
	}
	return append(out, game.Death{Seat: seat, Status: status})
}
