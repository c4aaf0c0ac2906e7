package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/MrWong99/werewolf/internal/agent"
	"github.com/MrWong99/werewolf/internal/game"
	"github.com/MrWong99/werewolf/pkg/audio"
	"github.com/MrWong99/werewolf/pkg/provider/tts"
)

// NarratorName is the display name of narrator timeline events.
const NarratorName = "法官"

// silence is logged for a turn that produced no speech.
const silence = "（沉默）"

// record stamps and appends entry. Unless the entry is silent or empty a
// timeline event with the same id is appended too and returned.
func (e *Engine) record(entry game.Entry) (game.Entry, *game.TimelineEvent) {
	e.mu.Lock()
	entry.ID = e.ids.Next()
	entry.Turn = e.state.Turn
	entry.Timestamp = time.Now()

	var ev *game.TimelineEvent
	if text := spokenText(entry.Content); !entry.Silent && text != "" {
		kind, name, voice := game.SpeakerNarrator, NarratorName, e.narrator
		if entry.Speaker != 0 {
			if p := e.state.Player(entry.Speaker); p != nil {
				kind, name, voice = game.SpeakerPlayer, p.Actor.Name, p.Actor.Voice
			}
		}
		ev = &game.TimelineEvent{
			ID:       entry.ID,
			Kind:     kind,
			Name:     name,
			Text:     text,
			Voice:    voice,
			CacheKey: audio.CacheKey(text, ttsVoice(voice)),
		}
		e.state.AppendTimeline(*ev)
	}
	e.state.Append(entry)
	e.mu.Unlock()

	e.publish(entry)
	return entry, ev
}

// narrate appends a narrator entry and voices it.
func (e *Engine) narrate(ctx context.Context, entry game.Entry) {
	entry.IsSystem = true
	entry.Speaker = 0
	_, ev := e.record(entry)
	e.play(ctx, ev)
}

// say is narrate for a plain public line.
func (e *Engine) say(ctx context.Context, phase game.Phase, text string) {
	e.narrate(ctx, game.Entry{Phase: phase, Content: text})
}

// whisper appends a silent narrator note visible only to seats.
func (e *Engine) whisper(phase game.Phase, text string, seats ...int) {
	e.record(game.Entry{Phase: phase, Content: text, IsSystem: true, VisibleTo: seats, Silent: true})
}

// speak records a seat's line and waits for it to be voiced. visibleTo nil
// makes it public. An empty silent line is not recorded at all; an empty
// voiced line is logged as silence.
func (e *Engine) speak(ctx context.Context, p game.Player, phase game.Phase, dec agent.Decision, visibleTo []int, silent bool) {
	content := strings.TrimSpace(dec.Speak)
	if content == "" {
		if silent {
			return
		}
		content, silent = silence, true
	}
	_, ev := e.record(game.Entry{
		Phase:     phase,
		Speaker:   p.Seat,
		Content:   content,
		Thought:   dec.Thought,
		VisibleTo: visibleTo,
		Silent:    silent,
	})
	e.play(ctx, ev)
}

// play voices ev through the audio service, or waits the simulated speaking
// delay when audio is disabled. It never fails.
func (e *Engine) play(ctx context.Context, ev *game.TimelineEvent) {
	if ev == nil {
		return
	}
	if e.audio == nil {
		sleep(ctx, e.pacing.Load().SpeechDelay)
		return
	}
	e.audio.PlayOrGenerate(ctx, audio.PlayRequest{
		Text:     ev.Text,
		Voice:    ttsVoice(ev.Voice),
		CacheKey: ev.CacheKey,
		Speed:    ev.Voice.Speed,
	})
}

// pause takes the cosmetic pause between phases.
func (e *Engine) pause(ctx context.Context) {
	p := e.pacing.Load()
	d := p.PhaseDelayMin
	if span := p.PhaseDelayMax - p.PhaseDelayMin; span > 0 {
		d += time.Duration(e.rng.Int64N(int64(span)))
	}
	sleep(ctx, d)
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func ttsVoice(v game.Voice) tts.Voice {
	return tts.Voice{Provider: v.Provider, ID: v.ID, Speed: v.Speed}
}

// seatPrefixRe matches a leading "3号：" a model may prepend to its speech.
var seatPrefixRe = regexp.MustCompile(`^\s*\d{1,2}\s*号\s*[：:]\s*`)

// spokenText is the text voiced for a log line.
func spokenText(content string) string {
	return strings.TrimSpace(seatPrefixRe.ReplaceAllString(content, ""))
}

func seatList(seats []int) string {
	labels := make([]string, len(seats))
	for i, s := range seats {
		labels[i] = game.SeatLabel(s)
	}
	return strings.Join(labels, "、")
}

var nightOpenLines = map[game.Phase]string{
	game.PhaseGuardAction:    "守卫请睁眼，你要守护谁？",
	game.PhaseWerewolfAction: "狼人请睁眼，请商量今晚要袭击的目标。",
	game.PhaseSeerAction:     "预言家请睁眼，你要查验谁的身份？",
	game.PhaseWitchAction:    "女巫请睁眼。",
}

func roleRevealLine(p game.Player, players []game.Player) string {
	line := fmt.Sprintf("你是%s，你的身份是%s。", p.Label(), p.Role.DisplayName())
	if p.Role.IsWolf() {
		var mates []int
		for _, s := range game.WolfSeats(players) {
			if s != p.Seat {
				mates = append(mates, s)
			}
		}
		if len(mates) > 0 {
			line += fmt.Sprintf("你的狼队友是：%s。", seatList(mates))
		}
	}
	if p.Role == game.RoleWitch {
		line += "你有一瓶解药和一瓶毒药。"
	}
	return line
}

func openingLine(players []game.Player) string {
	counts := make(map[game.Role]int)
	var order []game.Role
	for _, p := range players {
		if counts[p.Role] == 0 {
			order = append(order, p.Role)
		}
		counts[p.Role]++
	}
	parts := make([]string, len(order))
	for i, r := range order {
		parts[i] = fmt.Sprintf("%d名%s", counts[r], r.DisplayName())
	}
	return fmt.Sprintf("游戏开始，本局共%d名玩家：%s。", len(players), strings.Join(parts, "、"))
}

func dawnLine(dead []int) string {
	if len(dead) == 0 {
		return "天亮了。昨晚是平安夜。"
	}
	return fmt.Sprintf("天亮了。昨晚死亡的是%s。", seatList(dead))
}

func voteLine(res game.VoteResult, order []int) string {
	if res.Eliminated == 0 {
		return "投票结束，无人投票，今天是平安日。"
	}
	var b strings.Builder
	b.WriteString("投票结果：")
	first := true
	for _, target := range order {
		voters, ok := res.ByTarget[target]
		if !ok {
			continue
		}
		if !first {
			b.WriteString("，")
		}
		first = false
		fmt.Fprintf(&b, "%s得%d票（%s）", game.SeatLabel(target), len(voters), seatList(voters))
	}
	if len(res.Abstained) > 0 {
		fmt.Fprintf(&b, "；%s弃票", seatList(res.Abstained))
	}
	b.WriteString("。")
	if len(res.Tied) > 1 {
		fmt.Fprintf(&b, "%s平票，随机决定。", seatList(res.Tied))
	}
	fmt.Fprintf(&b, "%s被放逐。", game.SeatLabel(res.Eliminated))
	return b.String()
}

func shotLine(hunter, target int) string {
	if target == 0 {
		return fmt.Sprintf("猎人%s选择不开枪。", game.SeatLabel(hunter))
	}
	return fmt.Sprintf("猎人%s开枪带走了%s。", game.SeatLabel(hunter), game.SeatLabel(target))
}

func gameOverLine(o game.Outcome) string {
	if o == game.OutcomeWolfWin {
		return "游戏结束，狼人阵营获胜！"
	}
	return "游戏结束，好人阵营获胜！"
}

func revealLine(players []game.Player) string {
	parts := make([]string, len(players))
	for i, p := range players {
		parts[i] = p.Label() + p.Role.DisplayName()
	}
	return "身份公布：" + strings.Join(parts, "，") + "。"
}

const (
	hunterVotedInstruction = "你被投票放逐了。请发表遗言，并决定是否开枪带走一名存活玩家（target 填座位号，不开枪填 0）。"
	hunterNightInstruction = "你昨晚出局了，没有遗言。你可以开枪带走一名存活玩家（target 填座位号，不开枪填 0）。"
)
