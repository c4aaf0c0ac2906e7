package agent

import (
	"fmt"
	"strings"

	"github.com/MrWong99/werewolf/internal/game"
	"github.com/MrWong99/werewolf/pkg/provider/llm"
)

const rulesSummary = `规则要点：
- 狼人每晚共同袭击一名玩家。
- 预言家每晚查验一名其他玩家，得知其是好人还是狼人。
- 女巫有一瓶解药和一瓶毒药，各只能用一次，同一晚最多使用一瓶。
- 猎人出局时可以开枪带走一名玩家，但被毒死时不能开枪。
- 守卫每晚守护一名玩家，不能连续两晚守护同一人；同守同救的玩家依然会死亡。
- 狼人消灭所有村民或所有神职即获胜；所有狼人出局则好人获胜。`

var phaseNames = map[game.Phase]string{
	game.PhaseSetup:          "开局",
	game.PhaseNightStart:     "入夜",
	game.PhaseGuardAction:    "守卫行动",
	game.PhaseWerewolfAction: "狼人行动",
	game.PhaseSeerAction:     "预言家行动",
	game.PhaseWitchAction:    "女巫行动",
	game.PhaseDayAnnounce:    "天亮公布",
	game.PhaseHunterAction:   "猎人开枪",
	game.PhaseDayDiscussion:  "白天讨论",
	game.PhaseVoting:         "投票",
	game.PhaseLastWords:      "遗言",
	game.PhaseGameReview:     "复盘",
}

var statusNames = map[game.Status]string{
	game.StatusDeadNight:  "夜间死亡",
	game.StatusDeadVote:   "被投票出局",
	game.StatusDeadShoot:  "被猎人带走",
	game.StatusDeadPoison: "被毒死",
}

var tasks = map[Kind]string{
	KindSpeech:    "轮到你在白天发言。请结合公开记录分析局势，表明你的立场。",
	KindLastWords: "你已被投票出局，请发表遗言。",
	KindWolfChat:  "现在是狼人夜间讨论，只有狼队友能看到你的发言。请和队友商量今晚袭击谁。",
	KindWolfKill:  "你是最后一个发言的狼人。请总结讨论，并确定今晚的袭击目标。",
	KindGuard:     "请选择今晚守护的玩家，可以守护自己，但不能与上一晚相同。",
	KindSeer:      "请选择一名其他存活玩家查验身份。",
	KindWitch:     "请决定是否使用药水。解药只能救今晚被袭击的玩家，毒药可以毒死任意一名存活玩家，同一晚最多使用一瓶。",
	KindVote:      "请投票放逐一名存活玩家，填0表示弃票。",
	KindHunter:    "你已出局，可以开枪带走一名存活玩家，填0表示不开枪。",
}

var schemas = map[Kind]string{
	KindSpeech:    `{"thought": "你的真实想法", "speak": "你的公开发言"}`,
	KindLastWords: `{"thought": "你的真实想法", "speak": "你的遗言"}`,
	KindWolfChat:  `{"thought": "你的真实想法", "speak": "对狼队友说的话"}`,
	KindWolfKill:  `{"thought": "你的真实想法", "speak": "对狼队友说的话", "target": 座位号}`,
	KindGuard:     `{"thought": "你的真实想法", "target": 座位号}`,
	KindSeer:      `{"thought": "你的真实想法", "target": 座位号}`,
	KindWitch:     `{"thought": "你的真实想法", "useCure": true或false, "poisonTarget": 座位号或0}`,
	KindVote:      `{"thought": "你的真实想法", "target": 座位号或0}`,
	KindHunter:    `{"thought": "你的真实想法", "speak": "开枪时说的话", "target": 座位号或0}`,
}

// BuildMessages renders the system and user messages for req. The public
// history and the private memory are filtered from req.Log here, so nothing
// outside Self's knowledge reaches the model.
func BuildMessages(req Request) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt(req)},
		{Role: llm.RoleUser, Content: userPrompt(req)},
	}
}

func systemPrompt(req Request) string {
	var b strings.Builder
	self := req.Self
	fmt.Fprintf(&b, "你正在参加一局%d人狼人杀。你是%s，名字叫%s，你的身份是【%s】。\n",
		len(req.Players), self.Label(), self.Actor.Name, self.Role.DisplayName())
	if self.Actor.Personality != "" {
		fmt.Fprintf(&b, "你的性格：%s\n", self.Actor.Personality)
	}
	if self.Role.IsWolf() {
		var mates []int
		for _, s := range game.WolfSeats(req.Players) {
			if s != self.Seat {
				mates = append(mates, s)
			}
		}
		if len(mates) > 0 {
			fmt.Fprintf(&b, "你的狼队友是：%s。\n", seatList(mates))
		}
	}
	b.WriteString(rulesSummary)
	b.WriteString("\n只能根据下面提供的信息推理，不要编造你不知道的夜间信息。")
	b.WriteString("\n只输出一个JSON对象，不要输出任何其他文字。")
	return b.String()
}

func userPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("【公开记录】\n")
	writeEntries(&b, PublicHistory(req.Log, req.Players))

	b.WriteString("\n【你的私密记忆】\n")
	writeEntries(&b, PrivateMemory(req.Self, req.Log, req.Players))

	b.WriteString("\n【当前局势】\n")
	fmt.Fprintf(&b, "现在是第%d天，阶段：%s。\n", req.Turn, phaseName(req.Phase))
	fmt.Fprintf(&b, "存活玩家：%s\n", seatList(game.AliveSeats(req.Players)))
	var dead []string
	for _, p := range req.Players {
		if !p.Alive() {
			dead = append(dead, fmt.Sprintf("%s(%s)", p.Label(), statusNames[p.Status]))
		}
	}
	if len(dead) > 0 {
		fmt.Fprintf(&b, "已出局：%s\n", strings.Join(dead, "、"))
	}
	switch req.Kind {
	case KindWitch:
		if req.WolfTarget != 0 {
			fmt.Fprintf(&b, "今晚被狼人袭击的是%s。\n", game.SeatLabel(req.WolfTarget))
		} else {
			b.WriteString("今晚没有人被狼人袭击。\n")
		}
		fmt.Fprintf(&b, "解药：%s；毒药：%s。\n", charge(req.Self.Potions.Cure), charge(req.Self.Potions.Poison))
	case KindGuard:
		if req.LastGuarded != 0 {
			fmt.Fprintf(&b, "你上一晚守护了%s，今晚不能再守护同一人。\n", game.SeatLabel(req.LastGuarded))
		}
	}

	b.WriteString("\n【任务】\n")
	b.WriteString(tasks[req.Kind])
	b.WriteByte('\n')
	if req.Instruction != "" {
		b.WriteString(req.Instruction)
		b.WriteByte('\n')
	}
	b.WriteString("请严格按照以下JSON格式回复：\n")
	b.WriteString(schemas[req.Kind])
	return b.String()
}

func writeEntries(b *strings.Builder, entries []game.Entry) {
	if len(entries) == 0 {
		b.WriteString("（无）\n")
		return
	}
	for _, e := range entries {
		speaker := "法官"
		if e.Speaker != 0 {
			speaker = game.SeatLabel(e.Speaker)
		}
		fmt.Fprintf(b, "[第%d天·%s] %s：%s\n", e.Turn, phaseName(e.Phase), speaker, e.Content)
	}
}

func phaseName(p game.Phase) string {
	if n, ok := phaseNames[p]; ok {
		return n
	}
	return string(p)
}

func seatList(seats []int) string {
	if len(seats) == 0 {
		return "无"
	}
	labels := make([]string, len(seats))
	for i, s := range seats {
		labels[i] = game.SeatLabel(s)
	}
	return strings.Join(labels, "、")
}

func charge(available bool) string {
	if available {
		return "可用"
	}
	return "已用完"
}
