package agent

import (
	"strings"
	"testing"

	"github.com/MrWong99/werewolf/internal/game"
	"github.com/MrWong99/werewolf/pkg/provider/llm"
)

func request(seat int, kind Kind) Request {
	ps := table()
	self, _ := game.FindPlayer(ps, seat)
	return Request{
		Kind:    kind,
		Self:    self,
		Turn:    1,
		Phase:   game.PhaseDayDiscussion,
		Players: ps,
		Log:     sampleLog(),
	}
}

func TestBuildMessages_Shape(t *testing.T) {
	t.Parallel()

	msgs := BuildMessages(request(4, KindSpeech))
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != llm.RoleSystem || msgs[1].Role != llm.RoleUser {
		t.Errorf("roles = %s,%s", msgs[0].Role, msgs[1].Role)
	}
	for _, section := range []string{"【公开记录】", "【你的私密记忆】", "【当前局势】", "【任务】"} {
		if !strings.Contains(msgs[1].Content, section) {
			t.Errorf("user prompt missing section %s", section)
		}
	}
}

func TestBuildMessages_NoLeaks(t *testing.T) {
	t.Parallel()

	for _, seat := range []int{4, 7, 8, 9} {
		msgs := BuildMessages(request(seat, KindSpeech))
		all := msgs[0].Content + msgs[1].Content
		for _, secret := range []string{"刀4号", "4号像预言家", "跳预言家", "你的狼队友"} {
			if strings.Contains(all, secret) {
				t.Errorf("seat %d prompt leaks %q", seat, secret)
			}
		}
	}

	villager := BuildMessages(request(4, KindSpeech))[1].Content
	if strings.Contains(villager, "2号是狼人") {
		t.Error("villager sees the seer's check result")
	}
	seer := BuildMessages(request(7, KindSpeech))[1].Content
	if !strings.Contains(seer, "2号是狼人") {
		t.Error("seer forgot its own check result")
	}
}

func TestBuildMessages_WolfKnowsPack(t *testing.T) {
	t.Parallel()

	msgs := BuildMessages(request(2, KindWolfChat))
	if !strings.Contains(msgs[0].Content, "你的狼队友是：1号、3号") {
		t.Errorf("system prompt lacks teammates:\n%s", msgs[0].Content)
	}
	if !strings.Contains(msgs[1].Content, "刀4号") {
		t.Error("wolf forgot the pack's night chat")
	}
}

func TestBuildMessages_WitchSeesTarget(t *testing.T) {
	t.Parallel()

	req := request(8, KindWitch)
	req.Phase = game.PhaseWitchAction
	req.WolfTarget = 4
	req.Self.Potions.Cure = false

	user := BuildMessages(req)[1].Content
	if !strings.Contains(user, "今晚被狼人袭击的是4号") {
		t.Error("witch prompt lacks the wolf target")
	}
	if !strings.Contains(user, "解药：已用完") {
		t.Error("witch prompt does not show the spent cure")
	}
	if !strings.Contains(user, `"useCure"`) {
		t.Error("witch prompt lacks the reply schema")
	}
}

func TestBuildMessages_Instruction(t *testing.T) {
	t.Parallel()

	req := request(9, KindHunter)
	req.Instruction = "你是被投票出局的，请同时发表遗言。"
	if user := BuildMessages(req)[1].Content; !strings.Contains(user, req.Instruction) {
		t.Error("instruction not included")
	}
}

func TestKind_Speaks(t *testing.T) {
	t.Parallel()

	for _, k := range []Kind{KindSpeech, KindLastWords, KindWolfChat, KindWolfKill, KindHunter} {
		if !k.Speaks() {
			t.Errorf("%s should speak", k)
		}
	}
	for _, k := range []Kind{KindGuard, KindSeer, KindWitch, KindVote} {
		if k.Speaks() {
			t.Errorf("%s should not speak", k)
		}
	}
}
