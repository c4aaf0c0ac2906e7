package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/werewolf/pkg/provider/llm"
	"github.com/MrWong99/werewolf/pkg/provider/llm/mock"
)

func TestLLMDecider_UsesActorModel(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Responses: []string{`{"thought":"稳","target":"2号"}`}}
	d := NewLLMDecider(NewGenerator(p, fastRetry()), WithMaxTokens(256))

	req := request(7, KindSeer)
	req.Self.Actor.Model = "deepseek-chat"
	req.Self.Actor.Temperature = 0.3

	got := d.Decide(context.Background(), req)
	if got.Target != 2 || got.Thought != "稳" || got.Failed {
		t.Errorf("Decide = %+v", got)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	sent := calls[0].Req
	if sent.Model != "deepseek-chat" || sent.Temperature != 0.3 || sent.MaxTokens != 256 || !sent.JSON {
		t.Errorf("request = %+v", sent)
	}
}

func TestLLMDecider_FailureIsNeutral(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteErr: errors.New("down")}
	d := NewLLMDecider(NewGenerator(p, fastRetry()))

	got := d.Decide(context.Background(), request(1, KindWolfKill))
	if !got.Failed || got.Target != 0 || got.Speak != "" {
		t.Errorf("Decide = %+v, want a failed neutral decision", got)
	}
}

func TestLLMDecider_MalformedReplyBecomesSpeech(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "我是好人，过。"}}
	d := NewLLMDecider(NewGenerator(p, fastRetry()))

	got := d.Decide(context.Background(), request(5, KindSpeech))
	if got.Speak != "我是好人，过。" || got.Failed {
		t.Errorf("Decide = %+v", got)
	}
}
