package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/werewolf/internal/resilience"
	"github.com/MrWong99/werewolf/pkg/provider/llm"
	"github.com/MrWong99/werewolf/pkg/provider/llm/mock"
)

func fastRetry() GeneratorOption {
	return WithRetry(resilience.RetryConfig{Attempts: 3, BaseDelay: time.Millisecond})
}

func TestGenerator_SplitsSystemPrompt(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "  ok  "}}
	g := NewGenerator(p, fastRetry())

	got := g.Generate(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "rules"},
		{Role: llm.RoleUser, Content: "turn"},
	}, ModelConfig{Model: "gpt-4o", Temperature: 0.7, JSON: true})

	if got != "ok" {
		t.Errorf("Generate = %q, want %q", got, "ok")
	}
	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	req := calls[0].Req
	if req.SystemPrompt != "rules" || len(req.Messages) != 1 || req.Messages[0].Content != "turn" {
		t.Errorf("unexpected request: %+v", req)
	}
	if req.Model != "gpt-4o" || req.Temperature != 0.7 || !req.JSON {
		t.Errorf("model config not forwarded: %+v", req)
	}
}

func TestGenerator_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	transient := errors.New("503")
	p := &mock.Provider{
		Errs:             []error{transient, transient},
		CompleteResponse: &llm.CompletionResponse{Content: "third time"},
	}
	g := NewGenerator(p, fastRetry())

	if got := g.Generate(context.Background(), nil, ModelConfig{}); got != "third time" {
		t.Errorf("Generate = %q, want %q", got, "third time")
	}
	if n := len(p.Calls()); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestGenerator_ReturnsSentinelAfterExhaustion(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteErr: errors.New("unreachable")}
	g := NewGenerator(p, fastRetry())

	if got := g.Generate(context.Background(), nil, ModelConfig{}); got != GenerationFailed {
		t.Errorf("Generate = %q, want sentinel", got)
	}
	if n := len(p.Calls()); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestGenerator_NilResponseIsFailure(t *testing.T) {
	t.Parallel()

	g := NewGenerator(&mock.Provider{}, fastRetry())
	if got := g.Generate(context.Background(), nil, ModelConfig{}); got != GenerationFailed {
		t.Errorf("Generate = %q, want sentinel", got)
	}
}

func TestGenerator_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &mock.Provider{CompleteErr: context.Canceled}
	g := NewGenerator(p, WithRetry(resilience.RetryConfig{Attempts: 3, BaseDelay: time.Hour}))

	done := make(chan string, 1)
	go func() { done <- g.Generate(ctx, nil, ModelConfig{}) }()
	select {
	case got := <-done:
		if got != GenerationFailed {
			t.Errorf("Generate = %q, want sentinel", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Generate did not honour the cancelled context")
	}
}
