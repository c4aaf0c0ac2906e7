package gemini

import (
	"context"
	"testing"

	"google.golang.org/genai"

	"github.com/MrWong99/werewolf/pkg/provider/llm"
)

func TestConvertMessages(t *testing.T) {
	t.Parallel()

	contents, system := convertMessages(llm.CompletionRequest{
		SystemPrompt: "你是狼人杀玩家",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "额外规则"},
			{Role: llm.RoleUser, Content: "请发言"},
			{Role: llm.RoleAssistant, Content: "我是好人"},
		},
	})
	if system == nil || len(system.Parts) != 2 {
		t.Fatalf("system = %+v, want two parts", system)
	}
	if len(contents) != 2 {
		t.Fatalf("got %d contents, want 2", len(contents))
	}
	if contents[0].Role != string(genai.RoleUser) || contents[1].Role != string(genai.RoleModel) {
		t.Errorf("roles = %q, %q", contents[0].Role, contents[1].Role)
	}

	_, system = convertMessages(llm.CompletionRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}}})
	if system != nil {
		t.Errorf("system = %+v, want nil", system)
	}
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	cfg := buildConfig(llm.CompletionRequest{JSON: true, Temperature: 0.5, MaxTokens: 300}, nil)
	if cfg.ResponseMIMEType != "application/json" {
		t.Errorf("mime = %q", cfg.ResponseMIMEType)
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.5 {
		t.Errorf("temperature = %v", cfg.Temperature)
	}
	if cfg.MaxOutputTokens != 300 {
		t.Errorf("max tokens = %d", cfg.MaxOutputTokens)
	}

	plain := buildConfig(llm.CompletionRequest{}, nil)
	if plain.ResponseMIMEType != "" || plain.Temperature != nil {
		t.Errorf("plain config = %+v", plain)
	}
}

func TestNew_RequiresModel(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), "key", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}
