package llm

import "testing"

func TestLookupCapabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model    string
		window   int
		jsonMode bool
	}{
		{"gpt-4o-mini", 128_000, true},
		{"GPT-4o-2024-08-06", 128_000, true},
		{"gpt-4", 8_192, false},
		{"claude-3-5-sonnet-latest", 200_000, false},
		{"models/gemini-2.0-flash", 1_048_576, true},
		{"deepseek-chat", 64_000, true},
		{"totally-unknown", 32_000, false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			t.Parallel()
			got := LookupCapabilities(tt.model)
			if got.ContextWindow != tt.window {
				t.Errorf("ContextWindow = %d, want %d", got.ContextWindow, tt.window)
			}
			if got.SupportsJSONMode != tt.jsonMode {
				t.Errorf("SupportsJSONMode = %v, want %v", got.SupportsJSONMode, tt.jsonMode)
			}
		})
	}
}
