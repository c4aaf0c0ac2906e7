// Package llm defines the Provider interface for text-generation backends.
//
// Players in a game are backed by chat models. The engine only ever needs a
// single non-streaming completion per decision, so the contract is deliberately
// narrow: messages in, text out. Backends live in sub-packages (openai, anyllm,
// gemini) and a recording test double in llm/mock.
//
// Implementations must be safe for concurrent use; the voting phase asks every
// living player for a ballot at the same time.
package llm

import (
	"context"
	"strings"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the text of the message.
	Content string

	// Name optionally identifies the participant in multi-speaker contexts.
	Name string
}

// CompletionRequest carries everything the model needs to produce a reply.
type CompletionRequest struct {
	// Messages is the ordered conversation. Must be non-empty.
	Messages []Message

	// SystemPrompt is injected ahead of Messages when non-empty.
	SystemPrompt string

	// Model overrides the provider's default model for this request.
	Model string

	// Temperature in [0, 2]. Zero uses the provider default.
	Temperature float64

	// MaxTokens caps the reply length. Zero uses the provider default.
	MaxTokens int

	// JSON asks the backend to constrain output to a JSON object where the
	// API supports it. Callers must still tolerate non-JSON replies.
	JSON bool
}

// Usage holds token accounting returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// ModelCapabilities is static metadata about a model.
type ModelCapabilities struct {
	ContextWindow   int
	MaxOutputTokens int

	// SupportsJSONMode reports whether CompletionRequest.JSON is honoured.
	SupportsJSONMode bool
}

// Provider is the abstraction over any text-generation backend.
type Provider interface {
	// Complete sends req and waits for the full reply. It returns an error on
	// transport failure, non-success responses, or context cancellation.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities describes the provider's default model.
	Capabilities() ModelCapabilities
}

// capabilityTable is matched by lowercase prefix (or substring for vendor
// families that embed the version in the middle). Order matters: the first
// match wins, so more specific names come first.
var capabilityTable = []struct {
	match    string
	contains bool
	caps     ModelCapabilities
}{
	{match: "gpt-4o-mini", caps: ModelCapabilities{128_000, 16_384, true}},
	{match: "gpt-4o", caps: ModelCapabilities{128_000, 16_384, true}},
	{match: "gpt-4.1", caps: ModelCapabilities{1_047_576, 32_768, true}},
	{match: "gpt-4-turbo", caps: ModelCapabilities{128_000, 4_096, true}},
	{match: "gpt-4", caps: ModelCapabilities{8_192, 4_096, false}},
	{match: "gpt-3.5-turbo", caps: ModelCapabilities{16_385, 4_096, true}},
	{match: "o3", caps: ModelCapabilities{200_000, 100_000, true}},
	{match: "o1", caps: ModelCapabilities{200_000, 100_000, true}},
	{match: "claude", caps: ModelCapabilities{200_000, 8_192, false}},
	{match: "gemini-2.5", contains: true, caps: ModelCapabilities{1_048_576, 65_536, true}},
	{match: "gemini-2.0-flash", contains: true, caps: ModelCapabilities{1_048_576, 8_192, true}},
	{match: "gemini", caps: ModelCapabilities{128_000, 8_192, true}},
	{match: "deepseek", caps: ModelCapabilities{64_000, 8_192, true}},
	{match: "qwen", caps: ModelCapabilities{131_072, 8_192, true}},
}

// LookupCapabilities returns the known capabilities of model, or conservative
// defaults for unknown models.
func LookupCapabilities(model string) ModelCapabilities {
	lower := strings.ToLower(model)
	for _, row := range capabilityTable {
		if row.contains && strings.Contains(lower, row.match) || strings.HasPrefix(lower, row.match) {
			return row.caps
		}
	}
	return ModelCapabilities{ContextWindow: 32_000, MaxOutputTokens: 4_096}
}
