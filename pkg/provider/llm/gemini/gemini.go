// Package gemini provides an LLM provider backed by Google's native
// google.golang.org/genai SDK. Unlike the any-llm gemini backend it supports
// JSON response mode, which keeps game decisions machine-readable.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/MrWong99/werewolf/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*genai.ClientConfig)

// WithBaseURL overrides the API endpoint. Used by tests and proxies.
func WithBaseURL(url string) Option {
	return func(c *genai.ClientConfig) { c.HTTPOptions.BaseURL = url }
}

// Provider implements llm.Provider on top of a genai client.
type Provider struct {
	client *genai.Client
	model  string
}

// New creates a Provider. An empty apiKey makes the SDK fall back to the
// GEMINI_API_KEY / GOOGLE_API_KEY environment variables.
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("gemini: model must not be empty")
	}
	cfg := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	for _, o := range opts {
		o(cfg)
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Provider{client: client, model: model}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := p.model
	if req.Model != "" {
		model = req.Model
	}
	contents, system := convertMessages(req)

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, buildConfig(req, system))
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}

	out := &llm.CompletionResponse{Content: resp.Text()}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return llm.LookupCapabilities(p.model)
}

// convertMessages maps chat messages onto genai contents. System messages are
// folded into the system instruction since Gemini has no system role.
func convertMessages(req llm.CompletionRequest) ([]*genai.Content, *genai.Content) {
	var (
		contents []*genai.Content
		system   []*genai.Part
	)
	if req.SystemPrompt != "" {
		system = append(system, genai.NewPartFromText(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, genai.NewPartFromText(m.Content))
		case llm.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) == 0 {
		return contents, nil
	}
	return contents, &genai.Content{Parts: system}
}

func buildConfig(req llm.CompletionRequest, system *genai.Content) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{SystemInstruction: system}
	if req.Temperature != 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}
