package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/MrWong99/werewolf/internal/resilience"
	"github.com/MrWong99/werewolf/pkg/provider/llm"
)

// GenerationFailed is returned by [Generator.Generate] in place of a reply once
// every attempt has failed. [ParseDecision] maps it to a failed decision.
const GenerationFailed = "[[GENERATION_FAILED]]"

var errEmptyResponse = errors.New("agent: provider returned no response")

// ModelConfig selects the model settings for one generation call. Zero values
// leave the provider's defaults in place.
type ModelConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	JSON        bool
}

// Generator calls a text-generation backend with retry and exponential
// backoff. It is safe for concurrent use.
type Generator struct {
	provider llm.Provider
	retry    resilience.RetryConfig
}

// GeneratorOption is a functional option for [NewGenerator].
type GeneratorOption func(*Generator)

// WithRetry overrides the retry policy. The default is three attempts with a
// one second base delay.
func WithRetry(cfg resilience.RetryConfig) GeneratorOption {
	return func(g *Generator) { g.retry = cfg }
}

// NewGenerator wraps p.
func NewGenerator(p llm.Provider, opts ...GeneratorOption) *Generator {
	g := &Generator{
		provider: p,
		retry:    resilience.RetryConfig{Attempts: 3},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate sends messages and returns the reply text, or [GenerationFailed]
// when every attempt failed or ctx ended. It never returns an error.
func (g *Generator) Generate(ctx context.Context, messages []llm.Message, cfg ModelConfig) string {
	req := llm.CompletionRequest{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		JSON:        cfg.JSON,
	}
	for _, m := range messages {
		if m.Role == llm.RoleSystem && req.SystemPrompt == "" {
			req.SystemPrompt = m.Content
			continue
		}
		req.Messages = append(req.Messages, m)
	}

	var content string
	err := resilience.Retry(ctx, g.retry, func(ctx context.Context) error {
		resp, err := g.provider.Complete(ctx, req)
		if err != nil {
			return err
		}
		if resp == nil {
			return errEmptyResponse
		}
		content = resp.Content
		return nil
	})
	if err != nil {
		slog.Warn("agent: generation failed", "model", cfg.Model, "err", err)
		return GenerationFailed
	}
	return strings.TrimSpace(content)
}
