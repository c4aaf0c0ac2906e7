// Package openai talks to the Chat Completions API through the official
// OpenAI Go SDK. Compatible gateways such as vLLM, LM Studio, DashScope or
// SiliconFlow work through [WithBaseURL] and, where they want vendor
// headers, [WithHeader].
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/werewolf/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// ErrRefused wraps the model's refusal message.
var ErrRefused = errors.New("openai: model refused")

// Provider answers completion requests with one model.
type Provider struct {
	client oai.Client
	model  string
	user   string
}

type settings struct {
	baseURL      string
	organization string
	user         string
	timeout      time.Duration
	headers      [][2]string
}

// Option configures [New].
type Option func(*settings)

// WithBaseURL targets an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.baseURL = url }
}

// WithOrganization sets the OpenAI-Organization header.
func WithOrganization(org string) Option {
	return func(s *settings) { s.organization = org }
}

// WithTimeout bounds every HTTP round trip.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(s *settings) { s.headers = append(s.headers, [2]string{key, value}) }
}

// WithUser tags requests with an end-user id for the vendor's abuse
// tracking.
func WithUser(id string) Option {
	return func(s *settings) { s.user = id }
}

// New returns a provider for model. The SDK's own retries are off; the
// agent layer retries whole decisions.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	switch {
	case apiKey == "":
		return nil, errors.New("openai: api key is required")
	case model == "":
		return nil, errors.New("openai: model is required")
	}

	var s settings
	for _, o := range opts {
		o(&s)
	}

	ro := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if s.baseURL != "" {
		ro = append(ro, option.WithBaseURL(s.baseURL))
	}
	if s.organization != "" {
		ro = append(ro, option.WithOrganization(s.organization))
	}
	if s.timeout > 0 {
		ro = append(ro, option.WithHTTPClient(&http.Client{Timeout: s.timeout}))
	}
	for _, h := range s.headers {
		ro = append(ro, option.WithHeader(h[0], h[1]))
	}

	return &Provider{client: oai.NewClient(ro...), model: model, user: s.user}, nil
}

// Complete implements [llm.Provider].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.params(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai: %s answered %d: %w", params.Model, apiErr.StatusCode, err)
		}
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: reply has no choices")
	}

	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, fmt.Errorf("%w: %s", ErrRefused, choice.Message.Refusal)
	}
	if choice.FinishReason == "length" {
		slog.Debug("openai: reply cut at token limit", "model", resp.Model, "completion_tokens", resp.Usage.CompletionTokens)
	}

	return &llm.CompletionResponse{
		Content: choice.Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// Capabilities implements [llm.Provider].
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return llm.LookupCapabilities(p.model)
}

func (p *Provider) params(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	model := p.model
	if req.Model != "" {
		model = req.Model
	}
	caps := llm.LookupCapabilities(model)

	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(req.SystemPrompt))
	}
	for i, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, fmt.Errorf("openai: message %d: %w", i, err)
		}
		msgs = append(msgs, msg)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: msgs,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if n := req.MaxTokens; n > 0 {
		if caps.MaxOutputTokens > 0 {
			n = min(n, caps.MaxOutputTokens)
		}
		params.MaxCompletionTokens = param.NewOpt(int64(n))
	}
	if req.JSON && caps.SupportsJSONMode {
		params.ResponseFormat.OfJSONObject = &shared.ResponseFormatJSONObjectParam{}
	}
	if p.user != "" {
		params.User = param.NewOpt(p.user)
	}
	return params, nil
}

func convertMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case llm.RoleSystem:
		return oai.SystemMessage(m.Content), nil
	case llm.RoleUser:
		var u oai.ChatCompletionUserMessageParam
		u.Content.OfString = param.NewOpt(m.Content)
		if m.Name != "" {
			u.Name = param.NewOpt(m.Name)
		}
		return oai.ChatCompletionMessageParamUnion{OfUser: &u}, nil
	case llm.RoleAssistant:
		var a oai.ChatCompletionAssistantMessageParam
		a.Content.OfString = param.NewOpt(m.Content)
		if m.Name != "" {
			a.Name = param.NewOpt(m.Name)
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &a}, nil
	}
	return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unsupported role %q", m.Role)
}
