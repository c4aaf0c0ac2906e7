package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/werewolf/internal/config"
	"github.com/MrWong99/werewolf/internal/observe"
	"github.com/MrWong99/werewolf/internal/resilience"
	"github.com/MrWong99/werewolf/pkg/provider/llm"
	"github.com/MrWong99/werewolf/pkg/provider/llm/anyllm"
	"github.com/MrWong99/werewolf/pkg/provider/llm/gemini"
	"github.com/MrWong99/werewolf/pkg/provider/llm/openai"
	"github.com/MrWong99/werewolf/pkg/provider/tts"
	"github.com/MrWong99/werewolf/pkg/provider/tts/coqui"
	"github.com/MrWong99/werewolf/pkg/provider/tts/elevenlabs"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured.
type Providers struct {
	LLM llm.Provider
	TTS tts.Provider

	// TTSName is the registry name TTS was built from. Voices naming it, or
	// naming no provider, are synthesised by TTS.
	TTSName string
}

// RegisterBuiltinProviders wires every provider implementation that ships with
// the server into reg.
func RegisterBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.LLM.Register("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if e.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(e.BaseURL))
		}
		if org := e.OptString("organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d := e.OptDuration("timeout"); d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		if user := e.OptString("user"); user != "" {
			opts = append(opts, openai.WithUser(user))
		}
		for k, v := range e.OptStringMap("headers") {
			opts = append(opts, openai.WithHeader(k, v))
		}
		return openai.New(e.APIKey, e.Model, opts...)
	})

	reg.LLM.Register("gemini", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []gemini.Option
		if e.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(e.BaseURL))
		}
		return gemini.New(context.Background(), e.APIKey, e.Model, opts...)
	})

	// The remaining vendors share the any-llm-go pattern: optional APIKey +
	// optional BaseURL.
	for _, name := range []string{"anthropic", "deepseek", "mistral", "groq", "llamacpp", "llamafile"} {
		reg.LLM.Register(name, func(e config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if e.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
			}
			if e.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
			}
			return anyllm.New(name, e.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.LLM.Register("ollama", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if e.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
		}
		return anyllm.New("ollama", e.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.TTS.Register("elevenlabs", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if e.Model != "" {
			opts = append(opts, elevenlabs.WithModel(e.Model))
		}
		if f := e.OptString("output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if lang := e.OptString("language"); lang != "" {
			opts = append(opts, elevenlabs.WithLanguage(lang))
		}
		if ws, api := e.OptString("ws_base_url"), e.BaseURL; ws != "" && api != "" {
			opts = append(opts, elevenlabs.WithBaseURLs(ws, api))
		}
		return elevenlabs.New(e.APIKey, opts...)
	})

	reg.TTS.Register("coqui", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := e.OptString("language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := e.OptString("api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if rate := e.OptInt("sample_rate"); rate > 0 {
			opts = append(opts, coqui.WithOutputSampleRate(rate))
		}
		if d := e.OptDuration("timeout"); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(e.BaseURL, opts...)
	})
}

// BuildProviders instantiates the providers cfg names. A provider with
// fallbacks is wrapped in a [resilience.LLMFallback] or
// [resilience.TTSFallback] with one circuit breaker per entry. Names that
// are not registered are logged and skipped.
func BuildProviders(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*Providers, error) {
	ps := &Providers{}

	if e := cfg.Providers.LLM; e.Name != "" {
		primary, err := create(reg.LLM.Create, "llm", e)
		if err != nil {
			return nil, err
		}
		if primary != nil && len(cfg.Providers.LLMFallbacks) > 0 {
			chain := resilience.NewLLMFallback(primary, e.Name, fallbackConfig("llm", metrics))
			for _, fb := range cfg.Providers.LLMFallbacks {
				p, err := create(reg.LLM.Create, "llm", fb)
				if err != nil {
					return nil, err
				}
				if p != nil {
					chain.AddFallback(fb.Name, p)
				}
			}
			ps.LLM = chain
		} else if primary != nil {
			ps.LLM = primary
		}
	}

	if e := cfg.Providers.TTS; e.Name != "" {
		primary, err := create(reg.TTS.Create, "tts", e)
		if err != nil {
			return nil, err
		}
		if primary != nil && len(cfg.Providers.TTSFallbacks) > 0 {
			chain := resilience.NewTTSFallback(primary, e.Name, fallbackConfig("tts", metrics))
			for _, fb := range cfg.Providers.TTSFallbacks {
				p, err := create(reg.TTS.Create, "tts", fb)
				if err != nil {
					return nil, err
				}
				if p != nil {
					chain.AddFallback(fb.Name, p)
				}
			}
			ps.TTS, ps.TTSName = chain, e.Name
		} else if primary != nil {
			ps.TTS, ps.TTSName = primary, e.Name
		}
	}
	return ps, nil
}

// fallbackConfig logs breaker transitions of kind's chain and counts every
// failover and opened breaker as a provider error.
func fallbackConfig(kind string, metrics *observe.Metrics) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		Breaker: resilience.BreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("circuit breaker changed state", "kind", kind, "provider", name, "from", from, "to", to)
				if to == resilience.StateOpen && metrics != nil {
					metrics.RecordProviderError(context.Background(), name, "circuit_open")
				}
			},
		},
		OnFailover: func(name string, _ error) {
			if metrics != nil {
				metrics.RecordProviderError(context.Background(), name, kind+"_failover")
			}
		},
	}
}

// create runs a registry constructor. Unregistered names yield a nil
// provider and a warning.
func create[P any](fn func(config.ProviderEntry) (P, error), kind string, e config.ProviderEntry) (P, error) {
	var zero P
	p, err := fn(e)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("provider not registered, skipping", "kind", kind, "name", e.Name)
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("app: create %s provider %q: %w", kind, e.Name, err)
	}
	return p, nil
}
