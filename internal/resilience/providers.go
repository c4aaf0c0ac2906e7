package resilience

import (
	"context"

	"github.com/MrWong99/werewolf/pkg/provider/llm"
	"github.com/MrWong99/werewolf/pkg/provider/tts"
)

var (
	_ llm.Provider = (*LLMFallback)(nil)
	_ tts.Provider = (*TTSFallback)(nil)
)

// LLMFallback is an [llm.Provider] that fails over along a [Chain].
type LLMFallback struct {
	chain *Chain[llm.Provider]
}

// NewLLMFallback starts a chain with primary.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{chain: NewChain(primaryName, primary, cfg)}
}

// AddFallback appends a backend.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) { f.chain.Add(name, p) }

// Names returns the backends in try order.
func (f *LLMFallback) Names() []string { return f.chain.Names() }

// Complete asks the first healthy backend. An actor's model override names a
// model of the primary's vendor, so fallbacks get the request with Model
// cleared and answer with their own default.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Try(ctx, f.chain, func(p llm.Provider, primary bool) (*llm.CompletionResponse, error) {
		r := req
		if !primary {
			r.Model = ""
		}
		return p.Complete(ctx, r)
	})
}

// Capabilities describes the primary.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	return f.chain.Primary().Capabilities()
}

// TTSFallback is a [tts.Provider] that fails over along a [Chain].
type TTSFallback struct {
	chain *Chain[tts.Provider]
}

// NewTTSFallback starts a chain with primary.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{chain: NewChain(primaryName, primary, cfg)}
}

// AddFallback appends a backend.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) { f.chain.Add(name, p) }

// Names returns the backends in try order.
func (f *TTSFallback) Names() []string { return f.chain.Names() }

// Synthesize voices text on the first healthy backend. Voice ids belong to
// one vendor, so a fallback speaks with its default speaker at the same
// speed.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.Audio, error) {
	return Try(ctx, f.chain, func(p tts.Provider, primary bool) (tts.Audio, error) {
		v := voice
		if !primary {
			v.ID = ""
		}
		return p.Synthesize(ctx, text, v)
	})
}

// ListVoices lists the voices of the first healthy backend.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	return Try(ctx, f.chain, func(p tts.Provider, _ bool) ([]tts.Voice, error) {
		return p.ListVoices(ctx)
	})
}
