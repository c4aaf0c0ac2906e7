// Package mock is a recording [tts.Provider] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/werewolf/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// Call is one recorded Synthesize invocation.
type Call struct {
	Text  string
	Voice tts.Voice
}

// Provider answers every line with a copy of Clip.
type Provider struct {
	Clip          tts.Audio
	SynthesizeErr error

	// Block holds Synthesize until it is closed or the context ends.
	Block chan struct{}

	Voices        []tts.Voice
	ListVoicesErr error

	mu    sync.Mutex
	calls []Call
}

// Synthesize implements [tts.Provider]. The call is recorded before it
// blocks.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.Audio, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Text: text, Voice: voice})
	p.mu.Unlock()

	if p.Block != nil {
		select {
		case <-p.Block:
		case <-ctx.Done():
			return tts.Audio{}, ctx.Err()
		}
	}
	if p.SynthesizeErr != nil {
		return tts.Audio{}, p.SynthesizeErr
	}
	clip := p.Clip
	clip.Data = append([]byte(nil), p.Clip.Data...)
	return clip, nil
}

// ListVoices implements [tts.Provider].
func (p *Provider) ListVoices(context.Context) ([]tts.Voice, error) {
	return p.Voices, p.ListVoicesErr
}

// Calls returns a snapshot of the recorded calls.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}
