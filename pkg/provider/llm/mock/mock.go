// Package mock is a scripted [llm.Provider] for tests.
//
// Replies come from, in order of precedence: the queued Errs, CompleteErr,
// the Responses script, then CompleteResponse. The last scripted response
// repeats once the script runs out, so a one-line script answers forever.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/werewolf/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Call is one recorded Complete invocation.
type Call struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider replays a script. The zero value answers every call with a nil
// response and no error.
type Provider struct {
	Responses        []string
	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	// Errs fail successive calls before the script is consulted. A nil
	// entry lets that call through.
	Errs []error

	ModelCapabilities llm.ModelCapabilities

	mu    sync.Mutex
	calls []Call
	next  int
}

// Complete implements [llm.Provider].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Ctx: ctx, Req: req})

	if len(p.Errs) > 0 {
		err := p.Errs[0]
		p.Errs = p.Errs[1:]
		if err != nil {
			return nil, err
		}
	}
	switch {
	case p.CompleteErr != nil:
		return nil, p.CompleteErr
	case len(p.Responses) > 0:
		i := min(p.next, len(p.Responses)-1)
		p.next++
		return &llm.CompletionResponse{Content: p.Responses[i]}, nil
	}
	return p.CompleteResponse, nil
}

// Capabilities implements [llm.Provider].
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return p.ModelCapabilities
}

// Calls returns a snapshot of the recorded calls.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}
