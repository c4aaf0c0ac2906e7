// Package mock provides an in-memory test double for [audio.Service].
//
// The mock is safe for concurrent use. It records every call so tests can
// assert on what was voiced and prefetched, and plays instantly unless a
// Block channel is set.
//
// Typical usage:
//
//	svc := &mock.Service{Cached: map[string]bool{"k1": true}}
//	svc.PlayOrGenerate(ctx, audio.PlayRequest{Text: "天黑请闭眼", CacheKey: "k1"})
//	plays := svc.Plays()
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/werewolf/pkg/audio"
	"github.com/MrWong99/werewolf/pkg/provider/tts"
)

// PrefetchCall records one Prefetch invocation.
type PrefetchCall struct {
	Text  string
	Voice tts.Voice
	Key   string
}

// Service is a mock implementation of [audio.Service].
type Service struct {
	mu sync.Mutex

	// Cached marks keys as already cached. Prefetch reports Cached for these
	// and Downloaded (adding the key) for others, unless PrefetchResult is set.
	Cached map[string]bool

	// PrefetchResult, if non-empty, is returned by every Prefetch.
	PrefetchResult audio.PrefetchResult

	// Block, if non-nil, makes PlayOrGenerate wait until it is closed, the
	// context ends or Stop is called.
	Block chan struct{}

	plays      []audio.PlayRequest
	prefetches []PrefetchCall
	stops      int
	stopCh     chan struct{}
}

var _ audio.Service = (*Service)(nil)

// Prefetch implements [audio.Service].
func (s *Service) Prefetch(_ context.Context, text string, voice tts.Voice, key string) audio.PrefetchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefetches = append(s.prefetches, PrefetchCall{Text: text, Voice: voice, Key: key})
	if s.PrefetchResult != "" {
		return s.PrefetchResult
	}
	if s.Cached[key] {
		return audio.Cached
	}
	if s.Cached == nil {
		s.Cached = make(map[string]bool)
	}
	s.Cached[key] = true
	return audio.Downloaded
}

// PlayOrGenerate implements [audio.Service]. It calls OnStart and OnEnd.
func (s *Service) PlayOrGenerate(ctx context.Context, req audio.PlayRequest) {
	s.mu.Lock()
	s.plays = append(s.plays, req)
	if s.stopCh == nil {
		s.stopCh = make(chan struct{})
	}
	block, stop := s.Block, s.stopCh
	s.mu.Unlock()

	if req.OnEnd != nil {
		defer req.OnEnd()
	}
	if req.OnStart != nil {
		req.OnStart()
	}
	if block != nil {
		select {
		case <-block:
		case <-stop:
		case <-ctx.Done():
		}
	}
}

// Stop implements [audio.Service]. It releases every blocked playback.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
}

// CheckCacheStatus implements [audio.Service].
func (s *Service) CheckCacheStatus(_ context.Context, keys []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, k := range keys {
		if s.Cached[k] {
			n++
		}
	}
	return n
}

// Plays returns a copy of every PlayOrGenerate request in call order.
func (s *Service) Plays() []audio.PlayRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audio.PlayRequest(nil), s.plays...)
}

// Prefetches returns a copy of every Prefetch call in call order.
func (s *Service) Prefetches() []PrefetchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PrefetchCall(nil), s.prefetches...)
}

// Stops returns how many times Stop was called.
func (s *Service) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}
