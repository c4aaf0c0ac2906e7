package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/werewolf/pkg/audio/cache"
	"github.com/MrWong99/werewolf/pkg/provider/tts"
)

// DefaultSynthesisTimeout bounds one synthesis call. Synthesis runs detached
// from the caller's context so a clip shared by a prefetch and a playback is
// not lost when one of them is cancelled.
const DefaultSynthesisTimeout = 60 * time.Second

// Player is the [Service] implementation. It is safe for concurrent use.
type Player struct {
	providers map[string]tts.Provider
	fallback  tts.Provider
	store     cache.Store
	sink      Sink
	format    Format
	timeout   time.Duration
	observe   func(provider string, d time.Duration, err error)

	flight singleflight.Group

	// gen is bumped by every PlayOrGenerate and Stop. A playback only starts
	// or keeps playing while the generation it was issued under is current.
	gen     atomic.Uint64
	mu      sync.Mutex
	current uint64
	cancel  context.CancelFunc
}

var _ Service = (*Player)(nil)

// PlayerOption is a functional option for [NewPlayer].
type PlayerOption func(*Player)

// WithProvider registers a TTS provider under name. Voices name their
// provider; the first provider registered also serves voices that name none.
func WithProvider(name string, p tts.Provider) PlayerOption {
	return func(pl *Player) {
		pl.providers[name] = p
		if pl.fallback == nil {
			pl.fallback = p
		}
	}
}

// WithStore sets the clip cache. Default: an in-memory LRU.
func WithStore(s cache.Store) PlayerOption {
	return func(pl *Player) { pl.store = s }
}

// WithSink sets the playback sink. Default: a real-time [PacedSink].
func WithSink(s Sink) PlayerOption {
	return func(pl *Player) { pl.sink = s }
}

// WithFormat normalises every synthesised clip to f before caching.
func WithFormat(f Format) PlayerOption {
	return func(pl *Player) { pl.format = f }
}

// WithSynthesisTimeout overrides [DefaultSynthesisTimeout].
func WithSynthesisTimeout(d time.Duration) PlayerOption {
	return func(pl *Player) { pl.timeout = d }
}

// WithSynthesisObserver registers a callback invoked after every synthesis
// call with its latency and error. Use it to feed metrics.
func WithSynthesisObserver(fn func(provider string, d time.Duration, err error)) PlayerOption {
	return func(pl *Player) { pl.observe = fn }
}

// NewPlayer returns a Player. At least one provider must be registered for
// synthesis to succeed; cached clips play without one.
func NewPlayer(opts ...PlayerOption) *Player {
	p := &Player{
		providers: make(map[string]tts.Provider),
		timeout:   DefaultSynthesisTimeout,
		sink:      PacedSink{},
	}
	for _, o := range opts {
		o(p)
	}
	if p.store == nil {
		p.store = cache.NewMemory(0)
	}
	return p
}

// Prefetch implements [Service].
func (p *Player) Prefetch(ctx context.Context, text string, voice tts.Voice, key string) PrefetchResult {
	if key == "" {
		key = CacheKey(text, voice)
	}
	_, res, err := p.load(ctx, text, voice, key)
	if err != nil {
		slog.Debug("audio: prefetch failed", "key", key, "err", err)
		return Failed
	}
	return res
}

// PlayOrGenerate implements [Service].
func (p *Player) PlayOrGenerate(ctx context.Context, req PlayRequest) {
	if req.OnEnd != nil {
		defer req.OnEnd()
	}

	playCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	my := p.gen.Add(1)
	if p.cancel != nil {
		p.cancel()
	}
	p.current, p.cancel = my, cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		if p.current == my {
			p.cancel = nil
		}
		p.mu.Unlock()
		cancel()
	}()

	key := req.CacheKey
	if key == "" {
		key = CacheKey(req.Text, req.Voice)
	}
	clip, _, err := p.load(playCtx, req.Text, req.Voice, key)
	if err != nil {
		if playCtx.Err() == nil {
			slog.Warn("audio: playback skipped", "key", key, "err", err)
		}
		return
	}
	if p.gen.Load() != my {
		return
	}

	if req.OnStart != nil {
		req.OnStart()
	}
	speed := req.Speed
	if speed <= 0 {
		speed = 1
	}
	if err := p.sink.Play(playCtx, clip, speed); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("audio: sink failed", "key", key, "err", err)
	}
}

// Stop implements [Service].
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen.Add(1)
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// CheckCacheStatus implements [Service].
func (p *Player) CheckCacheStatus(ctx context.Context, keys []string) int {
	n := 0
	for _, k := range keys {
		ok, err := p.store.Has(ctx, k)
		if err != nil {
			slog.Debug("audio: cache lookup failed", "key", k, "err", err)
			continue
		}
		if ok {
			n++
		}
	}
	return n
}

// load returns the clip for key from the cache, or synthesises and caches it.
func (p *Player) load(ctx context.Context, text string, voice tts.Voice, key string) (tts.Audio, PrefetchResult, error) {
	if data, err := p.store.Get(ctx, key); err == nil {
		clip, err := DecodeWAV(data)
		if err == nil {
			return clip, Cached, nil
		}
		slog.Warn("audio: corrupt cache entry, resynthesising", "key", key, "err", err)
	} else if !errors.Is(err, cache.ErrMiss) {
		slog.Warn("audio: cache read failed", "key", key, "err", err)
	}

	ch := p.flight.DoChan(key, func() (any, error) {
		return p.synthesize(context.WithoutCancel(ctx), text, voice, key)
	})
	select {
	case <-ctx.Done():
		return tts.Audio{}, Failed, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return tts.Audio{}, Failed, res.Err
		}
		return res.Val.(tts.Audio), Downloaded, nil
	}
}

func (p *Player) synthesize(ctx context.Context, text string, voice tts.Voice, key string) (tts.Audio, error) {
	prov, ok := p.providers[voice.Provider]
	if !ok {
		prov = p.fallback
	}
	if prov == nil {
		return tts.Audio{}, fmt.Errorf("audio: no tts provider for voice %q", voice.Provider)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	start := time.Now()
	clip, err := prov.Synthesize(ctx, text, voice)
	if p.observe != nil {
		p.observe(voice.Provider, time.Since(start), err)
	}
	if err != nil {
		return tts.Audio{}, fmt.Errorf("audio: synthesize: %w", err)
	}
	clip = Normalize(clip, p.format)
	if err := p.store.Put(ctx, key, EncodeWAV(clip)); err != nil {
		slog.Warn("audio: cache write failed", "key", key, "err", err)
	}
	return clip, nil
}
