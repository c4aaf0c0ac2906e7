package audio_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/werewolf/pkg/audio"
	"github.com/MrWong99/werewolf/pkg/audio/cache"
	"github.com/MrWong99/werewolf/pkg/provider/tts"
	ttsmock "github.com/MrWong99/werewolf/pkg/provider/tts/mock"
)

// oneSecond is a 1s mono clip at 1 kHz.
var oneSecond = tts.Audio{Data: make([]byte, 2000), SampleRate: 1000, Channels: 1}

func instantSink() audio.Sink {
	return audio.SinkFunc(func(ctx context.Context, _ tts.Audio, _ float64) error { return ctx.Err() })
}

func TestPlayer_PrefetchThenCached(t *testing.T) {
	t.Parallel()

	prov := &ttsmock.Provider{Clip: oneSecond}
	p := audio.NewPlayer(audio.WithProvider("mock", prov), audio.WithSink(instantSink()))
	ctx := context.Background()
	v := tts.Voice{Provider: "mock", ID: "narrator"}

	if got := p.Prefetch(ctx, "天黑请闭眼", v, "k1"); got != audio.Downloaded {
		t.Fatalf("first prefetch = %s, want DOWNLOADED", got)
	}
	if got := p.Prefetch(ctx, "天黑请闭眼", v, "k1"); got != audio.Cached {
		t.Fatalf("second prefetch = %s, want CACHED", got)
	}
	if n := len(prov.Calls()); n != 1 {
		t.Errorf("synthesize calls = %d, want 1", n)
	}
	if got := p.CheckCacheStatus(ctx, []string{"k1", "k2"}); got != 1 {
		t.Errorf("CheckCacheStatus = %d, want 1", got)
	}

	var started, ended atomic.Bool
	p.PlayOrGenerate(ctx, audio.PlayRequest{
		Text: "天黑请闭眼", Voice: v, CacheKey: "k1",
		OnStart: func() { started.Store(true) },
		OnEnd:   func() { ended.Store(true) },
	})
	if !started.Load() || !ended.Load() {
		t.Error("callbacks not called")
	}
	if n := len(prov.Calls()); n != 1 {
		t.Errorf("playback of a cached clip synthesised again (%d calls)", n)
	}
}

func TestPlayer_FailureResolvesSilently(t *testing.T) {
	t.Parallel()

	prov := &ttsmock.Provider{SynthesizeErr: errors.New("quota exceeded")}
	var observed atomic.Int32
	p := audio.NewPlayer(
		audio.WithProvider("mock", prov),
		audio.WithSink(instantSink()),
		audio.WithSynthesisObserver(func(_ string, _ time.Duration, err error) {
			if err != nil {
				observed.Add(1)
			}
		}),
	)

	var started, ended atomic.Bool
	p.PlayOrGenerate(context.Background(), audio.PlayRequest{
		Text:    "hello",
		OnStart: func() { started.Store(true) },
		OnEnd:   func() { ended.Store(true) },
	})
	if started.Load() {
		t.Error("OnStart called for a clip that failed to render")
	}
	if !ended.Load() {
		t.Error("OnEnd not called after failure")
	}
	if got := p.Prefetch(context.Background(), "hello", tts.Voice{}, ""); got != audio.Failed {
		t.Errorf("Prefetch = %s, want FAILED", got)
	}
	if observed.Load() != 2 {
		t.Errorf("observer saw %d failures, want 2", observed.Load())
	}
}

func TestPlayer_NoProvider(t *testing.T) {
	t.Parallel()

	p := audio.NewPlayer(audio.WithSink(instantSink()))
	if got := p.Prefetch(context.Background(), "x", tts.Voice{}, "k"); got != audio.Failed {
		t.Errorf("Prefetch = %s, want FAILED", got)
	}
}

func TestPlayer_NewPlaybackSupersedesOld(t *testing.T) {
	t.Parallel()

	prov := &ttsmock.Provider{Clip: oneSecond}
	p := audio.NewPlayer(audio.WithProvider("mock", prov), audio.WithSink(audio.PacedSink{Scale: 10}))
	ctx := context.Background()

	first := make(chan struct{})
	startedFirst := make(chan struct{})
	go func() {
		defer close(first)
		p.PlayOrGenerate(ctx, audio.PlayRequest{Text: "long", OnStart: func() { close(startedFirst) }})
	}()
	<-startedFirst

	// A ten-second clip is playing; a new request must release it.
	p.PlayOrGenerate(ctx, audio.PlayRequest{Text: "short", Speed: 1000})
	select {
	case <-first:
	case <-time.After(2 * time.Second):
		t.Fatal("superseded playback never resolved")
	}
}

func TestPlayer_ConcurrentRequestsLeaveOneWinner(t *testing.T) {
	t.Parallel()

	prov := &ttsmock.Provider{Clip: oneSecond}
	p := audio.NewPlayer(audio.WithProvider("mock", prov), audio.WithSink(instantSink()))
	v := tts.Voice{Provider: "mock", ID: "narrator"}

	for round := range 50 {
		var (
			wg      sync.WaitGroup
			started atomic.Int32
			gate    = make(chan struct{})
		)
		for range 8 {
			wg.Go(func() {
				<-gate
				p.PlayOrGenerate(context.Background(), audio.PlayRequest{
					Text: "天亮了", Voice: v,
					OnStart: func() { started.Add(1) },
				})
			})
		}
		close(gate)
		wg.Wait()
		if started.Load() == 0 {
			t.Fatalf("round %d: no request played, the newest one must", round)
		}
	}
}

func TestPlayer_StopReleasesPending(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	defer close(block)
	prov := &ttsmock.Provider{Clip: oneSecond, Block: block}
	p := audio.NewPlayer(audio.WithProvider("mock", prov), audio.WithSink(instantSink()))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.PlayOrGenerate(context.Background(), audio.PlayRequest{Text: "stuck in synthesis"})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(prov.Calls()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("synthesis never started")
		}
		time.Sleep(time.Millisecond)
	}
	p.Stop()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not release the pending playback")
	}
}

func TestPlayer_ContextCancel(t *testing.T) {
	t.Parallel()

	prov := &ttsmock.Provider{Clip: oneSecond}
	p := audio.NewPlayer(audio.WithProvider("mock", prov), audio.WithSink(audio.PacedSink{Scale: 10}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	p.PlayOrGenerate(ctx, audio.PlayRequest{Text: "cut short"})
	if time.Since(start) > 2*time.Second {
		t.Error("playback ignored context cancellation")
	}
}

func TestPlayer_UsesStore(t *testing.T) {
	t.Parallel()

	store := cache.NewMemory(0)
	_ = store.Put(context.Background(), "pre", audio.EncodeWAV(oneSecond))
	prov := &ttsmock.Provider{SynthesizeErr: errors.New("should not be called")}
	p := audio.NewPlayer(audio.WithProvider("mock", prov), audio.WithStore(store), audio.WithSink(instantSink()))

	var started atomic.Bool
	p.PlayOrGenerate(context.Background(), audio.PlayRequest{Text: "x", CacheKey: "pre", OnStart: func() { started.Store(true) }})
	if !started.Load() {
		t.Error("pre-cached clip did not play")
	}
	if len(prov.Calls()) != 0 {
		t.Error("provider called for a cached clip")
	}
}

func TestPacedSink_Duration(t *testing.T) {
	t.Parallel()

	start := time.Now()
	if err := (audio.PacedSink{Scale: 0.05}).Play(context.Background(), oneSecond, 1); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if d := time.Since(start); d < 40*time.Millisecond {
		t.Errorf("played for %v, want about 50ms", d)
	}
}
