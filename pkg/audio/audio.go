// Package audio voices the game. A [Service] turns text into speech through a
// TTS provider, keeps rendered clips in a keyed cache, and plays at most one
// clip at a time.
//
// Playback never fails from the caller's point of view: synthesis errors,
// sink errors, cancellation and being superseded by a newer clip all resolve
// the pending call as if the clip had finished. Starting a new playback or
// calling [Service.Stop] bumps a generation counter, which releases whatever
// was playing before.
package audio

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/MrWong99/werewolf/pkg/provider/tts"
)

// PrefetchResult reports where a prefetched clip came from.
type PrefetchResult string

const (
	Cached     PrefetchResult = "CACHED"
	Downloaded PrefetchResult = "DOWNLOADED"
	Failed     PrefetchResult = "FAILED"
)

// PlayRequest describes one clip to voice.
type PlayRequest struct {
	Text  string
	Voice tts.Voice

	// CacheKey identifies the rendered clip. Empty means [CacheKey] of Text
	// and Voice.
	CacheKey string

	// Speed scales playback; zero means the voice's own speed.
	Speed float64

	// OnStart is called once audio is about to play; OnEnd is always called
	// exactly once when the request resolves, however it resolves.
	OnStart func()
	OnEnd   func()
}

// Service is the audio boundary the engine and the theater depend on.
// Implementations must be safe for concurrent use.
type Service interface {
	// Prefetch renders and caches a clip without playing it.
	Prefetch(ctx context.Context, text string, voice tts.Voice, key string) PrefetchResult

	// PlayOrGenerate plays the cached clip for the request, synthesising it
	// first on a miss. It returns when playback ends, fails, is stopped or is
	// superseded.
	PlayOrGenerate(ctx context.Context, req PlayRequest)

	// Stop ends the current playback, if any, and resolves its pending call.
	Stop()

	// CheckCacheStatus counts how many of keys are already cached.
	CheckCacheStatus(ctx context.Context, keys []string) int
}

// CacheKey derives a stable key from everything that changes the rendered
// audio: provider, voice, speed and text.
func CacheKey(text string, voice tts.Voice) string {
	speed := voice.Speed
	if speed == 0 {
		speed = 1
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", voice.Provider, voice.ID, strconv.FormatFloat(speed, 'f', 3, 64), text)
	return hex.EncodeToString(h.Sum(nil))
}
