// Package tts defines the Provider interface for speech synthesis backends.
//
// The game narrates every spoken line through a Provider. Lines are short (one
// speech turn), so providers return a whole clip per call; the audio service
// caches clips by content key and replays them without resynthesis.
//
// Implementors must be safe for concurrent use.
package tts

import (
	"context"
	"time"
)

// Voice selects how a line is spoken.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider names the backend that owns ID (e.g., "elevenlabs", "coqui").
	Provider string

	// Speed is a playback rate multiplier. Zero means 1.0.
	Speed float64

	// Metadata carries provider-specific labels (accent, gender, model).
	Metadata map[string]string
}

// Audio is a synthesised clip of signed 16-bit little-endian PCM.
type Audio struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Duration is the playback length of the clip at normal speed.
func (a Audio) Duration() time.Duration {
	if a.SampleRate <= 0 || a.Channels <= 0 {
		return 0
	}
	samples := len(a.Data) / (2 * a.Channels)
	return time.Duration(samples) * time.Second / time.Duration(a.SampleRate)
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with voice and returns the complete clip.
	// It must return promptly when ctx is cancelled.
	Synthesize(ctx context.Context, text string, voice Voice) (Audio, error)

	// ListVoices returns the voices available to the configured account or
	// server.
	ListVoices(ctx context.Context) ([]Voice, error)
}
