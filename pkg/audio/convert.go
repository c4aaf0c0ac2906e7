package audio

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/werewolf/pkg/provider/tts"
)

// Format describes the sample rate and channel count a sink expects.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}

// Normalize converts a 16-bit little-endian PCM clip to target. Zero fields in
// target keep the clip's own value. Clips with a truncated trailing sample are
// cut to whole frames first.
func Normalize(clip tts.Audio, target Format) tts.Audio {
	if target.SampleRate == 0 {
		target.SampleRate = clip.SampleRate
	}
	if target.Channels == 0 {
		target.Channels = clip.Channels
	}
	if clip.Channels <= 0 || clip.SampleRate <= 0 {
		return clip
	}
	frame := 2 * clip.Channels
	if rem := len(clip.Data) % frame; rem != 0 {
		slog.Warn("audio: dropping partial frame", "bytes", rem, "format", Format{clip.SampleRate, clip.Channels})
		clip.Data = clip.Data[:len(clip.Data)-rem]
	}
	if clip.SampleRate == target.SampleRate && clip.Channels == target.Channels {
		return clip
	}

	// Resample before remixing so a mono clip bound for stereo is resampled
	// once, not twice.
	pcm := Resample(clip.Data, clip.Channels, clip.SampleRate, target.SampleRate)
	pcm = Remix(pcm, clip.Channels, target.Channels)
	return tts.Audio{Data: pcm, SampleRate: target.SampleRate, Channels: target.Channels}
}

func sample(pcm []byte, i int) int32 {
	return int32(int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8))
}

func putSample(pcm []byte, i int, v int32) {
	v = max(-32768, min(32767, v))
	pcm[2*i] = byte(v)
	pcm[2*i+1] = byte(v >> 8)
}

// Resample converts interleaved 16-bit PCM with the given channel count from
// src to dst Hz by linear interpolation.
func Resample(pcm []byte, channels, src, dst int) []byte {
	if src <= 0 || dst <= 0 || src == dst || channels <= 0 {
		return pcm
	}
	frames := len(pcm) / (2 * channels)
	if frames == 0 {
		return pcm
	}
	outFrames := int(int64(frames) * int64(dst) / int64(src))
	out := make([]byte, outFrames*2*channels)
	ratio := float64(src) / float64(dst)

	for i := range outFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, frames-1)
		for c := range channels {
			a := float64(sample(pcm, idx*channels+c))
			b := float64(sample(pcm, next*channels+c))
			putSample(out, i*channels+c, int32(a+(b-a)*frac))
		}
	}
	return out
}

// Remix converts interleaved 16-bit PCM between channel counts. Downmixing
// averages all source channels; upmixing copies mono to every channel.
// Conversions between two multi-channel layouts first downmix to mono.
func Remix(pcm []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 {
		return pcm
	}
	frames := len(pcm) / (2 * from)
	out := make([]byte, frames*2*to)
	for f := range frames {
		var sum int32
		for c := range from {
			sum += sample(pcm, f*from+c)
		}
		mono := sum / int32(from)
		for c := range to {
			putSample(out, f*to+c, mono)
		}
	}
	return out
}
