package audio

import (
	"context"
	"time"

	"github.com/MrWong99/werewolf/pkg/provider/tts"
)

// Sink is where clips are played. Play blocks until the clip has finished or
// ctx is done.
type Sink interface {
	Play(ctx context.Context, clip tts.Audio, speed float64) error
}

// PacedSink is a headless sink: it plays nothing and waits as long as the clip
// would take at the given speed, multiplied by Scale. A zero Scale means real
// time.
type PacedSink struct {
	Scale float64
}

var _ Sink = PacedSink{}

// Play implements [Sink].
func (s PacedSink) Play(ctx context.Context, clip tts.Audio, speed float64) error {
	if speed <= 0 {
		speed = 1
	}
	scale := s.Scale
	if scale <= 0 {
		scale = 1
	}
	d := time.Duration(float64(clip.Duration()) * scale / speed)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SinkFunc adapts a function to the [Sink] interface.
type SinkFunc func(ctx context.Context, clip tts.Audio, speed float64) error

// Play calls f.
func (f SinkFunc) Play(ctx context.Context, clip tts.Audio, speed float64) error {
	return f(ctx, clip, speed)
}
