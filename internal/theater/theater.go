// Package theater replays archived games through the audio service.
//
// A replay walks the archived log in order. Phase and turn tracking, the
// replayed log and the death statuses are updated for every entry whether or
// not it is visible; only entries visible under the current perspective are
// voiced, everything else is fast-forwarded. Deaths are re-derived from the
// entries themselves rather than read from the archived players, so the same
// archive can be watched from any perspective.
//
// The perspective is read before every entry, so [Theater.SetPerspective]
// called mid-replay takes effect from the next entry on.
package theater

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/werewolf/internal/game"
	"github.com/MrWong99/werewolf/internal/observe"
	"github.com/MrWong99/werewolf/pkg/audio"
	"github.com/MrWong99/werewolf/pkg/provider/tts"
)

// ErrAlreadyRunning is returned by Replay while another replay is playing on
// the same theater.
var ErrAlreadyRunning = errors.New("theater: replay already running")

// Pacing controls the waits between replayed entries.
type Pacing struct {
	// HiddenDelay is the fast-forward pause for entries the perspective hides.
	HiddenDelay time.Duration

	// SpeechDelay stands in for playback when no audio service is set.
	SpeechDelay time.Duration

	// TextDelay is the pause for visible entries that carry no audio.
	TextDelay time.Duration
}

// DefaultPacing is used when no pacing option is given.
var DefaultPacing = Pacing{
	HiddenDelay: 50 * time.Millisecond,
	SpeechDelay: 1500 * time.Millisecond,
	TextDelay:   300 * time.Millisecond,
}

// Frame is handed to the observer for every replayed entry and again when a
// voiced entry starts and stops speaking.
type Frame struct {
	Index    int
	Entry    game.Entry
	Visible  bool
	Speaking bool
}

// Pauser is implemented by a live engine that must hold still while a replay
// uses the audio output.
type Pauser interface {
	SetReplaying(on bool)
}

// Result is the outcome of one replay.
type Result struct {
	// Log holds every replayed entry once, in archive order.
	Log []game.Entry

	// Visible holds the entries that were visible when they were replayed.
	Visible []game.Entry

	// Statuses maps every seat to its derived status at the end of the replay.
	Statuses map[int]game.Status

	Phase game.Phase
	Turn  int

	// Played counts the timeline events that were voiced.
	Played int
}

// Theater replays archives. It is safe for concurrent use, but runs one
// replay at a time.
type Theater struct {
	audio    audio.Service
	pacing   Pacing
	observer func(Frame)
	pauser   Pauser
	metrics  *observe.Metrics

	perspective atomic.Pointer[game.Perspective]
	running     atomic.Bool
}

// Option is a functional option for [New].
type Option func(*Theater)

// WithPerspective sets the initial perspective. Default: GOD.
func WithPerspective(p game.Perspective) Option {
	return func(t *Theater) { t.perspective.Store(&p) }
}

// WithPacing overrides [DefaultPacing].
func WithPacing(p Pacing) Option {
	return func(t *Theater) { t.pacing = p }
}

// WithObserver registers fn to receive a [Frame] per replayed entry. fn must
// not block.
func WithObserver(fn func(Frame)) Option {
	return func(t *Theater) { t.observer = fn }
}

// WithMetrics records prefetch results into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(t *Theater) { t.metrics = m }
}

// WithPauser pauses p for the duration of every replay.
func WithPauser(p Pauser) Option {
	return func(t *Theater) { t.pauser = p }
}

// New returns a theater voicing through svc. A nil svc replays silently,
// waiting [Pacing.SpeechDelay] per voiced line.
func New(svc audio.Service, opts ...Option) *Theater {
	t := &Theater{audio: svc, pacing: DefaultPacing}
	god := game.PerspectiveGod
	t.perspective.Store(&god)
	for _, o := range opts {
		o(t)
	}
	return t
}

// SetPerspective switches the lens from the next replayed entry on.
func (t *Theater) SetPerspective(p game.Perspective) { t.perspective.Store(&p) }

// Perspective returns the current lens.
func (t *Theater) Perspective() game.Perspective { return *t.perspective.Load() }

// Readiness reports how many of the archive's timeline events already have
// cached audio.
func (t *Theater) Readiness(ctx context.Context, a game.Archive) (cached, total int) {
	total = len(a.Timeline)
	if t.audio == nil || total == 0 {
		return 0, total
	}
	keys := make([]string, len(a.Timeline))
	for i, ev := range a.Timeline {
		keys[i] = ev.CacheKey
	}
	return t.audio.CheckCacheStatus(ctx, keys), total
}

// Replay plays a from start to end. Cancelling ctx stops the current clip and
// returns the partial result with ctx.Err().
func (t *Theater) Replay(ctx context.Context, a game.Archive) (Result, error) {
	if !t.running.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyRunning
	}
	defer t.running.Store(false)

	if t.pauser != nil {
		t.pauser.SetReplaying(true)
		defer t.pauser.SetReplaying(false)
	}

	ctx, span := observe.StartSpan(ctx, "theater.replay", trace.WithAttributes(
		attribute.String("game.id", a.ID),
		attribute.Int("log.entries", len(a.Log)),
	))
	defer span.End()
	log := observe.Logger(ctx)
	log.Info("replay started", "game", a.ID, "perspective", t.Perspective(), "entries", len(a.Log))

	var prefetches sync.WaitGroup
	defer prefetches.Wait()

	res := Result{Statuses: make(map[int]game.Status, len(a.Players))}
	for _, p := range a.Players {
		res.Statuses[p.Seat] = game.StatusAlive
	}
	seen := make(map[string]bool, len(a.Log))
	cursor := 0

	for i, entry := range a.Log {
		if err := ctx.Err(); err != nil {
			return t.abort(ctx, res, err)
		}

		res.Phase, res.Turn = entry.Phase, entry.Turn
		if entry.ID != "" {
			if seen[entry.ID] {
				continue
			}
			seen[entry.ID] = true
		}
		res.Log = append(res.Log, entry)
		for _, d := range DeriveDeaths(entry) {
			if res.Statuses[d.Seat] == game.StatusAlive {
				res.Statuses[d.Seat] = d.Status
			}
		}

		ev, next := findEvent(a.Timeline, cursor, entry.ID)
		if ev != nil {
			cursor = next
		}

		persp := t.Perspective()
		visible := game.IsVisible(entry, persp, a.Players)
		t.emit(Frame{Index: i, Entry: entry, Visible: visible})
		if !visible {
			sleep(ctx, t.pacing.HiddenDelay)
			continue
		}
		res.Visible = append(res.Visible, entry)

		if ev == nil {
			sleep(ctx, t.pacing.TextDelay)
			continue
		}
		if t.audio != nil {
			if nx := nextVisibleEvent(a, i+1, cursor, persp, seen); nx != nil {
				prefetches.Go(func() {
					r := t.audio.Prefetch(ctx, nx.Text, ttsVoice(nx.Voice), nx.CacheKey)
					log.Debug("replay prefetch", "event", nx.ID, "result", r)
					if t.metrics != nil {
						t.metrics.RecordPrefetch(ctx, string(r))
					}
				})
			}
		}
		t.play(ctx, i, entry, *ev)
		if err := ctx.Err(); err != nil {
			return t.abort(ctx, res, err)
		}
		res.Played++
	}

	log.Info("replay finished", "game", a.ID, "visible", len(res.Visible), "played", res.Played)
	return res, nil
}

func (t *Theater) abort(ctx context.Context, res Result, err error) (Result, error) {
	if t.audio != nil {
		t.audio.Stop()
	}
	observe.Logger(ctx).Info("replay aborted", "replayed", len(res.Log), "err", err)
	return res, err
}

func (t *Theater) play(ctx context.Context, idx int, entry game.Entry, ev game.TimelineEvent) {
	start := func() { t.emit(Frame{Index: idx, Entry: entry, Visible: true, Speaking: true}) }
	end := func() { t.emit(Frame{Index: idx, Entry: entry, Visible: true}) }
	if t.audio == nil {
		start()
		sleep(ctx, t.pacing.SpeechDelay)
		end()
		return
	}
	t.audio.PlayOrGenerate(ctx, audio.PlayRequest{
		Text:     ev.Text,
		Voice:    ttsVoice(ev.Voice),
		CacheKey: ev.CacheKey,
		Speed:    ev.Voice.Speed,
		OnStart:  start,
		OnEnd:    end,
	})
}

func (t *Theater) emit(f Frame) {
	if t.observer != nil {
		t.observer(f)
	}
}

// findEvent scans timeline from cursor for the event with id and returns it
// with the cursor position after it.
func findEvent(timeline []game.TimelineEvent, cursor int, id string) (*game.TimelineEvent, int) {
	if id == "" {
		return nil, cursor
	}
	for i := cursor; i < len(timeline); i++ {
		if timeline[i].ID == id {
			return &timeline[i], i + 1
		}
	}
	return nil, cursor
}

// nextVisibleEvent looks ahead from log index from for the next entry visible
// under p that has audio.
func nextVisibleEvent(a game.Archive, from, cursor int, p game.Perspective, seen map[string]bool) *game.TimelineEvent {
	for _, entry := range a.Log[from:] {
		if entry.ID != "" && seen[entry.ID] {
			continue
		}
		ev, next := findEvent(a.Timeline, cursor, entry.ID)
		if ev == nil {
			continue
		}
		if game.IsVisible(entry, p, a.Players) {
			return ev
		}
		cursor = next
	}
	return nil
}

func ttsVoice(v game.Voice) tts.Voice {
	return tts.Voice{Provider: v.Provider, ID: v.ID, Speed: v.Speed}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
