// Package debate runs the two-person podcast debate: a narrator, a host and a
// guest talk through a topic in four stages (opening, alternating rounds,
// closing, review). It records the same log, timeline and archive a werewolf
// game does, so the theater can replay it.
package debate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/werewolf/internal/agent"
	"github.com/MrWong99/werewolf/internal/archive"
	"github.com/MrWong99/werewolf/internal/game"
	"github.com/MrWong99/werewolf/internal/observe"
	"github.com/MrWong99/werewolf/pkg/audio"
	"github.com/MrWong99/werewolf/pkg/provider/llm"
	"github.com/MrWong99/werewolf/pkg/provider/tts"
)

// Debate stages. They share the log's Phase field with the werewolf phases.
const (
	PhaseOpening game.Phase = "DEBATE_OPENING"
	PhaseRounds  game.Phase = "DEBATE_ROUNDS"
	PhaseClosing game.Phase = "DEBATE_CLOSING"
	PhaseReview  game.Phase = "DEBATE_REVIEW"
)

// Seats of the two speakers.
const (
	HostSeat  = 1
	GuestSeat = 2
)

// NarratorName is the display name of narrator timeline events.
const NarratorName = "旁白"

const silence = "（沉默）"

// Participant is one speaker.
type Participant struct {
	game.Actor

	// Stance is the position the speaker argues.
	Stance string
}

// Config describes one debate.
type Config struct {
	Topic  string
	Rounds int
	Host   Participant
	Guest  Participant
}

// Validate reports every problem with c.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Topic) == "" {
		errs = append(errs, errors.New("debate: topic is required"))
	}
	if c.Rounds < 1 {
		errs = append(errs, fmt.Errorf("debate: rounds must be at least 1, got %d", c.Rounds))
	}
	if c.Host.Name == "" || c.Guest.Name == "" {
		errs = append(errs, errors.New("debate: host and guest need names"))
	}
	return errors.Join(errs...)
}

// Generator produces one reply. [*agent.Generator] satisfies it.
type Generator interface {
	Generate(ctx context.Context, messages []llm.Message, cfg agent.ModelConfig) string
}

// Debate runs one debate. It is not safe for concurrent use.
type Debate struct {
	cfg      Config
	gen      Generator
	audio    audio.Service
	archives archive.Store
	metrics  *observe.Metrics
	narrator game.Voice
	delay    time.Duration
	maxTok   int

	ids   *game.IDGenerator
	state *game.State
}

// Option is a functional option for [New].
type Option func(*Debate)

// WithAudio voices every line through svc.
func WithAudio(svc audio.Service) Option { return func(d *Debate) { d.audio = svc } }

// WithArchive persists the finished debate into s.
func WithArchive(s archive.Store) Option { return func(d *Debate) { d.archives = s } }

// WithMetrics records turns and the finished debate into m.
func WithMetrics(m *observe.Metrics) Option { return func(d *Debate) { d.metrics = m } }

// WithNarratorVoice sets the narrator's voice.
func WithNarratorVoice(v game.Voice) Option { return func(d *Debate) { d.narrator = v } }

// WithSpeechDelay sets the simulated speaking time per line without audio.
// Default: 1.5s.
func WithSpeechDelay(delay time.Duration) Option { return func(d *Debate) { d.delay = delay } }

// New prepares a debate. cfg must validate.
func New(cfg Config, gen Generator, opts ...Option) (*Debate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if gen == nil {
		return nil, errors.New("debate: generator is required")
	}
	d := &Debate{
		cfg:    cfg,
		gen:    gen,
		delay:  1500 * time.Millisecond,
		maxTok: 400,
		ids:    game.NewIDGenerator(),
	}
	for _, o := range opts {
		o(d)
	}
	d.state = game.NewState([]game.Player{
		{Seat: HostSeat, Status: game.StatusAlive, Actor: cfg.Host.Actor},
		{Seat: GuestSeat, Status: game.StatusAlive, Actor: cfg.Guest.Actor},
	})
	d.state.Composition = nil
	return d, nil
}

// ID returns the debate's archive id.
func (d *Debate) ID() string { return d.state.ID }

// Run plays the whole debate and returns its archive. The archive is saved
// when a store is configured; a failed save is logged, not returned.
func (d *Debate) Run(ctx context.Context) (game.Archive, error) {
	ctx, span := observe.StartSpan(ctx, "debate.run", trace.WithAttributes(
		attribute.String("debate.id", d.state.ID),
		attribute.Int("debate.rounds", d.cfg.Rounds),
	))
	defer span.End()
	log := observe.Logger(ctx)
	log.Info("debate started", "id", d.state.ID, "topic", d.cfg.Topic)

	host, guest := d.cfg.Host, d.cfg.Guest

	d.state.Phase = PhaseOpening
	d.say(ctx, fmt.Sprintf("欢迎收听本期节目。今天的话题是：%s。主持人是%s，嘉宾是%s。", d.cfg.Topic, host.Name, guest.Name))
	if err := d.turn(ctx, HostSeat, "请做开场陈述，介绍话题并亮明你的观点。"); err != nil {
		return game.Archive{}, err
	}
	if err := d.turn(ctx, GuestSeat, "请做开场陈述，亮明你的观点。"); err != nil {
		return game.Archive{}, err
	}

	d.state.Phase = PhaseRounds
	for r := 1; r <= d.cfg.Rounds; r++ {
		d.state.Turn = r
		d.say(ctx, fmt.Sprintf("第%d轮交锋。", r))
		if err := d.turn(ctx, HostSeat, "请回应对方刚才的观点，并提出新的论据。"); err != nil {
			return game.Archive{}, err
		}
		if err := d.turn(ctx, GuestSeat, "请回应对方刚才的观点，并提出新的论据。"); err != nil {
			return game.Archive{}, err
		}
	}

	d.state.Phase = PhaseClosing
	d.say(ctx, "请双方做总结陈词。")
	if err := d.turn(ctx, GuestSeat, "请做总结陈词。"); err != nil {
		return game.Archive{}, err
	}
	if err := d.turn(ctx, HostSeat, "请做总结陈词，并感谢嘉宾。"); err != nil {
		return game.Archive{}, err
	}

	d.state.Phase = PhaseReview
	d.say(ctx, "本期节目到此结束，感谢收听。")

	a := game.NewArchive(d.state)
	a.Mode = game.ModeDebate
	a.Title = d.cfg.Topic
	a.Turns = d.cfg.Rounds
	if d.archives != nil {
		if err := d.archives.Save(ctx, a); err != nil {
			slog.Error("debate: archive save failed", "id", a.ID, "err", err)
		}
	}
	if d.metrics != nil {
		d.metrics.RecordGameFinished(ctx, game.ModeDebate, "")
	}
	log.Info("debate finished", "id", a.ID, "entries", len(a.Log))
	return a, nil
}

// turn has seat speak once. A failed generation is logged as silence.
func (d *Debate) turn(ctx context.Context, seat int, task string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := d.participant(seat)
	start := time.Now()
	reply := d.gen.Generate(ctx, d.messages(p, task), agent.ModelConfig{
		Model:       p.Model,
		Temperature: p.Temperature,
		MaxTokens:   d.maxTok,
	})
	if err := ctx.Err(); err != nil {
		return err
	}

	outcome := observe.OutcomeOK
	content := cleanReply(reply, p.Name)
	silent := false
	if reply == agent.GenerationFailed || content == "" {
		outcome = observe.OutcomeFallback
		content, silent = silence, true
		observe.Logger(ctx).Warn("debate turn produced no speech", "speaker", p.Name, "phase", d.state.Phase)
	}
	if d.metrics != nil {
		d.metrics.RecordDecision(ctx, "debate_"+strings.ToLower(strings.TrimPrefix(string(d.state.Phase), "DEBATE_")), outcome, time.Since(start).Seconds())
	}
	d.record(ctx, game.Entry{Phase: d.state.Phase, Speaker: seat, Content: content, Silent: silent})
	return nil
}

func (d *Debate) participant(seat int) Participant {
	if seat == HostSeat {
		return d.cfg.Host
	}
	return d.cfg.Guest
}

func (d *Debate) messages(p Participant, task string) []llm.Message {
	var sys strings.Builder
	fmt.Fprintf(&sys, "你是%s。", p.Name)
	if p.Personality != "" {
		fmt.Fprintf(&sys, "你的性格：%s。", p.Personality)
	}
	fmt.Fprintf(&sys, "你正在录制一期关于「%s」的双人播客辩论。", d.cfg.Topic)
	if p.Stance != "" {
		fmt.Fprintf(&sys, "你的立场：%s。", p.Stance)
	}
	sys.WriteString("请用自然的口语化中文发言，每次不超过150字，只输出你要说的话。")

	var user strings.Builder
	if len(d.state.Log) > 0 {
		user.WriteString("到目前为止的对话：\n")
		for _, e := range d.state.Log {
			if e.Silent {
				continue
			}
			name := NarratorName
			if e.Speaker != 0 {
				name = d.participant(e.Speaker).Name
			}
			fmt.Fprintf(&user, "%s：%s\n", name, e.Content)
		}
		user.WriteString("\n")
	}
	user.WriteString(task)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: sys.String()},
		{Role: llm.RoleUser, Content: user.String()},
	}
}

// cleanReply strips a leading "name：" the model may echo.
func cleanReply(reply, name string) string {
	s := strings.TrimSpace(reply)
	for _, sep := range []string{"：", ":"} {
		s = strings.TrimPrefix(s, name+sep)
	}
	return strings.TrimSpace(s)
}

func (d *Debate) say(ctx context.Context, text string) {
	d.record(ctx, game.Entry{Phase: d.state.Phase, Content: text, IsSystem: true})
}

// record stamps entry, appends it with its timeline event and voices it.
func (d *Debate) record(ctx context.Context, entry game.Entry) {
	entry.ID = d.ids.Next()
	entry.Turn = d.state.Turn
	entry.Timestamp = time.Now()
	d.state.Append(entry)
	if entry.Silent {
		return
	}

	kind, name, voice := game.SpeakerNarrator, NarratorName, d.narrator
	if entry.Speaker != 0 {
		p := d.participant(entry.Speaker)
		kind, name, voice = game.SpeakerPlayer, p.Name, p.Voice
	}
	tv := tts.Voice{Provider: voice.Provider, ID: voice.ID, Speed: voice.Speed}
	ev := game.TimelineEvent{
		ID:       entry.ID,
		Kind:     kind,
		Name:     name,
		Text:     entry.Content,
		Voice:    voice,
		CacheKey: audio.CacheKey(entry.Content, tv),
	}
	d.state.AppendTimeline(ev)

	if d.audio == nil {
		sleep(ctx, d.delay)
		return
	}
	d.audio.PlayOrGenerate(ctx, audio.PlayRequest{Text: ev.Text, Voice: tv, CacheKey: ev.CacheKey, Speed: voice.Speed})
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
