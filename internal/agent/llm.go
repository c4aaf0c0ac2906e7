package agent

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/werewolf/internal/observe"
)

// LLMDecider is the [Decider] for AI-controlled seats. Each seat's actor
// selects the model and temperature.
type LLMDecider struct {
	gen       *Generator
	maxTokens int
	metrics   *observe.Metrics
}

// LLMOption is a functional option for [NewLLMDecider].
type LLMOption func(*LLMDecider)

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int) LLMOption {
	return func(d *LLMDecider) { d.maxTokens = n }
}

// WithMetrics records decision counts and latency into m.
func WithMetrics(m *observe.Metrics) LLMOption {
	return func(d *LLMDecider) { d.metrics = m }
}

// NewLLMDecider returns a decider backed by gen.
func NewLLMDecider(gen *Generator, opts ...LLMOption) *LLMDecider {
	d := &LLMDecider{gen: gen, maxTokens: 800}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Decide implements [Decider].
func (d *LLMDecider) Decide(ctx context.Context, req Request) Decision {
	ctx, span := observe.StartSpan(ctx, "agent.decide", trace.WithAttributes(
		attribute.String("agent.kind", string(req.Kind)),
		attribute.Int("agent.seat", req.Self.Seat),
	))
	defer span.End()

	start := time.Now()
	raw := d.gen.Generate(ctx, BuildMessages(req), ModelConfig{
		Model:       req.Self.Actor.Model,
		Temperature: req.Self.Actor.Temperature,
		MaxTokens:   d.maxTokens,
		JSON:        true,
	})
	dec := ParseDecision(raw)

	outcome := observe.OutcomeOK
	if dec.Failed {
		outcome = observe.OutcomeFallback
	}
	if d.metrics != nil {
		d.metrics.RecordDecision(ctx, string(req.Kind), outcome, time.Since(start).Seconds())
	}
	observe.Logger(ctx).Debug("agent decided",
		"seat", req.Self.Seat,
		"kind", req.Kind,
		"target", dec.Target,
		"failed", dec.Failed,
	)
	return dec
}
