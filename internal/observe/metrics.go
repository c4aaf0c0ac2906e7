// Package observe carries the werewolf engine's telemetry: OpenTelemetry
// instruments for game and provider events, span helpers, trace-aware
// logging and the HTTP middleware of the spectator server.
//
// [Init] builds a process-wide pipeline whose metrics are scraped from a
// private Prometheus registry. Code that only needs instruments can use
// [DefaultMetrics], which binds to whatever global meter provider is
// installed; tests build their own with [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every werewolf instrument.
const meterName = "github.com/MrWong99/werewolf"

// Decision outcomes recorded by [Metrics.RecordDecision].
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeHuman    = "human"
)

// Metrics groups the instruments the engine records into. The OTel types are
// safe for concurrent use.
type Metrics struct {
	// DecisionDuration is the latency of one agent decision including
	// retries, by "kind".
	DecisionDuration metric.Float64Histogram

	// TTSDuration is the latency of one synthesis call, by "provider".
	TTSDuration metric.Float64Histogram

	// HTTPRequestDuration is the spectator API latency by "method", "route"
	// and "status".
	HTTPRequestDuration metric.Float64Histogram

	// Decisions counts decisions by "kind" and "outcome".
	Decisions metric.Int64Counter

	// GenerationRetries counts retried model calls.
	GenerationRetries metric.Int64Counter

	// Deaths counts status changes by "status".
	Deaths metric.Int64Counter

	// GamesFinished counts concluded games and debates by "mode" and "winner".
	GamesFinished metric.Int64Counter

	// ProviderErrors counts failures by "provider" and "kind".
	ProviderErrors metric.Int64Counter

	// AudioPrefetch counts replay prefetches by "result".
	AudioPrefetch metric.Int64Counter

	// ActiveGames is the number of games between SETUP and GAME_REVIEW.
	ActiveGames metric.Int64UpDownCounter

	// ActiveSpectators is the number of connected live-feed clients.
	ActiveSpectators metric.Int64UpDownCounter
}

// latencyBuckets, in seconds, span a cached clip up to a slow model call.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40}

// instruments creates instruments on one meter and keeps the first error of
// each so NewMetrics can report them all at once.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (b *instruments) seconds(name, desc string, buckets ...float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := b.meter.Float64Histogram(name, opts...)
	b.errs = append(b.errs, err)
	return h
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.errs = append(b.errs, err)
	return c
}

func (b *instruments) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.errs = append(b.errs, err)
	return g
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &instruments{meter: mp.Meter(meterName)}
	m := &Metrics{
		DecisionDuration:    b.seconds("werewolf.decision.duration", "Latency of one agent decision including retries.", latencyBuckets...),
		TTSDuration:         b.seconds("werewolf.tts.duration", "Latency of text-to-speech synthesis.", latencyBuckets...),
		HTTPRequestDuration: b.seconds("werewolf.http.request.duration", "Spectator API latency by method, route and status."),

		Decisions:         b.counter("werewolf.decisions", "Agent decisions by kind and outcome."),
		GenerationRetries: b.counter("werewolf.generation.retries", "Retried text-generation attempts."),
		Deaths:            b.counter("werewolf.deaths", "Player deaths by status."),
		GamesFinished:     b.counter("werewolf.games.finished", "Concluded games by mode and winner."),
		ProviderErrors:    b.counter("werewolf.provider.errors", "Provider errors by provider and kind."),
		AudioPrefetch:     b.counter("werewolf.audio.prefetch", "Replay prefetches by result."),

		ActiveGames:      b.gauge("werewolf.active_games", "Games currently in progress."),
		ActiveSpectators: b.gauge("werewolf.active_spectators", "Connected live-feed clients."),
	}
	if err := errors.Join(b.errs...); err != nil {
		return nil, err
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns instruments bound to the global meter provider. The
// global provider delegates, so instruments created before [Init] still
// reach its exporter. It panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: default metrics: " + err.Error())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordDecision counts one agent decision and records its latency.
func (m *Metrics) RecordDecision(ctx context.Context, kind, outcome string, seconds float64) {
	m.Decisions.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind), Attr("outcome", outcome)))
	m.DecisionDuration.Record(ctx, seconds, metric.WithAttributes(Attr("kind", kind)))
}

// RecordDeath counts a player leaving the table with status.
func (m *Metrics) RecordDeath(ctx context.Context, status string) {
	m.Deaths.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}

// RecordGameFinished counts a concluded game.
func (m *Metrics) RecordGameFinished(ctx context.Context, mode, winner string) {
	m.GamesFinished.Add(ctx, 1, metric.WithAttributes(Attr("mode", mode), Attr("winner", winner)))
}

// RecordProviderError counts a failed provider call.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("kind", kind)))
}

// RecordPrefetch counts a replay prefetch by where the clip came from.
func (m *Metrics) RecordPrefetch(ctx context.Context, result string) {
	m.AudioPrefetch.Add(ctx, 1, metric.WithAttributes(Attr("result", result)))
}
