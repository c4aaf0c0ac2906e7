package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics binds fresh instruments to a manual reader.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// counterValue sums the data points of a counter whose key attribute equals
// value.
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is %T, want a sum", name, met.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func histogramCount(t *testing.T, rm metricdata.ResourceMetrics, name string) uint64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric %q is %T, want a histogram", name, met.Data)
	}
	var n uint64
	for _, dp := range hist.DataPoints {
		n += dp.Count
	}
	return n
}

func TestMetrics_Recorders(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDecision(ctx, "vote", OutcomeOK, 0.2)
	m.RecordDecision(ctx, "vote", OutcomeOK, 0.3)
	m.RecordDecision(ctx, "wolf_kill", OutcomeFallback, 3)
	m.RecordDeath(ctx, "DEAD_NIGHT")
	m.RecordDeath(ctx, "DEAD_NIGHT")
	m.RecordDeath(ctx, "DEAD_SHOOT")
	m.RecordGameFinished(ctx, "werewolf", "WOLF_WIN")
	m.RecordProviderError(ctx, "openai", "llm")
	m.RecordPrefetch(ctx, "CACHED")
	m.RecordPrefetch(ctx, "DOWNLOADED")
	m.RecordPrefetch(ctx, "CACHED")

	rm := collect(t, reader)

	tests := []struct {
		metric, key, value string
		want               int64
	}{
		{"werewolf.decisions", "outcome", OutcomeOK, 2},
		{"werewolf.decisions", "outcome", OutcomeFallback, 1},
		{"werewolf.decisions", "kind", "vote", 2},
		{"werewolf.deaths", "status", "DEAD_NIGHT", 2},
		{"werewolf.deaths", "status", "DEAD_SHOOT", 1},
		{"werewolf.games.finished", "winner", "WOLF_WIN", 1},
		{"werewolf.games.finished", "mode", "werewolf", 1},
		{"werewolf.provider.errors", "provider", "openai", 1},
		{"werewolf.audio.prefetch", "result", "CACHED", 2},
		{"werewolf.audio.prefetch", "result", "DOWNLOADED", 1},
	}
	for _, tt := range tests {
		t.Run(tt.metric+"/"+tt.value, func(t *testing.T) {
			if got := counterValue(t, rm, tt.metric, tt.key, tt.value); got != tt.want {
				t.Errorf("%s{%s=%q} = %d, want %d", tt.metric, tt.key, tt.value, got, tt.want)
			}
		})
	}

	if got := histogramCount(t, rm, "werewolf.decision.duration"); got != 3 {
		t.Errorf("decision latency samples = %d, want 3", got)
	}
}

func TestMetrics_TTSDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.TTSDuration.Record(ctx, 0.4)
	m.TTSDuration.Record(ctx, 1.2)

	if got := histogramCount(t, collect(t, reader), "werewolf.tts.duration"); got != 2 {
		t.Errorf("samples = %d, want 2", got)
	}
}

func TestMetrics_Gauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveGames.Add(ctx, 1)
	m.ActiveGames.Add(ctx, 1)
	m.ActiveGames.Add(ctx, -1)
	m.ActiveSpectators.Add(ctx, 3)

	rm := collect(t, reader)
	for name, want := range map[string]int64{
		"werewolf.active_games":      1,
		"werewolf.active_spectators": 3,
	} {
		met := findMetric(rm, name)
		if met == nil {
			t.Errorf("metric %q not found", name)
			continue
		}
		sum := met.Data.(metricdata.Sum[int64])
		if sum.IsMonotonic {
			t.Errorf("%s is monotonic, want an up-down counter", name)
		}
		if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != want {
			t.Errorf("%s points = %+v, want one point of %d", name, sum.DataPoints, want)
		}
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different pointers")
	}
}
