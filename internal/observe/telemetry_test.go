package observe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

// restoreGlobals puts back the providers Init replaces.
func restoreGlobals(t *testing.T) {
	t.Helper()
	mp, tp := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(mp)
		otel.SetTracerProvider(tp)
	})
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestInit_ServesOwnRegistry(t *testing.T) {
	restoreGlobals(t)
	ctx := context.Background()

	tel, err := Init(ctx, TelemetryConfig{ServiceVersion: "test", SkipRuntimeCollectors: true})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer tel.Shutdown(ctx)

	tel.Metrics().RecordGameFinished(ctx, "werewolf", "GOOD_WIN")

	body := scrape(t, tel.Handler())
	if !strings.Contains(body, "games_finished") {
		t.Errorf("scrape output lacks the finished-games counter:\n%s", body)
	}
	if !strings.Contains(body, "GOOD_WIN") {
		t.Errorf("scrape output lacks the winner label:\n%s", body)
	}
	if strings.Contains(body, "go_goroutines") {
		t.Error("runtime collectors registered despite SkipRuntimeCollectors")
	}
}

func TestInit_IndependentPipelines(t *testing.T) {
	restoreGlobals(t)
	ctx := context.Background()

	first, err := Init(ctx, TelemetryConfig{})
	if err != nil {
		t.Fatalf("first Init: %v", err)
	}
	defer first.Shutdown(ctx)

	second, err := Init(ctx, TelemetryConfig{})
	if err != nil {
		t.Fatalf("second Init: %v", err)
	}
	defer second.Shutdown(ctx)

	first.Metrics().RecordPrefetch(ctx, "FAILED")

	if body := scrape(t, second.Handler()); strings.Contains(body, "FAILED") {
		t.Error("a metric recorded on the first pipeline leaked into the second")
	}
	if body := scrape(t, first.Handler()); !strings.Contains(body, "go_goroutines") {
		t.Error("runtime collectors missing from the default registry")
	}
}
