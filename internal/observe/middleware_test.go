package observe

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// archiveMux mimics the spectator API's routing with one parameterised route.
func archiveMux(status int) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/archives/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	})
	return mux
}

func spanAttr(s tracetest.SpanStub, key string) (attribute.Value, bool) {
	for _, a := range s.Attributes {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestMiddleware_LabelsByRoute(t *testing.T) {
	exp := installTracer(t)
	m, reader := newTestMetrics(t)
	h := Middleware(m)(archiveMux(http.StatusOK))

	for _, id := range []string{"01JAAA", "01JBBB", "01JCCC"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/archives/"+id, nil))
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	rm := collect(t, reader)
	met := findMetric(rm, "werewolf.http.request.duration")
	if met == nil {
		t.Fatal("request duration not recorded")
	}
	byRoute := map[string]uint64{}
	for _, dp := range met.Data.(metricdata.Histogram[float64]).DataPoints {
		route, _ := dp.Attributes.Value("route")
		byRoute[route.AsString()] += dp.Count
	}
	if got := byRoute["GET /api/archives/{id}"]; got != 3 {
		t.Errorf("archive route samples = %d, want 3 (by route: %v)", got, byRoute)
	}
	if got := byRoute[unmatchedRoute]; got != 1 {
		t.Errorf("unmatched samples = %d, want 1", got)
	}
	if len(byRoute) != 2 {
		t.Errorf("routes = %v, want ids folded into one route", byRoute)
	}

	spans := exp.GetSpans()
	if len(spans) != 4 {
		t.Fatalf("spans = %d, want 4", len(spans))
	}
	if spans[0].Name != "GET /api/archives/{id}" {
		t.Errorf("span name = %q, want the route pattern", spans[0].Name)
	}
	if v, _ := spanAttr(spans[0], "url.path"); v.AsString() != "/api/archives/01JAAA" {
		t.Errorf("url.path = %q, want the raw path", v.AsString())
	}
	if v, _ := spanAttr(spans[3], "http.response.status_code"); v.AsInt64() != http.StatusNotFound {
		t.Errorf("unmatched status = %d, want 404", v.AsInt64())
	}
}

func TestMiddleware_ServerErrorMarksSpan(t *testing.T) {
	exp := installTracer(t)
	m, _ := newTestMetrics(t)

	Middleware(m)(archiveMux(http.StatusInternalServerError)).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/archives/x", nil))
	Middleware(m)(archiveMux(http.StatusBadRequest)).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/archives/y", nil))

	spans := exp.GetSpans()
	if spans[0].Status.Code != codes.Error {
		t.Errorf("500 span status = %v, want Error", spans[0].Status.Code)
	}
	if spans[1].Status.Code == codes.Error {
		t.Error("a client error marked the span failed")
	}
}

func TestMiddleware_CorrelationHeader(t *testing.T) {
	tests := []struct {
		name        string
		traceparent string
		wantID      string
	}{
		{name: "new trace"},
		{
			name:        "joins incoming trace",
			traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
			wantID:      "4bf92f3577b34da6a3ce929d0e0e4736",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			installTracer(t)
			m, _ := newTestMetrics(t)

			var inHandler string
			h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				inHandler = CorrelationID(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/game", nil)
			if tt.traceparent != "" {
				req.Header.Set("traceparent", tt.traceparent)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(CorrelationHeader)
			if len(got) != 32 || got != inHandler {
				t.Errorf("header = %q, handler saw %q", got, inHandler)
			}
			if tt.wantID != "" && got != tt.wantID {
				t.Errorf("header = %q, want %q", got, tt.wantID)
			}
			if !strings.Contains(rec.Header().Get("traceparent"), got) {
				t.Errorf("response traceparent %q does not carry the trace", rec.Header().Get("traceparent"))
			}
		})
	}
}

func TestMiddleware_KeepsFirstStatusAndHijack(t *testing.T) {
	installTracer(t)
	m, _ := newTestMetrics(t)
	buf := captureLogs(t, slog.LevelInfo)

	var hijackable bool
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, hijackable = w.(http.Hijacker)
		w.WriteHeader(http.StatusAccepted)
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/game/input", nil))

	if !hijackable {
		t.Error("wrapped writer does not implement http.Hijacker")
	}
	if !strings.Contains(buf.String(), `"status":202`) {
		t.Errorf("log line %q does not report the first status", buf.String())
	}
}

func TestMiddleware_QuietPaths(t *testing.T) {
	installTracer(t)
	m, _ := newTestMetrics(t)
	buf := captureLogs(t, slog.LevelInfo)

	h := Middleware(m)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/api/game"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if n := strings.Count(buf.String(), "http request"); n != 1 {
		t.Errorf("info lines = %d, want only /api/game logged:\n%s", n, buf.String())
	}
}
