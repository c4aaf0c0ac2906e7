package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func serve(t *testing.T, h *Handler, path string) (int, Report) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var rep Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return rec.Code, rep
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		opts      []Option
		wantPhase any
	}{
		{name: "bare"},
		{name: "no game yet", opts: []Option{WithGame(func() map[string]any { return nil })}},
		{
			name:      "live game",
			opts:      []Option{WithGame(func() map[string]any { return map[string]any{"id": "g1", "phase": "NIGHT_START"} })},
			wantPhase: "NIGHT_START",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			failing := []Check{{Name: "archive", Run: func(context.Context) error { return errors.New("down") }}}
			code, rep := serve(t, New(failing, tt.opts...), "/healthz")

			if code != http.StatusOK || rep.Status != StatusOK {
				t.Errorf("healthz = %d %q, want 200 ok regardless of checks", code, rep.Status)
			}
			if rep.Uptime == "" {
				t.Error("uptime missing")
			}
			if got := rep.Game["phase"]; got != tt.wantPhase {
				t.Errorf("game phase = %v, want %v", got, tt.wantPhase)
			}
		})
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	ok := func(context.Context) error { return nil }
	refused := func(context.Context) error { return errors.New("connection refused\n") }

	tests := []struct {
		name       string
		checks     []Check
		wantCode   int
		wantStatus string
		wantLines  []string
	}{
		{name: "no checks", wantCode: http.StatusOK, wantStatus: StatusOK},
		{
			name:       "all pass",
			checks:     []Check{{Name: "archive", Run: ok}, {Name: "postgres", Run: ok}},
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
			wantLines:  []string{StatusOK, StatusOK},
		},
		{
			name:       "optional fails",
			checks:     []Check{{Name: "archive", Run: ok}, {Name: "tts", Run: refused, Optional: true}},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
			wantLines:  []string{StatusOK, StatusDegraded},
		},
		{
			name:       "required fails",
			checks:     []Check{{Name: "tts", Run: refused, Optional: true}, {Name: "archive", Run: refused}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusFail,
			wantLines:  []string{StatusDegraded, StatusFail},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, rep := serve(t, New(tt.checks), "/readyz")

			if code != tt.wantCode || rep.Status != tt.wantStatus {
				t.Errorf("readyz = %d %q, want %d %q", code, rep.Status, tt.wantCode, tt.wantStatus)
			}
			if len(rep.Checks) != len(tt.wantLines) {
				t.Fatalf("checks = %+v", rep.Checks)
			}
			for i, want := range tt.wantLines {
				got := rep.Checks[i]
				if got.Name != tt.checks[i].Name || got.Status != want {
					t.Errorf("check %d = %+v, want %s %s", i, got, tt.checks[i].Name, want)
				}
				if want != StatusOK && got.Error != "connection refused" {
					t.Errorf("check %d error = %q", i, got.Error)
				}
			}
		})
	}
}

func TestRun_Concurrent(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	slow := func(context.Context) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		return nil
	}
	rep := New([]Check{{Name: "a", Run: slow}, {Name: "b", Run: slow}, {Name: "c", Run: slow}}).Run(context.Background())

	if rep.Status != StatusOK {
		t.Fatalf("status = %q", rep.Status)
	}
	if peak.Load() < 2 {
		t.Errorf("peak concurrency = %d, want checks to overlap", peak.Load())
	}
}

func TestRun_Timeout(t *testing.T) {
	t.Parallel()

	hang := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	start := time.Now()
	rep := New([]Check{{Name: "stuck", Run: hang}}, WithTimeout(20*time.Millisecond)).Run(context.Background())

	if rep.Status != StatusFail || rep.Checks[0].Error != context.DeadlineExceeded.Error() {
		t.Errorf("report = %+v", rep)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout not applied")
	}
}
