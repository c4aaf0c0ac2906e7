// Package health serves the liveness and readiness probes.
//
// /healthz answers 200 as long as the process serves HTTP and describes the
// live game. /readyz runs every [Check] concurrently: a failing required
// check turns the answer into 503, a failing optional one only marks the
// server degraded.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Overall probe states.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Check probes one dependency.
type Check struct {
	Name string
	Run  func(ctx context.Context) error

	// Optional checks never fail readiness.
	Optional bool
}

// CheckResult is one line of the /readyz body.
type CheckResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Took   string `json:"took"`
}

// Report is the JSON body of both probes.
type Report struct {
	Status string         `json:"status"`
	Uptime string         `json:"uptime,omitempty"`
	Checks []CheckResult  `json:"checks,omitempty"`
	Game   map[string]any `json:"game,omitempty"`
}

// Handler serves /healthz and /readyz.
type Handler struct {
	checks  []Check
	game    func() map[string]any
	timeout time.Duration
	started time.Time
}

// Option configures [New].
type Option func(*Handler)

// WithGame reports fn's result under "game" on /healthz. A nil map is
// omitted.
func WithGame(fn func() map[string]any) Option {
	return func(h *Handler) { h.game = fn }
}

// WithTimeout bounds each check. Default: 5s.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) { h.timeout = d }
}

// New returns a handler running checks on every /readyz request.
func New(checks []Check, opts ...Option) *Handler {
	h := &Handler{
		checks:  slices.Clone(checks),
		timeout: 5 * time.Second,
		started: time.Now(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	rep := Report{Status: StatusOK, Uptime: time.Since(h.started).Round(time.Second).String()}
	if h.game != nil {
		rep.Game = h.game()
	}
	writeJSON(w, http.StatusOK, rep)
}

// Readyz answers 503 when a required check fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Run(r.Context())
	code := http.StatusOK
	if rep.Status == StatusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// Run executes every check and folds the results into a report. Results keep
// the order the checks were given in.
func (h *Handler) Run(ctx context.Context) Report {
	results := make([]CheckResult, len(h.checks))
	var g errgroup.Group
	for i, c := range h.checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			start := time.Now()
			err := c.Run(cctx)

			res := CheckResult{Name: c.Name, Status: StatusOK, Took: time.Since(start).Round(time.Millisecond).String()}
			if err != nil {
				res.Status, res.Error = StatusFail, strings.TrimSpace(err.Error())
				if c.Optional {
					res.Status = StatusDegraded
				}
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Status: StatusOK, Checks: results}
	for _, res := range results {
		switch {
		case res.Status == StatusFail:
			rep.Status = StatusFail
		case res.Status == StatusDegraded && rep.Status == StatusOK:
			rep.Status = StatusDegraded
		}
	}
	return rep
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
