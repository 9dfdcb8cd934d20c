// Package health serves the liveness and readiness probes.
//
// /healthz answers 200 while the process can serve HTTP. /readyz runs every
// registered [Checker] concurrently and answers:
//
//	200 {"status":"ok"}        every check passed
//	200 {"status":"degraded"}  only optional checks failed
//	503 {"status":"fail"}      a required check failed
//
// The note store is a required check; a model backend behind an open
// circuit breaker is optional because notes can still be browsed, edited
// and exported.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 3 * time.Second

// Status values reported by the probes.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Checker probes one dependency.
type Checker struct {
	// Name keys the check in the response, e.g. "store" or "providers".
	Name string

	// Check returns nil while the dependency is usable. It must honour ctx.
	Check func(ctx context.Context) error

	// Optional marks a dependency whose failure degrades the service
	// without making it unready.
	Optional bool
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Report is the JSON body of both probes.
type Report struct {
	Status string                 `json:"status"`
	Uptime string                 `json:"uptime"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Handler serves the probes. The checker list is fixed at construction.
type Handler struct {
	checkers []Checker
	started  time.Time
	now      func() time.Time
}

// New returns a Handler evaluating checkers on every /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{
		checkers: append([]Checker(nil), checkers...),
		started:  time.Now(),
		now:      time.Now,
	}
}

// Register adds GET /healthz and GET /readyz to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{Status: StatusOK, Uptime: h.uptime()})
}

// Readyz answers with the aggregated [Report] of all checkers.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Evaluate(r.Context())
	code := http.StatusOK
	if rep.Status == StatusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// Evaluate runs all checkers concurrently, each under [checkTimeout].
func (h *Handler) Evaluate(ctx context.Context) Report {
	rep := Report{
		Status: StatusOK,
		Uptime: h.uptime(),
		Checks: make(map[string]CheckResult, len(h.checkers)),
	}
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, c := range h.checkers {
		g.Go(func() error {
			res := h.run(ctx, c)
			mu.Lock()
			defer mu.Unlock()
			rep.Checks[c.Name] = res
			switch {
			case res.Status == StatusOK:
			case c.Optional:
				if rep.Status == StatusOK {
					rep.Status = StatusDegraded
				}
			default:
				rep.Status = StatusFail
			}
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

func (h *Handler) run(ctx context.Context, c Checker) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := h.now()
	err := c.Check(ctx)
	res := CheckResult{Status: StatusOK, LatencyMS: h.now().Sub(start).Milliseconds()}
	if err != nil {
		res.Status = StatusFail
		if c.Optional {
			res.Status = StatusDegraded
		}
		res.Error = err.Error()
	}
	return res
}

func (h *Handler) uptime() string {
	return h.now().Sub(h.started).Truncate(time.Second).String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
