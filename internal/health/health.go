// Package health serves the avatar's liveness and readiness probes.
//
//   - /healthz reports liveness: a process that can answer HTTP is alive.
//   - /readyz reports readiness: 200 only while every registered dependency
//     check (the pgvector store, for instance) passes.
//
// The response body is JSON: {"status": "ok"|"fail", "checks": {name: state}}.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// checkTimeout bounds a single dependency probe so one hung connection pool
// cannot stall the whole readiness response.
const checkTimeout = 5 * time.Second

// Checker probes one dependency of the backend.
type Checker struct {
	// Name labels the check in the JSON response, e.g. "postgres".
	Name string

	// Check returns nil while the dependency is usable. It must respect
	// context cancellation.
	Check func(ctx context.Context) error
}

type probeResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler answers the probe endpoints. The checker set is fixed at
// construction, so a Handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a Handler over the given dependency checks. Checks run
// sequentially in the order given on every /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz answers the liveness probe with 200 unconditionally.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, probeResponse{Status: "ok"})
}

// Readyz runs every checker and answers 200 when all pass, 503 otherwise.
// Each check gets its own deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	resp := probeResponse{
		Status: "ok",
		Checks: make(map[string]string, len(h.checkers)),
	}
	status := http.StatusOK

	for _, c := range h.checkers {
		if err := h.runCheck(r.Context(), c); err != nil {
			resp.Checks[c.Name] = "fail: " + err.Error()
			resp.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}

	writeJSON(w, status, resp)
}

// runCheck executes one checker under its own deadline and logs failures
// with the time the probe took.
func (h *Handler) runCheck(ctx context.Context, c Checker) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	err := c.Check(ctx)
	if err != nil {
		slog.Warn("readiness check failed",
			"check", c.Name,
			"elapsed", time.Since(start),
			"err", err,
		)
	}
	return err
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
