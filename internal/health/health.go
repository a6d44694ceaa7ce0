// Package health serves the liveness and readiness probes of the scoring
// service.
//
//   - /healthz answers 200 whenever the process can serve HTTP.
//   - /readyz answers 200 only while every registered [Checker] passes;
//     a failing dependency (the submission store, typically) flips it to
//     503 so the scheduler stops routing intake traffic here.
//
// Bodies are JSON: {"status": "ok"|"fail", "checks": {name: verdict}}.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout caps one readiness check. A dependency that cannot answer
// within this budget counts as down.
const checkTimeout = 5 * time.Second

// Checker probes one dependency by name. Check returns nil while the
// dependency is usable and must respect context cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler serves the probe endpoints. The checker set is fixed at
// construction, so a Handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a Handler evaluating the given checkers, in order, on each
// readiness request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// probeBody is the JSON response of both endpoints.
type probeBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, probeBody{Status: "ok"})
}

// Readyz is the readiness probe. Every checker runs with its own
// [checkTimeout] deadline under the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	body := probeBody{
		Status: "ok",
		Checks: make(map[string]string, len(h.checkers)),
	}
	code := http.StatusOK

	for _, c := range h.checkers {
		if err := h.runCheck(r.Context(), c); err != nil {
			body.Checks[c.Name] = "fail: " + err.Error()
			body.Status = "fail"
			code = http.StatusServiceUnavailable
		} else {
			body.Checks[c.Name] = "ok"
		}
	}

	respond(w, code, body)
}

func (h *Handler) runCheck(ctx context.Context, c Checker) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return c.Check(ctx)
}

func respond(w http.ResponseWriter, code int, body probeBody) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
