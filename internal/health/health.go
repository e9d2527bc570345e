// Package health serves liveness and readiness probes next to the metrics
// endpoint of a long batch run.
//
// GET /healthz always answers {"status":"ok"}. GET /readyz runs every
// registered [Checker] and answers 503 with the failing check names when any
// of them fails:
//
//	{"status":"fail","checks":{"store":"fail: connection refused"}}
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const checkTimeout = 5 * time.Second

// Checker probes one dependency. Check returns nil when it is usable.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Pinger is implemented by dependencies that can be probed cheaply, such as
// the result stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping returns a [Checker] named name that calls p.Ping.
func Ping(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

type status struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler answers the probes. The checker list is fixed at construction.
type Handler struct {
	checkers []Checker
}

// New returns a [Handler] evaluating checkers in order on every readiness
// probe.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz reports that the process is serving HTTP.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, status{Status: "ok"})
}

// Readyz runs every checker with a per-check timeout derived from the
// request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := status{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	code := http.StatusOK
	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			code = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}
	writeJSON(w, code, res)
}

// Register adds GET /healthz and GET /readyz to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
