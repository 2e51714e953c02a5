// Package health serves the liveness and readiness endpoints.
//
//   - /healthz always answers 200 while the process can serve HTTP.
//   - /readyz runs every registered [Checker] and answers 503 when a
//     required one fails. Optional checkers only downgrade the status to
//     "degraded".
//
// Responses are JSON objects with a "status" field ("ok", "degraded" or
// "fail") and a "checks" map holding each checker's result.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/scrivener/internal/resilience"
)

const checkTimeout = 5 * time.Second

// Checker is a named readiness check.
type Checker struct {
	// Name is the key of this check in the response.
	Name string

	// Check returns nil when the dependency is healthy. It must honour ctx.
	Check func(ctx context.Context) error

	// Optional marks a dependency the service can run without.
	Optional bool
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the health endpoints. The checker list is fixed at construction.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] evaluating checkers on each /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz is the liveness endpoint.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs all checkers concurrently, each under its own timeout.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu       sync.Mutex
		checks   = make(map[string]string, len(h.checkers))
		failed   bool
		degraded bool
	)

	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				checks[c.Name] = "ok"
			case c.Optional:
				checks[c.Name] = "degraded: " + err.Error()
				degraded = true
			default:
				checks[c.Name] = "fail: " + err.Error()
				failed = true
			}
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	switch {
	case failed:
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	case degraded:
		res.Status = "degraded"
	}
	writeJSON(w, status, res)
}

// Register adds the health routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Dictionaries fails when no spelling dictionary is loaded.
func Dictionaries(languages func() []string) Checker {
	return Checker{
		Name: "dictionaries",
		Check: func(context.Context) error {
			if len(languages()) == 0 {
				return errors.New("no dictionaries loaded")
			}
			return nil
		},
	}
}

// Breakers reports open circuit breakers. It is optional: with every grammar
// backend open the sentence path still answers, just without grammar fixes.
func Breakers(name string, statuses func() []resilience.Status) Checker {
	return Checker{
		Name:     name,
		Optional: true,
		Check: func(context.Context) error {
			var open []string
			all := statuses()
			for _, s := range all {
				if s.State == resilience.StateOpen {
					open = append(open, s.Name)
				}
			}
			if len(all) > 0 && len(open) == len(all) {
				return fmt.Errorf("all backends open: %s", strings.Join(open, ", "))
			}
			return nil
		},
	}
}

// Ping wraps a connectivity check such as a database ping.
func Ping(name string, optional bool, ping func(context.Context) error) Checker {
	return Checker{Name: name, Optional: optional, Check: ping}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
