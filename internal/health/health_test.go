package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/scrivener/internal/resilience"
)

func serve(t *testing.T, h *Handler, path string) (int, result) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func ok(context.Context) error { return nil }

func TestHealthz(t *testing.T) {
	t.Parallel()
	code, body := serve(t, New(Checker{Name: "x", Check: func(context.Context) error { return errors.New("down") }}), "/healthz")
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("healthz = %d %+v, want 200 ok regardless of checkers", code, body)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	down := func(context.Context) error { return errors.New("connection refused") }
	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "all pass",
			checkers:   []Checker{{Name: "dictionaries", Check: ok}, {Name: "history", Check: ok}},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"dictionaries": "ok", "history": "ok"},
		},
		{
			name:       "required fails",
			checkers:   []Checker{{Name: "dictionaries", Check: ok}, {Name: "history", Check: down}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"dictionaries": "ok", "history": "fail: connection refused"},
		},
		{
			name:       "optional fails",
			checkers:   []Checker{{Name: "grammar", Check: down, Optional: true}},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
			wantChecks: map[string]string{"grammar": "degraded: connection refused"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, body := serve(t, New(tt.checkers...), "/readyz")
			if code != tt.wantCode || body.Status != tt.wantStatus {
				t.Errorf("readyz = %d %q, want %d %q", code, body.Status, tt.wantCode, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_RunsConcurrently(t *testing.T) {
	t.Parallel()
	slow := func(ctx context.Context) error {
		select {
		case <-time.After(100 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h := New(Checker{Name: "a", Check: slow}, Checker{Name: "b", Check: slow}, Checker{Name: "c", Check: slow})

	start := time.Now()
	code, _ := serve(t, h, "/readyz")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("readyz took %v, checks should overlap", elapsed)
	}
}

func TestDictionaries(t *testing.T) {
	t.Parallel()
	if err := Dictionaries(func() []string { return nil }).Check(context.Background()); err == nil {
		t.Error("expected failure with no dictionaries")
	}
	if err := Dictionaries(func() []string { return []string{"en"} }).Check(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBreakers(t *testing.T) {
	t.Parallel()
	statuses := []resilience.Status{
		{Name: "languagetool", State: resilience.StateOpen},
		{Name: "llm", State: resilience.StateClosed},
	}
	c := Breakers("grammar", func() []resilience.Status { return statuses })
	if !c.Optional {
		t.Error("breaker check should be optional")
	}
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("one healthy backend should pass, got %v", err)
	}

	statuses[1].State = resilience.StateOpen
	err := c.Check(context.Background())
	if err == nil || !strings.Contains(err.Error(), "languagetool, llm") {
		t.Errorf("err = %v, want both backends named", err)
	}
}
