// Package server exposes the correction pipeline over HTTP.
//
// Routes:
//
//	POST /realtime_autocorrect   keystroke event → {"corrected_text"}
//	POST /correct_sentence       sentence → {"corrected_text", "corrections"}
//	GET  /ws/autocorrect         WebSocket stream of keystroke events
//	GET  /v1/history             recent corrections (when a store is set)
//	GET  /healthz, /readyz       health checks (when a health handler is set)
//	GET  /metrics                Prometheus scrape (when a handler is set)
//	     /mcp                    MCP streamable HTTP (when a handler is set)
//
// Handlers are thin adapters: correction failures never reach the client,
// only malformed requests do.
package server

import (
	"context"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/MrWong99/scrivener/internal/correct"
	"github.com/MrWong99/scrivener/internal/health"
	"github.com/MrWong99/scrivener/internal/history"
	"github.com/MrWong99/scrivener/internal/observe"
)

// maxBodyBytes bounds request bodies and WebSocket messages.
const maxBodyBytes = 1 << 20

// Corrector is the subset of [correct.Pipeline] the server calls.
type Corrector interface {
	Autocorrect(ctx context.Context, req correct.AutocorrectRequest) (*correct.Result, error)
	CorrectSentenceIn(ctx context.Context, text, language string) (*correct.Result, error)
}

var _ Corrector = (*correct.Pipeline)(nil)

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithHistory serves GET /v1/history from s.
func WithHistory(s history.Store) Option {
	return func(srv *Server) { srv.history = s }
}

// WithHealth registers the health routes of h.
func WithHealth(h *health.Handler) Option {
	return func(srv *Server) { srv.health = h }
}

// WithMetricsHandler serves GET /metrics from h, typically promhttp.Handler().
func WithMetricsHandler(h http.Handler) Option {
	return func(srv *Server) { srv.metricsHandler = h }
}

// WithMCPHandler mounts h at /mcp.
func WithMCPHandler(h http.Handler) Option {
	return func(srv *Server) { srv.mcp = h }
}

// WithMetrics sets the instruments used by the middleware and the stream
// handler. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(srv *Server) {
		if m != nil {
			srv.metrics = m
		}
	}
}

// WithRateLimit installs a global token bucket of perSecond requests with
// the given burst. Health and metrics routes are exempt. A non-positive rate
// disables the limiter.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(srv *Server) {
		if perSecond <= 0 {
			srv.limiter = nil
			return
		}
		srv.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// Server routes HTTP requests to the correction pipeline.
type Server struct {
	corrector      Corrector
	history        history.Store
	health         *health.Handler
	metricsHandler http.Handler
	mcp            http.Handler
	metrics        *observe.Metrics
	limiter        *rate.Limiter

	// closing is canceled by CloseStreams.
	closing      context.Context
	closeStreams context.CancelFunc

	handler http.Handler
}

// New builds a Server around c.
func New(c Corrector, opts ...Option) *Server {
	s := &Server{corrector: c, metrics: observe.DefaultMetrics()}
	for _, o := range opts {
		o(s)
	}
	s.closing, s.closeStreams = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /realtime_autocorrect", s.handleAutocorrect)
	mux.HandleFunc("POST /correct_sentence", s.handleCorrectSentence)
	mux.HandleFunc("GET /ws/autocorrect", s.handleStream)
	if s.history != nil {
		mux.HandleFunc("GET /v1/history", s.handleHistory)
	}
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	if s.mcp != nil {
		mux.Handle("/mcp", s.mcp)
	}

	s.handler = observe.Middleware(s.metrics)(s.limit(mux))
	return s
}

// ServeHTTP implements [http.Handler] with the middleware applied.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// CloseStreams ends every open WebSocket stream. Hijacked connections are
// not tracked by [http.Server.Shutdown], so register this with
// [http.Server.RegisterOnShutdown].
func (s *Server) CloseStreams() {
	s.closeStreams()
}

func (s *Server) limit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz", "/readyz", "/metrics":
		default:
			if !s.limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
