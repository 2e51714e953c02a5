package observe

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type middlewareEnv struct {
	metrics *Metrics
	reader  *sdkmetric.ManualReader
	spans   *tracetest.InMemoryExporter
}

// newMiddlewareEnv installs an in-memory tracer as the global provider for
// the duration of the test. Tests using it must not run in parallel.
func newMiddlewareEnv(t *testing.T) *middlewareEnv {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	return &middlewareEnv{metrics: m, reader: reader, spans: exp}
}

// serve routes one request through Middleware and a mux holding the given
// patterns, each answered by h.
func (e *middlewareEnv) serve(h http.HandlerFunc, req *http.Request, patterns ...string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	for _, p := range patterns {
		mux.HandleFunc(p, h)
	}
	rec := httptest.NewRecorder()
	Middleware(e.metrics)(mux).ServeHTTP(rec, req)
	return rec
}

func (e *middlewareEnv) routes(t *testing.T) map[string]uint64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := e.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := map[string]uint64{}
	met := findMetric(rm, "scrivener.http.request.duration")
	if met == nil {
		return out
	}
	for _, dp := range met.Data.(metricdata.Histogram[float64]).DataPoints {
		rt, _ := dp.Attributes.Value("route")
		out[rt.AsString()] += dp.Count
	}
	return out
}

func okHandler(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestMiddleware_CorrelationID(t *testing.T) {
	tests := []struct {
		name        string
		traceparent string
		want        string
	}{
		{name: "new trace"},
		{
			name:        "continues W3C trace",
			traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
			want:        "4bf92f3577b34da6a3ce929d0e0e4736",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newMiddlewareEnv(t)
			var inner string
			req := httptest.NewRequest(http.MethodPost, "/realtime_autocorrect", nil)
			if tt.traceparent != "" {
				req.Header.Set("traceparent", tt.traceparent)
			}
			rec := env.serve(func(w http.ResponseWriter, r *http.Request) {
				inner = CorrelationID(r.Context())
			}, req, "POST /realtime_autocorrect")

			if len(inner) != 32 {
				t.Fatalf("handler saw correlation ID %q, want 32 hex chars", inner)
			}
			if tt.want != "" && inner != tt.want {
				t.Errorf("correlation ID = %q, want %q", inner, tt.want)
			}
			if got := rec.Header().Get(CorrelationHeader); got != inner {
				t.Errorf("%s header = %q, want %q", CorrelationHeader, got, inner)
			}
		})
	}
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	env := newMiddlewareEnv(t)
	patterns := []string{"POST /correct_sentence", "GET /v1/history"}

	env.serve(okHandler, httptest.NewRequest(http.MethodPost, "/correct_sentence", nil), patterns...)
	env.serve(okHandler, httptest.NewRequest(http.MethodGet, "/v1/history?limit=5", nil), patterns...)
	env.serve(okHandler, httptest.NewRequest(http.MethodGet, "/v1/history?limit=9", nil), patterns...)
	env.serve(okHandler, httptest.NewRequest(http.MethodGet, "/wp-login.php", nil), patterns...)

	got := env.routes(t)
	want := map[string]uint64{"POST /correct_sentence": 1, "GET /v1/history": 2, "unmatched": 1}
	for rt, n := range want {
		if got[rt] != n {
			t.Errorf("route %q: %d samples, want %d (all: %v)", rt, got[rt], n, got)
		}
	}

	spans := env.spans.GetSpans()
	if len(spans) != 4 || spans[0].Name != "HTTP POST /correct_sentence" {
		t.Errorf("spans: got %d, first %q", len(spans), spans[0].Name)
	}
}

func TestMiddleware_Status(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		want      int
		spanError bool
	}{
		{"nothing written", func(http.ResponseWriter, *http.Request) {}, 200, false},
		{"body only", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("{}")) }, 200, false},
		{"client error", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusRequestEntityTooLarge) }, 413, false},
		{"first status wins", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.WriteHeader(http.StatusOK)
		}, 503, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newMiddlewareEnv(t)
			env.serve(tt.handler, httptest.NewRequest(http.MethodPost, "/correct_sentence", nil), "POST /correct_sentence")

			spans := env.spans.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("spans: got %d, want 1", len(spans))
			}
			var status int64
			for _, a := range spans[0].Attributes {
				if a.Key == "http.response.status_code" {
					status = a.Value.AsInt64()
				}
			}
			if status != int64(tt.want) {
				t.Errorf("status attribute = %d, want %d", status, tt.want)
			}
			if got := spans[0].Status.Code == codes.Error; got != tt.spanError {
				t.Errorf("span error = %v, want %v", got, tt.spanError)
			}
		})
	}
}

func TestMiddleware_ServerErrorLogsWarn(t *testing.T) {
	env := newMiddlewareEnv(t)
	buf := captureLogs(t, slog.LevelWarn)

	env.serve(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, httptest.NewRequest(http.MethodGet, "/v1/history", nil), "GET /v1/history")

	out := buf.String()
	if !strings.Contains(out, "status=500") || !strings.Contains(out, `route="GET /v1/history"`) {
		t.Errorf("warn log missing status or route: %q", out)
	}
}

func TestMiddleware_UnwrapsWriter(t *testing.T) {
	env := newMiddlewareEnv(t)

	var inner http.ResponseWriter
	rec := httptest.NewRecorder()
	Middleware(env.metrics)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if u, ok := w.(interface{ Unwrap() http.ResponseWriter }); ok {
			inner = u.Unwrap()
		}
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/autocorrect", nil))

	if inner != http.ResponseWriter(rec) {
		t.Errorf("Unwrap() = %v, want the recorder", inner)
	}
}
