package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/goleak"

	"github.com/MrWong99/scrivener/internal/app"
	"github.com/MrWong99/scrivener/internal/config"
	"github.com/MrWong99/scrivener/internal/dictionary"
	"github.com/MrWong99/scrivener/internal/grammar"
	grammarmock "github.com/MrWong99/scrivener/internal/grammar/mock"
	"github.com/MrWong99/scrivener/internal/observe"
	"github.com/MrWong99/scrivener/pkg/provider/llm"
	llmmock "github.com/MrWong99/scrivener/pkg/provider/llm/mock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

// ── helpers ──────────────────────────────────────────────────────────────────

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// testConfig returns a config with one English dictionary, a JSON lines
// history file, and a single grammar backend named "fake".
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Dictionaries: config.DictionariesConfig{
			Languages: []config.DictionaryConfig{{
				Language: "en",
				Path:     writeFile(t, dir, "en.txt", "teh 1\nthe 500\nsaid 80\nI 300\n"),
			}},
		},
		Grammar: config.GrammarConfig{
			Backends: []config.ProviderEntry{{Name: "fake"}},
		},
		History: config.HistoryConfig{
			Backend: config.HistoryFile,
			Path:    filepath.Join(dir, "history.jsonl"),
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// fakeRegistry registers a grammar backend "fake" that rewrites "Thay" to
// "They".
func fakeRegistry(checker *grammarmock.Checker) *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterGrammar("fake", func(config.ProviderEntry) (grammar.Checker, error) {
		return checker, nil
	})
	return reg
}

func theyChecker() *grammarmock.Checker {
	return &grammarmock.Checker{
		Matches: []grammar.Match{{Offset: 0, Length: 4, Replacements: []string{"They"}}},
	}
}

func newApp(t *testing.T, cfg *config.Config, opts ...app.Option) *app.App {
	t.Helper()
	all := append([]app.Option{
		app.WithMetrics(testMetrics(t)),
		app.WithScrapeHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# scrape\n"))
		})),
	}, opts...)
	a, err := app.New(context.Background(), cfg, all...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func post(t *testing.T, h http.Handler, path, body string) map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST %s: status %d, body %s", path, rec.Code, rec.Body)
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("POST %s: decode: %v", path, err)
	}
	return out
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

// ── New ──────────────────────────────────────────────────────────────────────

func TestNew_WiresEveryRoute(t *testing.T) {
	t.Parallel()
	checker := theyChecker()
	a := newApp(t, testConfig(t), app.WithRegistry(fakeRegistry(checker)))
	h := a.Handler()

	if got := post(t, h, "/realtime_autocorrect", `{"text":"I said teh","event_type":"space"}`); got["corrected_text"] != "I said the" {
		t.Errorf("autocorrect: got %v", got)
	}
	if got := post(t, h, "/correct_sentence", `{"text":"Thay are here"}`); got["corrected_text"] != "They are here" {
		t.Errorf("correct_sentence: got %v", got)
	}
	calls := checker.Calls()
	if len(calls) != 1 || calls[0].Language != config.DefaultGrammarLanguage {
		t.Errorf("grammar calls: %+v", calls)
	}

	rec := get(t, h, "/v1/history")
	if rec.Code != http.StatusOK {
		t.Fatalf("history: status %d", rec.Code)
	}
	var hist struct {
		Records []struct {
			Input  string `json:"input"`
			Output string `json:"output"`
		} `json:"records"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatalf("history: decode: %v", err)
	}
	if len(hist.Records) != 2 || hist.Records[0].Input != "Thay are here" {
		t.Errorf("history records: %+v", hist.Records)
	}

	for path, want := range map[string]int{
		"/healthz": http.StatusOK,
		"/readyz":  http.StatusOK,
		"/metrics": http.StatusOK,
	} {
		if rec := get(t, h, path); rec.Code != want {
			t.Errorf("GET %s: status %d, want %d", path, rec.Code, want)
		}
	}

	if a.Throttle() == nil || a.Throttle().MinInterval() != config.DefaultMinInterval {
		t.Errorf("throttle not configured from grammar.min_interval")
	}
}

func TestNew_MissingDictionary(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Dictionaries.Languages[0].Path = filepath.Join(t.TempDir(), "missing.txt")

	_, err := app.New(context.Background(), cfg, app.WithMetrics(testMetrics(t)))
	if !errors.Is(err, dictionary.ErrConfiguration) {
		t.Fatalf("New: got %v, want ErrConfiguration", err)
	}
}

func TestNew_UnregisteredBackendIsSkipped(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(t))

	if a.Throttle() != nil {
		t.Error("Throttle: want nil without a grammar backend")
	}
	if got := post(t, a.Handler(), "/correct_sentence", `{"text":"Thay are here"}`); got["corrected_text"] != "Thay are here" {
		t.Errorf("correct_sentence: got %v, want the input unchanged", got)
	}
}

func TestNew_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterGrammar("fake", func(config.ProviderEntry) (grammar.Checker, error) {
		return nil, errors.New("bad credentials")
	})
	_, err := app.New(context.Background(), testConfig(t), app.WithRegistry(reg), app.WithMetrics(testMetrics(t)))
	if err == nil || !strings.Contains(err.Error(), "bad credentials") {
		t.Fatalf("New: got %v, want the factory error", err)
	}
}

func TestNew_LLMGrammarBackend(t *testing.T) {
	t.Parallel()
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"matches":[{"offset":0,"length":4,"original":"Thay","replacement":"They"}]}`,
		},
	}
	reg := config.NewRegistry()
	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) { return provider, nil })

	cfg := testConfig(t)
	cfg.Grammar.Backends = []config.ProviderEntry{{Name: "llm"}}
	cfg.LLM.Providers = []config.ProviderEntry{{Name: "mock", Model: "m"}}
	temp := 0.2
	cfg.LLM.Temperature = &temp

	a := newApp(t, cfg, app.WithRegistry(reg))
	if got := post(t, a.Handler(), "/correct_sentence", `{"text":"Thay are here"}`); got["corrected_text"] != "They are here" {
		t.Errorf("correct_sentence: got %v", got)
	}
	calls := provider.Calls()
	if len(calls) != 1 {
		t.Fatalf("llm calls: got %d, want 1", len(calls))
	}
	if calls[0].Req.Temperature != 0.2 {
		t.Errorf("temperature: got %v, want 0.2", calls[0].Req.Temperature)
	}
}

func TestNew_LLMBackendWithoutProvider(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Grammar.Backends = []config.ProviderEntry{{Name: "llm"}}

	_, err := app.New(context.Background(), cfg, app.WithMetrics(testMetrics(t)))
	if err == nil || !strings.Contains(err.Error(), "no llm provider") {
		t.Fatalf("New: got %v", err)
	}
}

// ── ApplyConfig ──────────────────────────────────────────────────────────────

func TestApplyConfig(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	level := new(slog.LevelVar)
	a := newApp(t, cfg, app.WithRegistry(fakeRegistry(theyChecker())), app.WithLevelVar(level))

	upd := *cfg
	upd.Server.LogLevel = config.LogDebug
	upd.Grammar.MinInterval = time.Second
	upd.Spell.MaxEditDistance = 1
	a.ApplyConfig(cfg, &upd)

	if level.Level() != slog.LevelDebug {
		t.Errorf("level: got %v, want debug", level.Level())
	}
	if got := a.Throttle().MinInterval(); got != time.Second {
		t.Errorf("min interval: got %v, want 1s", got)
	}
}

// ── Run ──────────────────────────────────────────────────────────────────────

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return ln
}

func TestRun_ServesUntilCanceled(t *testing.T) {
	t.Parallel()
	ln := listen(t)
	a := newApp(t, testConfig(t), app.WithListener(ln))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	client := &http.Client{Timeout: 2 * time.Second}
	defer client.CloseIdleConnections()
	resp, err := client.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		cancel()
		<-errCh
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz: status %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run: got %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Server.ListenAddr = "256.0.0.1:bad"
	a := newApp(t, cfg)

	if err := a.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "listen") {
		t.Fatalf("Run: got %v, want a listen error", err)
	}
}

func TestRun_HotReloadsConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "scrivener.yaml", "server:\n  log_level: info\n")

	level := new(slog.LevelVar)
	a := newApp(t, testConfig(t),
		app.WithListener(listen(t)),
		app.WithLevelVar(level),
		app.WithConfigPath(path),
		app.WithWatchInterval(20*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()
	defer func() {
		cancel()
		<-errCh
	}()

	// Let the watcher take its initial snapshot before rewriting the file.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "scrivener.yaml", "server:\n  log_level: debug\n")
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for level.Level() != slog.LevelDebug {
		if time.Now().After(deadline) {
			t.Fatal("log level was not hot-reloaded")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// ── Shutdown ─────────────────────────────────────────────────────────────────

func TestShutdown(t *testing.T) {
	t.Parallel()
	a, err := app.New(context.Background(), testConfig(t), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown with expired ctx: got %v, want context.Canceled", err)
	}
	// Shutdown runs once; later calls are no-ops.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}
