// Package app wires all scrivener subsystems into a running application.
//
// The App struct owns the full lifecycle: New loads the dictionaries and
// builds every stage from the config, Run serves HTTP and watches the config
// file, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithRegistry,
// WithHistoryStore, WithParser, ...). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/scrivener/internal/config"
	"github.com/MrWong99/scrivener/internal/correct"
	"github.com/MrWong99/scrivener/internal/dictionary"
	"github.com/MrWong99/scrivener/internal/grammar"
	"github.com/MrWong99/scrivener/internal/grammar/llmcheck"
	"github.com/MrWong99/scrivener/internal/health"
	"github.com/MrWong99/scrivener/internal/history"
	"github.com/MrWong99/scrivener/internal/mcptools"
	"github.com/MrWong99/scrivener/internal/observe"
	"github.com/MrWong99/scrivener/internal/parse"
	"github.com/MrWong99/scrivener/internal/resilience"
	"github.com/MrWong99/scrivener/internal/server"
	"github.com/MrWong99/scrivener/internal/spell"
	"github.com/MrWong99/scrivener/internal/tense"
	"github.com/MrWong99/scrivener/internal/throttle"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg        *config.Config
	registry   *config.Registry
	level      *slog.LevelVar
	metrics    *observe.Metrics
	version    string
	configPath string
	watchEvery time.Duration
	listener   net.Listener
	scrape     http.Handler

	// Subsystems, initialised in New and torn down in Shutdown.
	speller  *spell.Set
	parser   parse.Parser
	llm      *resilience.LLMFallback
	guarded  *grammar.Guarded
	stage    *grammar.Stage
	history  history.Store
	pipeline *correct.Pipeline
	checkers []health.Checker
	server   *server.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRegistry sets the provider registry used to build grammar and LLM
// backends. Default: an empty registry, so every configured backend is
// skipped with a warning.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithLevelVar sets the level variable hot reloads write to. It should be the
// one the default logger's handler reads.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMetrics sets the instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithHistoryStore injects a history store instead of creating one from config.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.history = s }
}

// WithParser injects a dependency parser instead of creating one from config.
func WithParser(p parse.Parser) Option {
	return func(a *App) { a.parser = p }
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithConfigPath makes Run watch path and hot-apply changes.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithWatchInterval sets how often the config file is polled.
// Default: the watcher's own default.
func WithWatchInterval(d time.Duration) Option {
	return func(a *App) { a.watchEvery = d }
}

// WithListener makes Run serve on ln instead of listening on
// server.listen_addr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithScrapeHandler replaces the /metrics handler. Default: promhttp.Handler().
func WithScrapeHandler(h http.Handler) Option {
	return func(a *App) { a.scrape = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Dictionary load
// failures wrap [dictionary.ErrConfiguration] and are fatal.
//
// On error every resource opened so far is released.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		version: "dev",
	}
	for _, o := range opts {
		o(a)
	}
	if a.registry == nil {
		a.registry = config.NewRegistry()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(cfg.Server.LogLevel.Slog())
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.scrape == nil {
		a.scrape = promhttp.Handler()
	}

	if err := a.init(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	// ── 1. Dictionaries ──────────────────────────────────────────────────
	if err := a.initSpeller(); err != nil {
		return fmt.Errorf("app: init dictionaries: %w", err)
	}

	// ── 2. Dependency parser ─────────────────────────────────────────────
	if err := a.initParser(); err != nil {
		return fmt.Errorf("app: init parser: %w", err)
	}

	// ── 3. LLM providers ─────────────────────────────────────────────────
	if err := a.initLLM(); err != nil {
		return fmt.Errorf("app: init llm: %w", err)
	}

	// ── 4. Grammar backends ──────────────────────────────────────────────
	if err := a.initGrammar(); err != nil {
		return fmt.Errorf("app: init grammar: %w", err)
	}

	// ── 5. History ───────────────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		return fmt.Errorf("app: init history: %w", err)
	}

	// ── 6. Pipeline + server ─────────────────────────────────────────────
	a.initPipeline()
	a.initServer()
	return nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initSpeller loads every configured dictionary and builds its corrector.
func (a *App) initSpeller() error {
	langs := a.cfg.Dictionaries.Languages
	if len(langs) == 0 {
		slog.Warn("no dictionaries configured, keystrokes are echoed unchanged")
		return nil
	}

	correctors := make(map[string]*spell.Corrector, len(langs))
	for _, dc := range langs {
		d, err := dictionary.Load(dc.Path,
			dictionary.WithTermIndex(dc.TermIndex),
			dictionary.WithCountIndex(dc.CountIndex),
			dictionary.WithSeparator(dc.Separator),
		)
		if err != nil {
			return fmt.Errorf("language %q: %w", dc.Language, err)
		}
		c, err := spell.New(d,
			spell.WithMaxEditDistance(a.cfg.Spell.MaxEditDistance),
			spell.WithCountThreshold(a.cfg.Spell.CountThreshold),
		)
		if err != nil {
			return fmt.Errorf("language %q: %w", dc.Language, err)
		}
		correctors[dc.Language] = c
		slog.Info("loaded dictionary", "language", dc.Language, "path", dc.Path, "terms", d.Len())
	}

	set, err := spell.NewSet(a.cfg.Dictionaries.Default, correctors)
	if err != nil {
		return err
	}
	a.speller = set
	return nil
}

// initParser creates the HTTP parser client unless one was injected.
func (a *App) initParser() error {
	if a.parser != nil {
		return nil
	}
	pc := a.cfg.Parser
	if pc.URL == "" {
		slog.Info("no parser configured, tense normalization disabled")
		return nil
	}
	opts := []parse.Option{parse.WithTimeout(pc.Timeout)}
	if pc.Endpoint != "" {
		opts = append(opts, parse.WithEndpoint(pc.Endpoint))
	}
	p, err := parse.NewHTTPParser(pc.URL, opts...)
	if err != nil {
		return err
	}
	a.parser = p
	return nil
}

// initLLM builds the configured LLM providers into one fallback chain. The
// first provider the registry knows becomes the primary.
func (a *App) initLLM() error {
	for _, entry := range a.cfg.LLM.Providers {
		p, err := a.registry.CreateLLM(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("llm provider not registered, skipping", "name", entry.Name)
			continue
		}
		if err != nil {
			return fmt.Errorf("create llm provider %q: %w", entry.Name, err)
		}
		if a.llm == nil {
			a.llm = resilience.NewLLMFallback(p, entry.Name, a.fallbackConfig())
		} else {
			a.llm.AddFallback(entry.Name, p)
		}
		slog.Info("provider created", "kind", "llm", "name", entry.Name, "model", entry.Model)
	}
	return nil
}

// initGrammar builds the grammar backends in configured order behind
// circuit breakers and wraps them in the throttled stage.
func (a *App) initGrammar() error {
	var primary string
	for _, entry := range a.cfg.Grammar.Backends {
		c, err := a.grammarChecker(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("grammar backend not registered, skipping", "name", entry.Name)
			continue
		}
		if err != nil {
			return fmt.Errorf("create grammar backend %q: %w", entry.Name, err)
		}
		if a.guarded == nil {
			a.guarded = grammar.NewGuarded(c, entry.Name, a.fallbackConfig())
			primary = entry.Name
		} else {
			a.guarded.AddFallback(entry.Name, c)
		}
		slog.Info("provider created", "kind", "grammar", "name", entry.Name)
	}
	if a.guarded == nil {
		slog.Info("no grammar backend available, remote grammar stage disabled")
		return nil
	}

	gc := a.cfg.Grammar
	a.stage = grammar.NewStage(a.guarded, throttle.New(gc.MinInterval),
		grammar.WithTimeout(gc.Timeout),
		grammar.WithLanguage(gc.Language),
		grammar.WithMetrics(a.metrics),
		grammar.WithName(primary),
	)
	a.checkers = append(a.checkers, health.Breakers("grammar", a.guarded.Statuses))
	if a.llm != nil {
		a.checkers = append(a.checkers, health.Breakers("llm", a.llm.Statuses))
	}
	return nil
}

// grammarChecker builds one backend. "llm" is built here because it needs
// the LLM chain; everything else comes from the registry.
func (a *App) grammarChecker(entry config.ProviderEntry) (grammar.Checker, error) {
	if entry.Name != "llm" {
		return a.registry.CreateGrammar(entry)
	}
	if a.llm == nil {
		return nil, errors.New("no llm provider available")
	}
	var opts []llmcheck.Option
	if t := a.cfg.LLM.Temperature; t != nil {
		opts = append(opts, llmcheck.WithTemperature(*t))
	}
	if n := a.cfg.LLM.MaxTokens; n > 0 {
		opts = append(opts, llmcheck.WithMaxTokens(n))
	}
	return llmcheck.New(a.llm, opts...), nil
}

func (a *App) fallbackConfig() resilience.FallbackConfig {
	bc := a.cfg.Grammar.Breaker
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  bc.MaxFailures,
			ResetTimeout: bc.ResetTimeout,
			HalfOpenMax:  bc.HalfOpenMax,
			OnStateChange: func(name string, to resilience.State) {
				slog.Warn("circuit breaker state changed", "backend", name, "state", to.String())
			},
		},
	}
}

// initHistory opens the configured store unless one was injected.
func (a *App) initHistory(ctx context.Context) error {
	if a.history == nil {
		hc := a.cfg.History
		switch hc.Backend {
		case config.HistoryPostgres:
			pool, err := pgxpool.New(ctx, hc.PostgresDSN)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			a.closers = append(a.closers, func() error {
				pool.Close()
				return nil
			})
			store := history.NewPostgresStore(pool)
			if err := store.Migrate(ctx); err != nil {
				return err
			}
			a.history = store
		case config.HistoryFile:
			store, err := history.OpenFileStore(hc.Path)
			if err != nil {
				return err
			}
			a.closers = append(a.closers, store.Close)
			a.history = store
		default:
			return nil
		}
		slog.Info("history store opened", "backend", hc.Backend)
	}

	if p, ok := a.history.(interface{ Ping(context.Context) error }); ok {
		a.checkers = append(a.checkers, health.Ping("history", false, p.Ping))
	}
	return nil
}

func (a *App) initPipeline() {
	opts := []correct.Option{
		correct.WithTenseNormalizer(tense.New(tense.WithoutRules(a.cfg.Parser.DisabledRules...))),
		correct.WithMetrics(a.metrics),
	}
	if a.speller != nil {
		opts = append(opts, correct.WithSpeller(a.speller))
	}
	if a.parser != nil {
		opts = append(opts, correct.WithParser(a.parser))
	}
	if a.stage != nil {
		opts = append(opts, correct.WithGrammarStage(a.stage))
	}
	if a.history != nil {
		opts = append(opts, correct.WithRecorder(a.history))
	}
	a.pipeline = correct.NewPipeline(opts...)
}

func (a *App) initServer() {
	checkers := append([]health.Checker{health.Dictionaries(a.pipeline.Languages)}, a.checkers...)
	tools := mcptools.NewServer(a.pipeline, a.version, mcptools.WithMetrics(a.metrics))

	opts := []server.Option{
		server.WithHealth(health.New(checkers...)),
		server.WithMetricsHandler(a.scrape),
		server.WithMCPHandler(mcptools.Handler(tools)),
		server.WithMetrics(a.metrics),
		server.WithRateLimit(a.cfg.Server.RateLimit, a.cfg.Server.RateBurst),
	}
	if a.history != nil {
		opts = append(opts, server.WithHistory(a.history))
	}
	a.server = server.New(a.pipeline, opts...)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP handler with all routes and middleware.
func (a *App) Handler() http.Handler { return a.server }

// Pipeline returns the correction pipeline.
func (a *App) Pipeline() *correct.Pipeline { return a.pipeline }

// Throttle returns the grammar stage's throttle, or nil when no grammar
// backend is configured.
func (a *App) Throttle() *throttle.Throttle {
	if a.stage == nil {
		return nil
	}
	return a.stage.Throttle()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// close releases resources after a failed New.
func (a *App) close() {
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			slog.Warn("closer error", "err", err)
		}
	}
}
