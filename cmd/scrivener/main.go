// Command scrivener is the main entry point for the scrivener correction server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/scrivener/internal/app"
	"github.com/MrWong99/scrivener/internal/config"
	"github.com/MrWong99/scrivener/internal/dictionary"
	"github.com/MrWong99/scrivener/internal/grammar"
	"github.com/MrWong99/scrivener/internal/grammar/languagetool"
	"github.com/MrWong99/scrivener/internal/observe"
	"github.com/MrWong99/scrivener/pkg/provider/llm"
	"github.com/MrWong99/scrivener/pkg/provider/llm/anyllm"
	"github.com/MrWong99/scrivener/pkg/provider/llm/openai"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "hot-reload log level and grammar throttle on config changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "scrivener: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "scrivener: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("scrivener starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	printStartupSummary(cfg)

	opts := []app.Option{
		app.WithRegistry(reg),
		app.WithLevelVar(level),
		app.WithVersion(version),
	}
	if *watch {
		opts = append(opts, app.WithConfigPath(*configPath))
	}
	application, err := app.New(ctx, cfg, opts...)
	if err != nil {
		if errors.Is(err, dictionary.ErrConfiguration) {
			slog.Error("dictionary configuration error", "err", err)
		} else {
			slog.Error("failed to initialise application", "err", err)
		}
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	exit := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// The "llm" grammar backend is not registered here: the app builds it over
// the configured LLM providers.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.StringOption("organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining hosted backends share the same pattern: optional APIKey
	// plus optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── Grammar ───────────────────────────────────────────────────────────────

	reg.RegisterGrammar("languagetool", func(entry config.ProviderEntry) (grammar.Checker, error) {
		var opts []languagetool.Option
		if entry.APIKey != "" {
			opts = append(opts, languagetool.WithCredentials(entry.StringOption("username"), entry.APIKey))
		}
		if lvl := entry.StringOption("level"); lvl != "" {
			opts = append(opts, languagetool.WithLevel(lvl))
		}
		if rules := entry.StringsOption("disabled_rules"); len(rules) > 0 {
			opts = append(opts, languagetool.WithDisabledRules(rules...))
		}
		return languagetool.New(entry.BaseURL, opts...)
	})
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       scrivener, startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	langs := ""
	for i, d := range cfg.Dictionaries.Languages {
		if i > 0 {
			langs += ","
		}
		langs += d.Language
	}
	printRow("Dictionaries", langs)
	for i, b := range cfg.Grammar.Backends {
		label := "Grammar"
		if i > 0 {
			label = "  fallback"
		}
		printRow(label, b.Name)
	}
	if len(cfg.Grammar.Backends) == 0 {
		printRow("Grammar", "")
	}
	if len(cfg.LLM.Providers) > 0 {
		p := cfg.LLM.Providers[0]
		printRow("LLM", p.Name+" / "+p.Model)
	} else {
		printRow("LLM", "")
	}
	printRow("Parser", cfg.Parser.URL)
	printRow("History", string(cfg.History.Backend))
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}
