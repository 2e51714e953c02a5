package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"grammar": {"languagetool", "llm"},
	"llm":     {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxEditDistance = 2
	DefaultCountThreshold  = 2
	DefaultGrammarLanguage = "en-US"
	DefaultGrammarTimeout  = 3 * time.Second
	DefaultMinInterval     = 200 * time.Millisecond
	DefaultParserTimeout   = 2 * time.Second
	DefaultServiceName     = "scrivener"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Unknown keys are rejected. An empty document
// yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field that has a default.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.RateLimit > 0 && s.RateBurst <= 0 {
		s.RateBurst = max(1, int(2*s.RateLimit))
	}
	if s.ShutdownTimeout <= 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}

	for i := range cfg.Dictionaries.Languages {
		d := &cfg.Dictionaries.Languages[i]
		if d.TermIndex == 0 && d.CountIndex == 0 {
			d.CountIndex = 1
		}
	}
	if cfg.Dictionaries.Default == "" && len(cfg.Dictionaries.Languages) > 0 {
		cfg.Dictionaries.Default = cfg.Dictionaries.Languages[0].Language
	}

	if cfg.Spell.MaxEditDistance <= 0 {
		cfg.Spell.MaxEditDistance = DefaultMaxEditDistance
	}
	if cfg.Spell.CountThreshold <= 0 {
		cfg.Spell.CountThreshold = DefaultCountThreshold
	}

	g := &cfg.Grammar
	if g.Language == "" {
		g.Language = DefaultGrammarLanguage
	}
	if g.Timeout <= 0 {
		g.Timeout = DefaultGrammarTimeout
	}
	if g.MinInterval <= 0 {
		g.MinInterval = DefaultMinInterval
	}

	if cfg.Parser.Timeout <= 0 {
		cfg.Parser.Timeout = DefaultParserTimeout
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
	if cfg.Telemetry.SampleRatio == 0 {
		cfg.Telemetry.SampleRatio = 1
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit %.2f must not be negative", cfg.Server.RateLimit))
	}
	if cfg.Server.RateBurst < 0 {
		errs = append(errs, fmt.Errorf("server.rate_burst %d must not be negative", cfg.Server.RateBurst))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Dictionaries
	langsSeen := make(map[string]int, len(cfg.Dictionaries.Languages))
	for i, d := range cfg.Dictionaries.Languages {
		prefix := fmt.Sprintf("dictionaries.languages[%d]", i)
		if d.Language == "" {
			errs = append(errs, fmt.Errorf("%s.language is required", prefix))
		} else {
			if prev, ok := langsSeen[d.Language]; ok {
				errs = append(errs, fmt.Errorf("%s.language %q is a duplicate of dictionaries.languages[%d]", prefix, d.Language, prev))
			}
			langsSeen[d.Language] = i
		}
		if d.Path == "" {
			errs = append(errs, fmt.Errorf("%s.path is required", prefix))
		}
		if d.TermIndex < 0 || d.CountIndex < 0 {
			errs = append(errs, fmt.Errorf("%s: column indexes must not be negative", prefix))
		} else if d.TermIndex == d.CountIndex {
			errs = append(errs, fmt.Errorf("%s: term_index and count_index must differ", prefix))
		}
	}
	if def := cfg.Dictionaries.Default; def != "" {
		if _, ok := langsSeen[def]; !ok {
			errs = append(errs, fmt.Errorf("dictionaries.default %q does not name a configured language", def))
		}
	}
	if len(cfg.Dictionaries.Languages) == 0 {
		slog.Warn("no dictionaries configured; keystroke correction will echo input")
	}

	// Spell
	if cfg.Spell.MaxEditDistance < 0 {
		errs = append(errs, fmt.Errorf("spell.max_edit_distance %d must not be negative", cfg.Spell.MaxEditDistance))
	}

	// Grammar
	if cfg.Grammar.Timeout < 0 {
		errs = append(errs, fmt.Errorf("grammar.timeout %s must not be negative", cfg.Grammar.Timeout))
	}
	if cfg.Grammar.MinInterval < 0 {
		errs = append(errs, fmt.Errorf("grammar.min_interval %s must not be negative", cfg.Grammar.MinInterval))
	}
	for i, b := range cfg.Grammar.Backends {
		prefix := fmt.Sprintf("grammar.backends[%d]", i)
		switch b.Name {
		case "":
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		case "languagetool":
			if b.BaseURL == "" {
				errs = append(errs, fmt.Errorf("%s.base_url is required for languagetool", prefix))
			}
		case "llm":
			if len(cfg.LLM.Providers) == 0 {
				errs = append(errs, fmt.Errorf("%s: backend \"llm\" requires at least one llm.providers entry", prefix))
			}
		default:
			validateProviderName("grammar", b.Name)
		}
	}
	if br := cfg.Grammar.Breaker; br.MaxFailures < 0 || br.HalfOpenMax < 0 || br.ResetTimeout < 0 {
		errs = append(errs, errors.New("grammar.breaker values must not be negative"))
	}

	// LLM
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("llm.providers[%d].name is required", i))
			continue
		}
		validateProviderName("llm", p.Name)
	}
	if t := cfg.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f is out of range [0, 2]", *t))
	}

	// History
	switch cfg.History.Backend {
	case HistoryPostgres:
		if cfg.History.PostgresDSN == "" {
			errs = append(errs, errors.New("history.postgres_dsn is required when backend is postgres"))
		}
	case HistoryFile:
		if cfg.History.Path == "" {
			errs = append(errs, errors.New("history.path is required when backend is file"))
		}
	case HistoryNone:
	default:
		errs = append(errs, fmt.Errorf("history.backend %q is invalid; valid values: postgres, file", cfg.History.Backend))
	}

	// Telemetry
	if r := cfg.Telemetry.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio %.2f is out of range [0, 1]", r))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
