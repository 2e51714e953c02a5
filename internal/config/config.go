// Package config provides the configuration schema, loader, provider
// registry, and file watcher for the scrivener correction service.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the scrivener server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to the matching [slog.Level]. Unknown values map to Info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HistoryBackend selects where correction history is written.
type HistoryBackend string

const (
	// HistoryNone disables the history log.
	HistoryNone HistoryBackend = ""

	// HistoryPostgres writes to a PostgreSQL table.
	HistoryPostgres HistoryBackend = "postgres"

	// HistoryFile appends JSON lines to a local file.
	HistoryFile HistoryBackend = "file"
)

// IsValid reports whether b is a recognised history backend.
func (b HistoryBackend) IsValid() bool {
	switch b {
	case HistoryNone, HistoryPostgres, HistoryFile:
		return true
	}
	return false
}

// Config is the root configuration structure for scrivener.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Dictionaries DictionariesConfig `yaml:"dictionaries"`
	Spell        SpellConfig        `yaml:"spell"`
	Grammar      GrammarConfig      `yaml:"grammar"`
	Parser       ParserConfig       `yaml:"parser"`
	LLM          LLMConfig          `yaml:"llm"`
	History      HistoryConfig      `yaml:"history"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings for the HTTP server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// RateLimit is the global request budget in requests per second.
	// Zero disables the limiter.
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the number of requests allowed to exceed RateLimit
	// momentarily. Defaults to twice the rate, at least 1.
	RateBurst int `yaml:"rate_burst"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds paths to the TLS certificate and private key files.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// DictionariesConfig lists the frequency dictionaries to load.
type DictionariesConfig struct {
	// Default is the language used when a request names none or an unknown
	// one. Must match one of Languages.
	Default string `yaml:"default"`

	Languages []DictionaryConfig `yaml:"languages"`
}

// DictionaryConfig describes one frequency file.
type DictionaryConfig struct {
	// Language is the code requests use to select this dictionary, e.g. "en".
	Language string `yaml:"language"`

	// Path is the location of the "term frequency" file.
	Path string `yaml:"path"`

	// TermIndex and CountIndex are the zero-based columns of the term and
	// its count. Defaults: 0 and 1.
	TermIndex  int `yaml:"term_index"`
	CountIndex int `yaml:"count_index"`

	// Separator splits columns. Empty means any run of whitespace.
	Separator string `yaml:"separator"`
}

// SpellConfig tunes the fuzzy word corrector.
type SpellConfig struct {
	MaxEditDistance int   `yaml:"max_edit_distance"`
	CountThreshold  int64 `yaml:"count_threshold"`
}

// GrammarConfig configures the remote grammar stage.
type GrammarConfig struct {
	// Language is sent to backends when a request names none.
	Language string `yaml:"language"`

	// Timeout bounds a single remote check.
	Timeout time.Duration `yaml:"timeout"`

	// MinInterval is the throttle spacing between remote calls.
	// Hot-reloadable.
	MinInterval time.Duration `yaml:"min_interval"`

	// Backends are tried in order; the first is primary. Name selects the
	// factory from the [Registry] ("languagetool" or "llm").
	Backends []ProviderEntry `yaml:"backends"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker placed in front of each grammar
// backend.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// ParserConfig points at the dependency parser service. An empty URL
// disables the tense stage.
type ParserConfig struct {
	URL      string        `yaml:"url"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`

	// DisabledRules names tense rewrite rules to skip, e.g. "modal".
	DisabledRules []string `yaml:"disabled_rules"`
}

// LLMConfig configures the language model used by the "llm" grammar backend.
type LLMConfig struct {
	// Providers are tried in order; the first is primary.
	Providers []ProviderEntry `yaml:"providers"`

	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

// ProviderEntry is the common configuration shape for a pluggable backend.
type ProviderEntry struct {
	// Name selects the implementation, e.g. "languagetool", "openai", "ollama".
	Name string `yaml:"name"`

	// APIKey is the authentication key, if required.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model for LLM providers.
	Model string `yaml:"model"`

	// Options holds provider-specific settings, e.g. "username" or
	// "disabled_rules" for LanguageTool.
	Options map[string]any `yaml:"options"`
}

// HistoryConfig configures the correction history log.
type HistoryConfig struct {
	Backend HistoryBackend `yaml:"backend"`

	// PostgresDSN is used by the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`

	// Path is used by the file backend.
	Path string `yaml:"path"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// StringOption returns Options[key] when it is a string.
func (e ProviderEntry) StringOption(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// StringsOption returns Options[key] as a string slice. A YAML sequence of
// strings and a single comma-free string are both accepted.
func (e ProviderEntry) StringsOption(key string) []string {
	switch v := e.Options[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	}
	return nil
}
