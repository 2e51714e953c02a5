package config

import (
	"reflect"
	"slices"
	"time"
)

// ConfigDiff describes what changed between two configs.
// Hot-applicable changes carry their new value; everything else only sets
// RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	MinIntervalChanged bool
	NewMinInterval     time.Duration

	// RestartRequired names the sections whose changes only take effect
	// after a restart, in schema order.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.MinIntervalChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Grammar.MinInterval != new.Grammar.MinInterval {
		d.MinIntervalChanged = true
		d.NewMinInterval = new.Grammar.MinInterval
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if !serverEqual(oldServer, newServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !slices.Equal(old.Dictionaries.Languages, new.Dictionaries.Languages) || old.Dictionaries.Default != new.Dictionaries.Default {
		d.RestartRequired = append(d.RestartRequired, "dictionaries")
	}
	if old.Spell != new.Spell {
		d.RestartRequired = append(d.RestartRequired, "spell")
	}
	if !grammarEqual(old.Grammar, new.Grammar) {
		d.RestartRequired = append(d.RestartRequired, "grammar")
	}
	if !parserEqual(old.Parser, new.Parser) {
		d.RestartRequired = append(d.RestartRequired, "parser")
	}
	if !llmEqual(old.LLM, new.LLM) {
		d.RestartRequired = append(d.RestartRequired, "llm")
	}
	if old.History != new.History {
		d.RestartRequired = append(d.RestartRequired, "history")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}
	return d
}

func serverEqual(a, b ServerConfig) bool {
	tlsA, tlsB := a.TLS, b.TLS
	a.TLS, b.TLS = nil, nil
	if a != b {
		return false
	}
	if tlsA == nil || tlsB == nil {
		return tlsA == tlsB
	}
	return *tlsA == *tlsB
}

// grammarEqual ignores MinInterval, which is hot-applied.
func grammarEqual(a, b GrammarConfig) bool {
	if a.Language != b.Language || a.Timeout != b.Timeout || a.Breaker != b.Breaker {
		return false
	}
	return slices.EqualFunc(a.Backends, b.Backends, entryEqual)
}

func parserEqual(a, b ParserConfig) bool {
	return a.URL == b.URL && a.Endpoint == b.Endpoint && a.Timeout == b.Timeout &&
		slices.Equal(a.DisabledRules, b.DisabledRules)
}

func llmEqual(a, b LLMConfig) bool {
	if a.MaxTokens != b.MaxTokens {
		return false
	}
	if (a.Temperature == nil) != (b.Temperature == nil) {
		return false
	}
	if a.Temperature != nil && *a.Temperature != *b.Temperature {
		return false
	}
	return slices.EqualFunc(a.Providers, b.Providers, entryEqual)
}

func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, va := range a.Options {
		vb, ok := b.Options[k]
		if !ok || !reflect.DeepEqual(va, vb) {
			return false
		}
	}
	return true
}
