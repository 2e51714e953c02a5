package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/scrivener/internal/grammar"
	"github.com/MrWong99/scrivener/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned when a config entry names a backend
// no factory was registered for.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a backend from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is one kind's name-to-constructor table.
type factories[T any] struct {
	kind string
	byID map[string]Factory[T]
}

func (f *factories[T]) lookup(name string) (Factory[T], error) {
	build, ok := f.byID[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q (have %v)", ErrProviderNotRegistered, f.kind, name, f.names())
	}
	return build, nil
}

func (f *factories[T]) names() []string {
	return slices.Sorted(maps.Keys(f.byID))
}

// Registry resolves the backend names used in a config file to
// constructors. cmd/scrivener fills it with the built-in backends; tests
// register fakes. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	llm     factories[llm.Provider]
	grammar factories[grammar.Checker]
}

// NewRegistry returns a Registry with nothing registered.
func NewRegistry() *Registry {
	return &Registry{
		llm:     factories[llm.Provider]{kind: "llm", byID: map[string]Factory[llm.Provider]{}},
		grammar: factories[grammar.Checker]{kind: "grammar", byID: map[string]Factory[grammar.Checker]{}},
	}
}

// RegisterLLM adds or replaces the LLM factory called name.
func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) {
	r.mu.Lock()
	r.llm.byID[name] = f
	r.mu.Unlock()
}

// RegisterGrammar adds or replaces the grammar backend factory called name.
func (r *Registry) RegisterGrammar(name string, f Factory[grammar.Checker]) {
	r.mu.Lock()
	r.grammar.byID[name] = f
	r.mu.Unlock()
}

// CreateLLM builds the LLM provider entry names. The factory runs without
// the registry lock held.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	build, err := r.llm.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return build(entry)
}

// CreateGrammar builds the grammar backend entry names.
func (r *Registry) CreateGrammar(entry ProviderEntry) (grammar.Checker, error) {
	r.mu.RLock()
	build, err := r.grammar.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return build(entry)
}
