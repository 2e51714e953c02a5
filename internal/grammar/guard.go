package grammar

import (
	"context"
	"fmt"

	"github.com/MrWong99/scrivener/internal/resilience"
)

// Guarded is a [Checker] that puts every backend behind a circuit breaker and
// fails over between them in registration order.
type Guarded struct {
	group *resilience.FallbackGroup[Checker]
}

var _ Checker = (*Guarded)(nil)

// NewGuarded returns a Guarded checker preferring primary.
func NewGuarded(primary Checker, primaryName string, cfg resilience.FallbackConfig) *Guarded {
	return &Guarded{group: resilience.NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (g *Guarded) AddFallback(name string, c Checker) {
	g.group.AddFallback(name, c)
}

// Check asks the first healthy backend. When every backend fails the error
// wraps both [ErrRemoteUnavailable] and the last backend error.
func (g *Guarded) Check(ctx context.Context, text, language string) ([]Match, error) {
	matches, err := resilience.ExecuteWithResult(g.group, func(c Checker) ([]Match, error) {
		return c.Check(ctx, text, language)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	return matches, nil
}

// Statuses reports the breaker state of every backend.
func (g *Guarded) Statuses() []resilience.Status {
	return g.group.Statuses()
}
