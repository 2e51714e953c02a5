// Package mock provides a scriptable [grammar.Checker] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/scrivener/internal/grammar"
)

// CheckCall records one invocation of [Checker.Check].
type CheckCall struct {
	Text     string
	Language string
}

// Checker is a mock [grammar.Checker]. Set Matches and Err for fixed replies
// or CheckFunc for full control.
type Checker struct {
	mu sync.Mutex

	Matches   []grammar.Match
	Err       error
	CheckFunc func(ctx context.Context, text, language string) ([]grammar.Match, error)

	CheckCalls []CheckCall
}

var _ grammar.Checker = (*Checker)(nil)

// Check records the call and returns the scripted reply.
func (c *Checker) Check(ctx context.Context, text, language string) ([]grammar.Match, error) {
	c.mu.Lock()
	c.CheckCalls = append(c.CheckCalls, CheckCall{Text: text, Language: language})
	fn, matches, err := c.CheckFunc, c.Matches, c.Err
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, language)
	}
	return matches, err
}

// Calls returns a copy of the recorded calls.
func (c *Checker) Calls() []CheckCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CheckCall(nil), c.CheckCalls...)
}
