// Package mock provides an in-memory [history.Store] for tests.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/scrivener/internal/history"
)

// Store keeps appended records in memory. AppendErr and RecentErr, when set,
// are returned instead.
type Store struct {
	mu sync.Mutex

	AppendErr error
	RecentErr error

	Records []history.Record
}

var _ history.Store = (*Store)(nil)

// Append records r unless AppendErr is set.
func (s *Store) Append(_ context.Context, r history.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return s.AppendErr
	}
	s.Records = append(s.Records, r)
	return nil
}

// Recent returns the newest records first.
func (s *Store) Recent(_ context.Context, limit int) ([]history.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecentErr != nil {
		return nil, s.RecentErr
	}
	out := slices.Clone(s.Records)
	slices.Reverse(out)
	if n := history.ClampLimit(limit); len(out) > n {
		out = out[:n]
	}
	if out == nil {
		out = []history.Record{}
	}
	return out, nil
}

// All returns a copy of every appended record in order.
func (s *Store) All() []history.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.Records)
}
