// Package history keeps an append-only audit log of corrections.
//
// Every request that goes through the correction pipeline produces a
// [Record]. Stores are write-mostly; [Store.Recent] exists for the history
// endpoint and for debugging. Callers treat write failures as non-fatal.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Correction paths.
const (
	PathKeystroke = "keystroke"
	PathSentence  = "sentence"
)

const (
	// DefaultLimit is the number of records [Store.Recent] callers get when
	// they ask for zero or fewer.
	DefaultLimit = 50

	// MaxLimit caps a single [Store.Recent] call.
	MaxLimit = 500
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("history: store closed")

// Correction is one substitution inside a [Record].
type Correction struct {
	Original   string  `json:"original"`
	Corrected  string  `json:"corrected"`
	Method     string  `json:"method"`
	Confidence float64 `json:"confidence"`
}

// Record is one corrected request.
type Record struct {
	ID          string       `json:"id"`
	Timestamp   time.Time    `json:"timestamp"`
	Path        string       `json:"path"`
	Language    string       `json:"language,omitempty"`
	Input       string       `json:"input"`
	Output      string       `json:"output"`
	Corrections []Correction `json:"corrections"`
}

// Store persists records. Implementations must be safe for concurrent use.
type Store interface {
	// Append stores r. An empty ID or zero Timestamp is filled in.
	Append(ctx context.Context, r Record) error

	// Recent returns up to limit records, newest first. limit is clamped
	// with [ClampLimit].
	Recent(ctx context.Context, limit int) ([]Record, error)
}

// ClampLimit maps a requested limit into [1, MaxLimit], using DefaultLimit
// for non-positive values.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// fill assigns an ID and timestamp when missing and guarantees a non-nil
// Corrections slice.
func fill(r Record, now func() time.Time) Record {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = now().UTC()
	}
	if r.Corrections == nil {
		r.Corrections = []Correction{}
	}
	return r
}
