// Package grammar runs rule-based grammar correction through a remote
// checker and applies the suggested fixes as positional patches.
//
// A [Checker] returns [Match] values: character ranges of the input with
// suggested replacements. [Stage] gates calls with a [throttle.Throttle],
// bounds them with a timeout and turns the first suggestion of every match
// into a [patch.Edit]. Any failure leaves the text as it was.
package grammar

import (
	"context"
	"errors"

	"github.com/MrWong99/scrivener/internal/patch"
)

// ErrRemoteUnavailable is returned by checkers when the backend cannot be
// reached, times out, answers with a non-2xx status, or is shed by a circuit
// breaker.
var ErrRemoteUnavailable = errors.New("grammar: remote checker unavailable")

// DefaultLanguage is the language code sent when a caller names none.
const DefaultLanguage = "en-US"

// Match is one problem reported by a checker.
type Match struct {
	// Offset is the start of the flagged range in code points.
	Offset int `json:"offset"`

	// Length is the size of the flagged range in code points.
	Length int `json:"length"`

	// Replacements holds the suggested fixes, best first. May be empty.
	Replacements []string `json:"replacements"`

	// Message is a human-readable explanation.
	Message string `json:"message,omitempty"`

	// RuleID identifies the checker rule that fired.
	RuleID string `json:"rule_id,omitempty"`
}

// Checker reports grammar problems in text. Implementations must be safe for
// concurrent use and must honour ctx cancellation.
type Checker interface {
	Check(ctx context.Context, text, language string) ([]Match, error)
}

// Edits converts matches into patch edits using the first replacement of
// each. Matches without a replacement are skipped. Service order is kept.
func Edits(matches []Match) []patch.Edit {
	edits := make([]patch.Edit, 0, len(matches))
	for _, m := range matches {
		if len(m.Replacements) == 0 {
			continue
		}
		edits = append(edits, patch.Edit{
			Offset:      m.Offset,
			Length:      m.Length,
			Replacement: m.Replacements[0],
		})
	}
	return edits
}
