// Package patch applies positional text edits to a string.
//
// An [Edit] replaces the characters in [Offset, Offset+Length) of the
// original string with a replacement. Offsets and lengths count Unicode code
// points and always refer to the original string, never to a string that has
// already been partially edited. [Apply] therefore splices edits from the
// highest offset down: an edit never moves the text that lies before it, so
// the offsets of the edits still waiting to be applied stay valid.
package patch

import (
	"errors"
	"fmt"
	"sort"
)

// ErrOutOfRange is returned by [Apply] when an edit does not fit inside the
// original string. It signals a contract violation by whoever produced the
// edits; edits are never clamped.
var ErrOutOfRange = errors.New("patch: edit out of range")

// Edit is a single positional replacement.
type Edit struct {
	// Offset is the index of the first replaced code point in the original.
	Offset int `json:"offset"`

	// Length is the number of code points replaced. Zero means insertion.
	Length int `json:"length"`

	// Replacement is the text spliced in place of the range.
	Replacement string `json:"replacement"`
}

// End returns the exclusive end offset of the edited range.
func (e Edit) End() int {
	return e.Offset + e.Length
}

// Apply returns original with every edit applied. Edits are validated first;
// if any edit is negative or exceeds the original's length, Apply returns
// original unchanged together with an error wrapping [ErrOutOfRange].
//
// The caller's slice is not reordered. Overlapping edits are applied
// literally in descending offset order; use [Overlapping] to detect them.
func Apply(original string, edits []Edit) (string, error) {
	if len(edits) == 0 {
		return original, nil
	}

	text := []rune(original)
	n := len(text)
	for i, e := range edits {
		if e.Offset < 0 || e.Length < 0 || e.End() > n {
			return original, fmt.Errorf("%w: edit %d {offset %d, length %d} on text of length %d",
				ErrOutOfRange, i, e.Offset, e.Length, n)
		}
	}

	sorted := Descending(edits)
	for _, e := range sorted {
		repl := []rune(e.Replacement)
		out := make([]rune, 0, len(text)-e.Length+len(repl))
		out = append(out, text[:e.Offset]...)
		out = append(out, repl...)
		out = append(out, text[e.End():]...)
		text = out
	}
	return string(text), nil
}

// Descending returns a copy of edits sorted by offset, highest first. Edits
// sharing an offset keep their input order.
func Descending(edits []Edit) []Edit {
	sorted := make([]Edit, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Offset > sorted[j].Offset
	})
	return sorted
}

// Overlapping reports whether any two edits touch a common code point.
// Two insertions at the same offset also count as overlapping, since their
// relative order in the output is then ambiguous.
func Overlapping(edits []Edit) bool {
	if len(edits) < 2 {
		return false
	}
	sorted := Descending(edits)
	for i := 1; i < len(sorted); i++ {
		hi, lo := sorted[i-1], sorted[i]
		if lo.End() > hi.Offset || lo.Offset == hi.Offset {
			return true
		}
	}
	return false
}

// DropOverlaps returns the edits that do not overlap any edit earlier in the
// input order, preserving that order, plus the number of edits dropped.
func DropOverlaps(edits []Edit) ([]Edit, int) {
	kept := make([]Edit, 0, len(edits))
	dropped := 0
	for _, e := range edits {
		clash := false
		for _, k := range kept {
			if e.Offset == k.Offset || (e.Offset < k.End() && k.Offset < e.End()) {
				clash = true
				break
			}
		}
		if clash {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	return kept, dropped
}
