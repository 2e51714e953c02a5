// Package spell implements fuzzy single-word spelling correction against a
// term-frequency [dictionary.Dictionary].
//
// The [Corrector] is used on the interactive keystroke path: every time the
// user finishes a word, the last word of the fragment is looked up and
// replaced by the closest dictionary term. Closeness is the optimal string
// alignment distance (insertions, deletions, substitutions, and adjacent
// transpositions), bounded by a maximum edit distance. Among candidates at
// the same distance the more frequent term wins, and remaining ties are
// broken by lexical order, so the result is fully deterministic.
//
// Terms are bucketed by rune length at construction time. A lookup only
// compares terms whose length differs from the input by at most the edit
// bound, since no other term can be within range.
//
// A Corrector is read-only after [New] and safe for concurrent use.
package spell

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/scrivener/internal/dictionary"
)

const (
	defaultMaxEditDistance = 2
	defaultCountThreshold  = 2
)

// Suggestion is a dictionary term proposed as the correction of a word.
type Suggestion struct {
	// Term is the dictionary term, with the casing it was loaded with.
	Term string

	// Distance is the edit distance between the input word and Term.
	Distance int

	// Frequency is the occurrence count of Term in the dictionary.
	Frequency int64
}

// better reports whether s ranks ahead of o: lower distance first, then
// higher frequency, then lexical order.
func (s Suggestion) better(o Suggestion) bool {
	if s.Distance != o.Distance {
		return s.Distance < o.Distance
	}
	if s.Frequency != o.Frequency {
		return s.Frequency > o.Frequency
	}
	return s.Term < o.Term
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithMaxEditDistance sets the largest edit distance at which a dictionary
// term is still considered a candidate. Default: 2.
func WithMaxEditDistance(d int) Option {
	return func(c *Corrector) {
		if d >= 0 {
			c.maxDistance = d
		}
	}
}

// WithCountThreshold sets the minimum frequency a term needs to count as a
// correct spelling. Terms below the threshold are never suggested and never
// accepted as-is. Default: 2, so single-occurrence entries are treated as
// noise.
func WithCountThreshold(n int64) Option {
	return func(c *Corrector) {
		if n >= 0 {
			c.countThreshold = n
		}
	}
}

type entry struct {
	term string
	freq int64
}

// Corrector looks up the closest dictionary term for a word.
type Corrector struct {
	maxDistance    int
	countThreshold int64

	// byLen holds the eligible terms keyed by rune count.
	byLen map[int][]entry
	terms map[string]int64
}

// New builds a Corrector over d. It fails with an error wrapping
// [dictionary.ErrConfiguration] when d is nil or holds no eligible term.
func New(d *dictionary.Dictionary, opts ...Option) (*Corrector, error) {
	c := &Corrector{
		maxDistance:    defaultMaxEditDistance,
		countThreshold: defaultCountThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	if d == nil || d.Len() == 0 {
		return nil, fmt.Errorf("spell: %w: dictionary not loaded", dictionary.ErrConfiguration)
	}

	c.byLen = make(map[int][]entry)
	c.terms = make(map[string]int64, d.Len())
	d.Each(func(term string, freq int64) {
		if freq < c.countThreshold {
			return
		}
		n := utf8.RuneCountInString(term)
		c.byLen[n] = append(c.byLen[n], entry{term: term, freq: freq})
		c.terms[term] = freq
	})
	if len(c.terms) == 0 {
		return nil, fmt.Errorf("spell: %w: no term reaches count threshold %d", dictionary.ErrConfiguration, c.countThreshold)
	}
	// Sorted buckets make scan order, and therefore results, independent of
	// map iteration.
	for n := range c.byLen {
		bucket := c.byLen[n]
		sort.Slice(bucket, func(i, j int) bool { return bucket[i].term < bucket[j].term })
	}
	return c, nil
}

// MaxEditDistance returns the configured edit bound.
func (c *Corrector) MaxEditDistance() int {
	return c.maxDistance
}

// Lookup returns the closest dictionary term to word. ok is false when no
// term lies within the maximum edit distance; that is a normal miss, not an
// error.
func (c *Corrector) Lookup(word string) (s Suggestion, ok bool) {
	if word == "" {
		return Suggestion{}, false
	}
	if freq, exact := c.terms[word]; exact {
		return Suggestion{Term: word, Distance: 0, Frequency: freq}, true
	}

	n := utf8.RuneCountInString(word)
	for l := n - c.maxDistance; l <= n+c.maxDistance; l++ {
		for _, e := range c.byLen[l] {
			dist := matchr.OSA(word, e.term)
			if dist > c.maxDistance {
				continue
			}
			cand := Suggestion{Term: e.term, Distance: dist, Frequency: e.freq}
			if !ok || cand.better(s) {
				s, ok = cand, true
			}
		}
	}
	return s, ok
}

// CorrectLastWord replaces the final whitespace-separated word of text with
// its closest dictionary term and returns the words joined by single spaces.
// Original inter-word spacing is not preserved. Empty or whitespace-only text
// is returned unchanged, as is text whose last word has no candidate.
func (c *Corrector) CorrectLastWord(text string) string {
	corrected, _, _ := c.correctLastWord(text)
	return corrected
}

// CorrectLastWordDetail behaves like [Corrector.CorrectLastWord] and also
// returns the replaced word and the chosen suggestion. changed is false when
// the last word was left as is.
func (c *Corrector) CorrectLastWordDetail(text string) (corrected, original string, s Suggestion, changed bool) {
	corrected, original, s = c.correctLastWord(text)
	return corrected, original, s, s.Term != "" && s.Term != original
}

func (c *Corrector) correctLastWord(text string) (string, string, Suggestion) {
	if strings.TrimSpace(text) == "" {
		return text, "", Suggestion{}
	}
	words := strings.Fields(text)
	last := words[len(words)-1]
	s, ok := c.Lookup(last)
	if ok {
		words[len(words)-1] = s.Term
	}
	return strings.Join(words, " "), last, s
}
