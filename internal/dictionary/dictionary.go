// Package dictionary loads the term-frequency dictionaries used by the fuzzy
// spelling corrector.
//
// A dictionary file is line oriented. Each line holds at least two columns, a
// term and its occurrence count, separated by whitespace or a configurable
// separator. The columns holding the term and the count are selected by
// zero-based index so that files exported by other tools can be loaded
// unchanged:
//
//	the 23135851162
//	of 13151942776
//
// A [Dictionary] is immutable once loaded and safe for concurrent use.
package dictionary

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// ErrConfiguration is returned when a dictionary cannot be loaded at startup
// (missing file, unreadable file, or no usable entries). It is fatal to the
// whole pipeline; callers should abort the process.
var ErrConfiguration = errors.New("dictionary: configuration error")

// Option configures [Load] and [LoadFromReader].
type Option func(*loadOptions)

type loadOptions struct {
	termIndex  int
	countIndex int
	separator  string
}

// WithTermIndex selects the zero-based column holding the term. Default: 0.
func WithTermIndex(i int) Option {
	return func(o *loadOptions) { o.termIndex = i }
}

// WithCountIndex selects the zero-based column holding the frequency.
// Default: 1.
func WithCountIndex(i int) Option {
	return func(o *loadOptions) { o.countIndex = i }
}

// WithSeparator sets the column separator. An empty separator (the default)
// splits on runs of whitespace.
func WithSeparator(sep string) Option {
	return func(o *loadOptions) { o.separator = sep }
}

// Dictionary maps terms to their occurrence frequency. Terms are stored
// case-sensitively, exactly as loaded.
type Dictionary struct {
	freq map[string]int64
}

// New builds a Dictionary from an in-memory map. The map is copied.
func New(entries map[string]int64) *Dictionary {
	d := &Dictionary{freq: make(map[string]int64, len(entries))}
	for term, n := range entries {
		d.freq[term] = n
	}
	return d
}

// Load opens the file at path and decodes it with [LoadFromReader]. A missing
// or unreadable file yields an error wrapping [ErrConfiguration].
func Load(path string, opts ...Option) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %w", ErrConfiguration, path, err)
	}
	defer f.Close()

	d, err := LoadFromReader(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: load %q: %w", ErrConfiguration, path, err)
	}
	slog.Info("dictionary loaded", "path", path, "terms", d.Len())
	return d, nil
}

// LoadFromReader decodes dictionary lines from r. Lines that are blank, have
// too few columns, or carry a non-numeric count are skipped. When a term
// appears more than once the counts are summed.
func LoadFromReader(r io.Reader, opts ...Option) (*Dictionary, error) {
	o := loadOptions{termIndex: 0, countIndex: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.termIndex < 0 || o.countIndex < 0 {
		return nil, fmt.Errorf("dictionary: negative column index (term %d, count %d)", o.termIndex, o.countIndex)
	}
	if o.termIndex == o.countIndex {
		return nil, fmt.Errorf("dictionary: term and count share column %d", o.termIndex)
	}

	d := &Dictionary{freq: make(map[string]int64)}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	skipped := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		cols := split(line, o.separator)
		if len(cols) <= max(o.termIndex, o.countIndex) {
			skipped++
			continue
		}
		term := strings.TrimSpace(cols[o.termIndex])
		count, err := strconv.ParseInt(strings.TrimSpace(cols[o.countIndex]), 10, 64)
		if term == "" || err != nil || count < 0 {
			skipped++
			continue
		}
		d.freq[term] += count
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("dictionary: scan: %w", err)
	}
	if skipped > 0 {
		slog.Debug("dictionary lines skipped", "count", skipped)
	}
	if len(d.freq) == 0 {
		return nil, fmt.Errorf("%w: no entries", ErrConfiguration)
	}
	return d, nil
}

func split(line, sep string) []string {
	if sep == "" {
		return strings.Fields(line)
	}
	return strings.Split(line, sep)
}

// Frequency returns the count stored for term and whether term is present.
func (d *Dictionary) Frequency(term string) (int64, bool) {
	n, ok := d.freq[term]
	return n, ok
}

// Len returns the number of distinct terms.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.freq)
}

// Each calls fn for every term. Iteration order is unspecified.
func (d *Dictionary) Each(fn func(term string, freq int64)) {
	for term, n := range d.freq {
		fn(term, n)
	}
}
