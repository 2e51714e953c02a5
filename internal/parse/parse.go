// Package parse turns raw text into a dependency-parsed [tense.Sentence] by
// calling an external parser service.
//
// The service is treated as a black box that returns spaCy-style token
// records: each token carries its position, the position of its syntactic
// head, part-of-speech tags, a lemma, and a dependency label. The root token
// names itself as its head.
package parse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/scrivener/internal/tense"
)

// ErrUnavailable is returned when the parser service cannot be reached or
// answers with a non-2xx status.
var ErrUnavailable = errors.New("parse: parser unavailable")

// ErrMalformed is returned when the service's token list is inconsistent.
var ErrMalformed = errors.New("parse: malformed token list")

// Parser produces a dependency parse of a sentence.
type Parser interface {
	Parse(ctx context.Context, text string) (tense.Sentence, error)
}

// Compile-time interface assertion.
var _ Parser = (*HTTPParser)(nil)

const (
	defaultTimeout  = 2 * time.Second
	defaultEndpoint = "/parse"
	maxResponseSize = 4 << 20
)

// Token is one record of the service response.
type Token struct {
	ID    int    `json:"id"`
	Head  int    `json:"head"`
	POS   string `json:"pos"`
	Tag   string `json:"tag"`
	Dep   string `json:"dep"`
	Text  string `json:"text"`
	Lemma string `json:"lemma"`
}

type parseRequest struct {
	Text string `json:"text"`
}

type parseResponse struct {
	Tokens []Token `json:"tokens"`
}

// Option is a functional option for configuring an [HTTPParser].
type Option func(*HTTPParser)

// WithTimeout sets the per-request HTTP timeout. Default: 2s.
func WithTimeout(d time.Duration) Option {
	return func(p *HTTPParser) {
		if d > 0 {
			p.httpClient.Timeout = d
		}
	}
}

// WithEndpoint sets the request path appended to the base URL.
// Default: "/parse".
func WithEndpoint(path string) Option {
	return func(p *HTTPParser) {
		if path != "" {
			p.endpoint = "/" + strings.TrimLeft(path, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client. Its timeout is kept as set.
func WithHTTPClient(c *http.Client) Option {
	return func(p *HTTPParser) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// HTTPParser calls a parser service over HTTP. It is safe for concurrent use.
type HTTPParser struct {
	baseURL    string
	endpoint   string
	httpClient *http.Client
}

// NewHTTPParser returns a parser that POSTs {"text": ...} to baseURL plus
// the configured endpoint.
func NewHTTPParser(baseURL string, opts ...Option) (*HTTPParser, error) {
	if baseURL == "" {
		return nil, errors.New("parse: base URL must not be empty")
	}
	p := &HTTPParser{
		baseURL:    strings.TrimRight(baseURL, "/"),
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Parse sends text to the service and builds the token arena from the reply.
func (p *HTTPParser) Parse(ctx context.Context, text string) (tense.Sentence, error) {
	body, err := json.Marshal(parseRequest{Text: text})
	if err != nil {
		return tense.Sentence{}, fmt.Errorf("parse: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+p.endpoint, bytes.NewReader(body))
	if err != nil {
		return tense.Sentence{}, fmt.Errorf("parse: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return tense.Sentence{}, fmt.Errorf("%w: POST %s: %w", ErrUnavailable, p.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return tense.Sentence{}, fmt.Errorf("%w: POST %s returned status %d", ErrUnavailable, p.endpoint, resp.StatusCode)
	}

	var pr parseResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&pr); err != nil {
		return tense.Sentence{}, fmt.Errorf("parse: decode response: %w", err)
	}
	return FromTokens(pr.Tokens)
}

// FromTokens converts service records into a sentence arena. Records are
// ordered by ID; a record whose head is itself becomes the root. IDs must
// form the range 0..n-1 and every head must name one of them.
func FromTokens(records []Token) (tense.Sentence, error) {
	n := len(records)
	tokens := make([]tense.Token, n)
	seen := make([]bool, n)
	for _, r := range records {
		if r.ID < 0 || r.ID >= n || seen[r.ID] {
			return tense.Sentence{}, fmt.Errorf("%w: token id %d", ErrMalformed, r.ID)
		}
		if r.Head < 0 || r.Head >= n {
			return tense.Sentence{}, fmt.Errorf("%w: token %d has head %d", ErrMalformed, r.ID, r.Head)
		}
		seen[r.ID] = true

		head := r.Head
		if head == r.ID {
			head = tense.NoHead
		}
		tokens[r.ID] = tense.Token{
			Text:  r.Text,
			Lemma: r.Lemma,
			POS:   r.POS,
			Tag:   r.Tag,
			Dep:   r.Dep,
			Head:  head,
		}
	}
	return tense.Sentence{Tokens: tokens}, nil
}
