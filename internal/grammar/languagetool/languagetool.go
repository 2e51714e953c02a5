// Package languagetool is a [grammar.Checker] for servers speaking the
// LanguageTool HTTP API.
//
// Checks are sent as a form POST to /v2/check. The reply's match offsets are
// counted in code points, which is the unit [patch.Apply] expects.
//
//	c, err := languagetool.New("http://localhost:8010",
//	    languagetool.WithTimeout(2*time.Second),
//	)
//	matches, err := c.Check(ctx, "I has a cat", "en-US")
package languagetool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/scrivener/internal/grammar"
)

var _ grammar.Checker = (*Client)(nil)

const (
	checkEndpoint   = "/v2/check"
	defaultTimeout  = 5 * time.Second
	maxResponseSize = 4 << 20
)

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithTimeout sets the HTTP client timeout. The stage timeout usually fires
// first; this one guards direct callers. Default: 5s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithCredentials sets the username and API key of a premium account.
func WithCredentials(username, apiKey string) Option {
	return func(c *Client) {
		c.username = username
		c.apiKey = apiKey
	}
}

// WithLevel sets the rule level, "default" or "picky".
func WithLevel(level string) Option {
	return func(c *Client) {
		c.level = level
	}
}

// WithDisabledRules turns off the given rule IDs on every request.
func WithDisabledRules(ids ...string) Option {
	return func(c *Client) {
		c.disabledRules = append(c.disabledRules, ids...)
	}
}

// Client calls a LanguageTool server. It is safe for concurrent use.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	username      string
	apiKey        string
	level         string
	disabledRules []string
}

// New returns a Client for the server at baseURL, e.g.
// "https://api.languagetool.org".
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("languagetool: base URL must not be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("languagetool: parse base URL: %w", err)
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type checkResponse struct {
	Matches []struct {
		Message      string `json:"message"`
		Offset       int    `json:"offset"`
		Length       int    `json:"length"`
		Replacements []struct {
			Value string `json:"value"`
		} `json:"replacements"`
		Rule struct {
			ID string `json:"id"`
		} `json:"rule"`
	} `json:"matches"`
}

// Check sends text for checking. Transport failures and non-2xx replies wrap
// [grammar.ErrRemoteUnavailable]; ctx errors are wrapped as well so callers
// can tell a timeout apart.
func (c *Client) Check(ctx context.Context, text, language string) ([]grammar.Match, error) {
	if language == "" {
		language = grammar.DefaultLanguage
	}
	form := url.Values{}
	form.Set("text", text)
	form.Set("language", language)
	if c.username != "" {
		form.Set("username", c.username)
		form.Set("apiKey", c.apiKey)
	}
	if c.level != "" {
		form.Set("level", c.level)
	}
	if len(c.disabledRules) > 0 {
		form.Set("disabledRules", strings.Join(c.disabledRules, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+checkEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("languagetool: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: languagetool: %w", grammar.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: languagetool: status %d: %s",
			grammar.ErrRemoteUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var cr checkResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&cr); err != nil {
		return nil, fmt.Errorf("%w: languagetool: decode response: %w", grammar.ErrRemoteUnavailable, err)
	}

	matches := make([]grammar.Match, 0, len(cr.Matches))
	for _, m := range cr.Matches {
		repl := make([]string, 0, len(m.Replacements))
		for _, r := range m.Replacements {
			repl = append(repl, r.Value)
		}
		matches = append(matches, grammar.Match{
			Offset:       m.Offset,
			Length:       m.Length,
			Replacements: repl,
			Message:      m.Message,
			RuleID:       m.Rule.ID,
		})
	}
	return matches, nil
}
