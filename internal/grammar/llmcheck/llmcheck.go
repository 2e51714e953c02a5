// Package llmcheck is a [grammar.Checker] backed by a language model.
//
// The model is asked for the same match list a rule-based server returns:
// offsets and lengths in characters plus a replacement. Replies are
// validated against the input; matches whose range does not hold the quoted
// original text are discarded, since models miscount offsets.
package llmcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/scrivener/internal/grammar"
	"github.com/MrWong99/scrivener/pkg/provider/llm"
)

var _ grammar.Checker = (*Checker)(nil)

const (
	defaultTemperature = 0.0
	defaultMaxTokens   = 512
)

const systemPrompt = `You are a grammar checker for short English text typed in real time.

Find grammar errors only: subject-verb agreement, verb tense, articles, missing or doubled words.
Do NOT change spelling of names, style, tone, or punctuation unless it is clearly wrong.
Be conservative: when unsure, report nothing.

Offsets and lengths count Unicode characters from the start of the text, starting at 0.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "matches": [
    {"offset": <int>, "length": <int>, "original": "<exact text at that range>", "replacement": "<fix>", "message": "<short reason>"}
  ]
}

If the text is correct, return {"matches": []}.`

// llmResponse is the JSON structure the model is asked to produce.
type llmResponse struct {
	Matches []struct {
		Offset      int    `json:"offset"`
		Length      int    `json:"length"`
		Original    string `json:"original"`
		Replacement string `json:"replacement"`
		Message     string `json:"message"`
	} `json:"matches"`
}

// Option is a functional option for configuring a [Checker].
type Option func(*Checker)

// WithTemperature sets the sampling temperature. Default: 0.
func WithTemperature(temp float64) Option {
	return func(c *Checker) {
		c.temperature = temp
	}
}

// WithMaxTokens caps the reply length. Default: 512.
func WithMaxTokens(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// Checker asks an [llm.Provider] for grammar matches. It is safe for
// concurrent use.
type Checker struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
}

// New returns a Checker backed by provider.
func New(provider llm.Provider, opts ...Option) *Checker {
	c := &Checker{
		llm:         provider,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Check sends text to the model. A failed completion wraps
// [grammar.ErrRemoteUnavailable]. An unparseable reply is not an error: it
// yields no matches.
func (c *Checker) Check(ctx context.Context, text, language string) ([]grammar.Match, error) {
	if strings.TrimSpace(text) == "" {
		return []grammar.Match{}, nil
	}
	user := text
	if language != "" && !strings.HasPrefix(strings.ToLower(language), "en") {
		user = fmt.Sprintf("Language: %s\n\nText: %s", language, text)
	}

	maxTokens := c.maxTokens
	if limit := c.llm.Capabilities().MaxOutputTokens; limit > 0 && maxTokens > limit {
		maxTokens = limit
	}
	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Temperature:  c.temperature,
		MaxTokens:    maxTokens,
		JSONOutput:   true,
		Messages:     []llm.Message{{Role: "user", Content: user}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: llmcheck: complete: %w", grammar.ErrRemoteUnavailable, err)
	}

	matches, parseErr := parseResponse(resp.Content, text)
	if parseErr != nil {
		return []grammar.Match{}, nil //nolint:nilerr // unparseable reply means no corrections
	}
	return matches, nil
}

// parseResponse decodes the model output and keeps the matches whose range
// lies inside text and, when the model quoted it, holds the quoted original.
func parseResponse(content, text string) ([]grammar.Match, error) {
	var r llmResponse
	if err := json.Unmarshal([]byte(stripMarkdown(content)), &r); err != nil {
		return nil, fmt.Errorf("llmcheck: parse response: %w", err)
	}

	runes := []rune(text)
	matches := make([]grammar.Match, 0, len(r.Matches))
	for _, m := range r.Matches {
		if m.Offset < 0 || m.Length < 0 || m.Offset+m.Length > len(runes) {
			continue
		}
		span := string(runes[m.Offset : m.Offset+m.Length])
		if m.Original != "" && m.Original != span {
			continue
		}
		if span == m.Replacement {
			continue
		}
		matches = append(matches, grammar.Match{
			Offset:       m.Offset,
			Length:       m.Length,
			Replacements: []string{m.Replacement},
			Message:      m.Message,
			RuleID:       "LLM",
		})
	}
	return matches, nil
}

// stripMarkdown removes the ```json fences some models wrap around output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
