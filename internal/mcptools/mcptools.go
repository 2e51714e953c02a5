// Package mcptools exposes the correction operations as Model Context
// Protocol tools so that agents can call them directly.
//
// Four tools are registered by [NewServer]:
//   - "correct_last_word": fuzzy-corrects the last word of a fragment.
//   - "correct_sentence":  runs the full sentence path.
//   - "apply_edits":       applies positional edits to a text.
//   - "detect_tense":      reports the tense of a sentence.
//
// All handlers are safe for concurrent use.
package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/scrivener/internal/correct"
	"github.com/MrWong99/scrivener/internal/observe"
	"github.com/MrWong99/scrivener/internal/patch"
	"github.com/MrWong99/scrivener/internal/tense"
)

// Tool names.
const (
	ToolCorrectLastWord = "correct_last_word"
	ToolCorrectSentence = "correct_sentence"
	ToolApplyEdits      = "apply_edits"
	ToolDetectTense     = "detect_tense"
)

// Corrector is the subset of [correct.Pipeline] the tools call.
type Corrector interface {
	Autocorrect(ctx context.Context, req correct.AutocorrectRequest) (*correct.Result, error)
	CorrectSentenceIn(ctx context.Context, text, language string) (*correct.Result, error)
	DetectTense(ctx context.Context, text string) tense.Tense
}

var _ Corrector = (*correct.Pipeline)(nil)

type textArgs struct {
	Text     string `json:"text" jsonschema:"the text to correct"`
	Language string `json:"language,omitempty" jsonschema:"language code such as en or vi; the server default when empty"`
}

type correctionResult struct {
	CorrectedText string               `json:"corrected_text"`
	Corrections   []correct.Correction `json:"corrections"`
}

type editArg struct {
	Offset      int    `json:"offset" jsonschema:"start of the replaced range in characters of the original text"`
	Length      int    `json:"length" jsonschema:"number of characters replaced"`
	Replacement string `json:"replacement" jsonschema:"text inserted in place of the range"`
}

type applyEditsArgs struct {
	Text         string    `json:"text" jsonschema:"the original text"`
	Edits        []editArg `json:"edits" jsonschema:"edits with offsets into the original text"`
	DropOverlaps bool      `json:"drop_overlaps,omitempty" jsonschema:"drop edits overlapping an earlier one instead of applying them literally"`
}

type applyEditsResult struct {
	Text    string `json:"text"`
	Dropped int    `json:"dropped"`
}

type tenseArgs struct {
	Text string `json:"text" jsonschema:"the sentence to inspect"`
}

type tenseResult struct {
	Tense string `json:"tense" jsonschema:"one of present, past, future, unknown"`
}

// Option is a functional option for [NewServer].
type Option func(*tools)

// WithMetrics sets the instruments tool calls are counted on.
// Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(t *tools) {
		if m != nil {
			t.metrics = m
		}
	}
}

type tools struct {
	c       Corrector
	metrics *observe.Metrics
}

// NewServer returns an MCP server with the correction tools registered.
func NewServer(c Corrector, version string, opts ...Option) *mcp.Server {
	t := &tools{c: c, metrics: observe.DefaultMetrics()}
	for _, o := range opts {
		o(t)
	}

	s := mcp.NewServer(&mcp.Implementation{Name: "scrivener", Version: version}, nil)
	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolCorrectLastWord,
		Description: "Corrects the spelling of the last word of a text fragment against a frequency dictionary.",
	}, t.correctLastWord)
	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolCorrectSentence,
		Description: "Normalizes tense and subject-verb agreement, then applies remote grammar fixes to a sentence.",
	}, t.correctSentence)
	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolApplyEdits,
		Description: "Applies positional text edits whose offsets all refer to the original text.",
	}, t.applyEdits)
	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolDetectTense,
		Description: "Detects whether a sentence is in present, past, or future tense.",
	}, t.detectTense)
	return s
}

// Handler serves s over the streamable HTTP transport.
func Handler(s *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s }, nil)
}

func (t *tools) correctLastWord(ctx context.Context, _ *mcp.CallToolRequest, in textArgs) (*mcp.CallToolResult, correctionResult, error) {
	res, err := t.c.Autocorrect(ctx, correct.AutocorrectRequest{
		Text:      in.Text,
		EventType: correct.EventSpace,
		Language:  in.Language,
	})
	t.record(ctx, ToolCorrectLastWord, err)
	if err != nil {
		return nil, correctionResult{}, err
	}
	return nil, correctionResult{CorrectedText: res.Corrected, Corrections: res.Corrections}, nil
}

func (t *tools) correctSentence(ctx context.Context, _ *mcp.CallToolRequest, in textArgs) (*mcp.CallToolResult, correctionResult, error) {
	res, err := t.c.CorrectSentenceIn(ctx, in.Text, in.Language)
	t.record(ctx, ToolCorrectSentence, err)
	if err != nil {
		return nil, correctionResult{}, err
	}
	return nil, correctionResult{CorrectedText: res.Corrected, Corrections: res.Corrections}, nil
}

func (t *tools) applyEdits(ctx context.Context, _ *mcp.CallToolRequest, in applyEditsArgs) (*mcp.CallToolResult, applyEditsResult, error) {
	edits := make([]patch.Edit, len(in.Edits))
	for i, e := range in.Edits {
		edits[i] = patch.Edit{Offset: e.Offset, Length: e.Length, Replacement: e.Replacement}
	}
	dropped := 0
	if in.DropOverlaps {
		edits, dropped = patch.DropOverlaps(edits)
	}
	out, err := patch.Apply(in.Text, edits)
	t.record(ctx, ToolApplyEdits, err)
	if err != nil {
		return nil, applyEditsResult{}, err
	}
	return nil, applyEditsResult{Text: out, Dropped: dropped}, nil
}

func (t *tools) detectTense(ctx context.Context, _ *mcp.CallToolRequest, in tenseArgs) (*mcp.CallToolResult, tenseResult, error) {
	tn := t.c.DetectTense(ctx, in.Text)
	t.record(ctx, ToolDetectTense, nil)
	return nil, tenseResult{Tense: tn.String()}, nil
}

func (t *tools) record(ctx context.Context, tool string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		observe.Logger(ctx).Debug("mcp tool failed", "tool", tool, "err", err)
	}
	t.metrics.RecordToolCall(ctx, tool, status)
}
