// Package correct composes the correction stages into the two request paths
// the service offers.
//
// The keystroke path fixes the last word of a fragment with the fuzzy
// spelling corrector whenever the user finishes a word. The sentence path
// parses the sentence, normalizes tense and agreement, then hands the result
// to the throttled remote grammar stage.
//
// Every stage is optional and every stage failure degrades to "leave the
// text as it was". Only context cancellation reaches the caller.
package correct

import (
	"context"
	"time"

	"github.com/MrWong99/scrivener/internal/grammar"
	"github.com/MrWong99/scrivener/internal/history"
	"github.com/MrWong99/scrivener/internal/observe"
	"github.com/MrWong99/scrivener/internal/parse"
	"github.com/MrWong99/scrivener/internal/spell"
	"github.com/MrWong99/scrivener/internal/tense"
)

// EventSpace is the keystroke event that triggers last-word correction.
const EventSpace = "space"

// Correction methods.
const (
	MethodFuzzy   = "fuzzy"
	MethodTense   = "tense"
	MethodGrammar = "grammar"
)

// Confidence assigned to the heuristic stages. Fuzzy confidence is derived
// from the edit distance instead.
const (
	tenseConfidence   = 0.6
	grammarConfidence = 0.9
)

// Correction is one substitution made by a stage.
type Correction struct {
	Original   string  `json:"original"`
	Corrected  string  `json:"corrected"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

// Result is the outcome of a correction request.
type Result struct {
	Input     string `json:"input"`
	Corrected string `json:"corrected_text"`

	// Corrections lists substitutions in the order stages made them.
	// Never nil.
	Corrections []Correction `json:"corrections"`
}

// AutocorrectRequest is one keystroke event.
type AutocorrectRequest struct {
	Text      string `json:"text"`
	EventType string `json:"event_type"`
	Language  string `json:"language"`
}

// Option is a functional option for configuring a [Pipeline].
type Option func(*Pipeline)

// WithSpeller enables the keystroke path. Without it keystrokes are echoed.
func WithSpeller(s *spell.Set) Option {
	return func(p *Pipeline) {
		p.speller = s
	}
}

// WithParser enables the tense stage of the sentence path.
func WithParser(ps parse.Parser) Option {
	return func(p *Pipeline) {
		p.parser = ps
	}
}

// WithTenseNormalizer replaces the default normalizer, e.g. to disable rules.
func WithTenseNormalizer(n *tense.Normalizer) Option {
	return func(p *Pipeline) {
		if n != nil {
			p.normalizer = n
		}
	}
}

// WithGrammarStage enables the remote grammar stage of the sentence path.
func WithGrammarStage(s *grammar.Stage) Option {
	return func(p *Pipeline) {
		p.grammar = s
	}
}

// WithRecorder stores every request that produced corrections.
func WithRecorder(s history.Store) Option {
	return func(p *Pipeline) {
		p.recorder = s
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// Pipeline runs the correction paths. It is safe for concurrent use.
type Pipeline struct {
	speller    *spell.Set
	parser     parse.Parser
	normalizer *tense.Normalizer
	grammar    *grammar.Stage
	recorder   history.Store
	metrics    *observe.Metrics
}

// NewPipeline builds a Pipeline. With no options every stage is off and both
// paths return their input.
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{normalizer: tense.New()}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Languages returns the languages the keystroke path has dictionaries for.
func (p *Pipeline) Languages() []string {
	if p.speller == nil {
		return nil
	}
	return p.speller.Languages()
}

// Autocorrect handles one keystroke event. Only [EventSpace] triggers a
// correction; other events echo the text.
func (p *Pipeline) Autocorrect(ctx context.Context, req AutocorrectRequest) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := &Result{Input: req.Text, Corrected: req.Text, Corrections: []Correction{}}
	if req.EventType != EventSpace || p.speller == nil {
		return res, nil
	}

	start := time.Now()
	c := p.speller.For(req.Language)
	corrected, original, s, changed := c.CorrectLastWordDetail(req.Text)
	res.Corrected = corrected
	if changed {
		res.Corrections = append(res.Corrections, Correction{
			Original:   original,
			Corrected:  s.Term,
			Confidence: fuzzyConfidence(s.Distance, c.MaxEditDistance()),
			Method:     MethodFuzzy,
		})
		p.metrics.RecordCorrection(ctx, MethodFuzzy)
	}
	p.metrics.RecordPipeline(ctx, history.PathKeystroke, time.Since(start))

	p.record(ctx, history.PathKeystroke, req.Language, res)
	return res, nil
}

// CorrectSentence runs the sentence path: tense normalization when a parser
// is configured, then the remote grammar stage when one is configured.
func (p *Pipeline) CorrectSentence(ctx context.Context, text string) (*Result, error) {
	return p.CorrectSentenceIn(ctx, text, "")
}

// CorrectSentenceIn is [Pipeline.CorrectSentence] with an explicit language
// for the grammar stage. An empty language uses the stage default.
func (p *Pipeline) CorrectSentenceIn(ctx context.Context, text, language string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := observe.StartSpan(ctx, "correct.sentence")
	defer span.End()

	start := time.Now()
	res := &Result{Input: text, Corrected: text, Corrections: []Correction{}}

	if p.parser != nil {
		p.normalizeTense(ctx, res)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.grammar != nil {
		g := p.grammar.Correct(ctx, res.Corrected, language)
		for _, f := range g.Fixes {
			res.Corrections = append(res.Corrections, Correction{
				Original:   f.Original,
				Corrected:  f.Edit.Replacement,
				Confidence: grammarConfidence,
				Method:     MethodGrammar,
			})
		}
		res.Corrected = g.Text
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.metrics.RecordPipeline(ctx, history.PathSentence, time.Since(start))

	p.record(ctx, history.PathSentence, language, res)
	return res, nil
}

// normalizeTense parses res.Corrected and applies the tense rewrite. The
// rewrite re-joins tokens with single spaces, so a sentence the rules leave
// untouched keeps its original spacing and punctuation.
func (p *Pipeline) normalizeTense(ctx context.Context, res *Result) {
	s, err := p.parser.Parse(ctx, res.Corrected)
	if err != nil {
		observe.Logger(ctx).Warn("parse failed, skipping tense stage", "err", err)
		return
	}
	rw := p.normalizer.Rewrite(s)
	if len(rw.Changes) == 0 {
		return
	}
	for _, ch := range rw.Changes {
		res.Corrections = append(res.Corrections, Correction{
			Original:   ch.Original,
			Corrected:  ch.Replacement,
			Confidence: tenseConfidence,
			Method:     MethodTense,
		})
		p.metrics.RecordCorrection(ctx, MethodTense)
	}
	res.Corrected = rw.Text
}

// DetectTense reports the tense of text, from a parse when a parser is
// configured and from lexical cues otherwise or when parsing fails.
func (p *Pipeline) DetectTense(ctx context.Context, text string) tense.Tense {
	if p.parser != nil {
		s, err := p.parser.Parse(ctx, text)
		if err == nil {
			return tense.DetectTense(s)
		}
		observe.Logger(ctx).Debug("parse failed, using lexical tense cues", "err", err)
	}
	return tense.DetectTenseText(text)
}

// record appends res to the history store when it holds corrections.
// Failures are logged and counted.
func (p *Pipeline) record(ctx context.Context, path, language string, res *Result) {
	if p.recorder == nil || len(res.Corrections) == 0 {
		return
	}
	corrections := make([]history.Correction, len(res.Corrections))
	for i, c := range res.Corrections {
		corrections[i] = history.Correction{
			Original:   c.Original,
			Corrected:  c.Corrected,
			Method:     c.Method,
			Confidence: c.Confidence,
		}
	}
	err := p.recorder.Append(context.WithoutCancel(ctx), history.Record{
		Path:        path,
		Language:    language,
		Input:       res.Input,
		Output:      res.Corrected,
		Corrections: corrections,
	})
	if err != nil {
		p.metrics.HistoryErrors.Add(ctx, 1)
		observe.Logger(ctx).Warn("failed to record correction history", "path", path, "err", err)
	}
}

// fuzzyConfidence maps an edit distance onto (0, 1]: an exact match scores
// 1 and each edit costs an equal share.
func fuzzyConfidence(distance, maxDistance int) float64 {
	return 1 - float64(distance)/float64(maxDistance+1)
}
