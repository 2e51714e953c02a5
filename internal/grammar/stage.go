package grammar

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/scrivener/internal/observe"
	"github.com/MrWong99/scrivener/internal/patch"
	"github.com/MrWong99/scrivener/internal/resilience"
	"github.com/MrWong99/scrivener/internal/throttle"
)

const defaultTimeout = 3 * time.Second

// Outcome values reported in [Result.Outcome].
const (
	OutcomeApplied     = "applied"
	OutcomeClean       = "clean"
	OutcomeThrottled   = "throttled"
	OutcomeUnavailable = "unavailable"
	OutcomeBadEdits    = "bad_edits"
)

// Fix is one applied replacement.
type Fix struct {
	Edit patch.Edit

	// Original is the replaced range of the input.
	Original string

	RuleID string
}

// Result is the detailed outcome of [Stage.Correct].
type Result struct {
	Text    string
	Outcome string
	Fixes   []Fix

	// Dropped counts edits discarded because they overlapped an earlier one.
	Dropped int
}

// Option is a functional option for configuring a [Stage].
type Option func(*Stage)

// WithTimeout bounds each remote call. Default: 3s.
func WithTimeout(d time.Duration) Option {
	return func(s *Stage) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock replaces the clock used for throttle decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Stage) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLanguage sets the language used when callers pass none.
// Default: [DefaultLanguage].
func WithLanguage(lang string) Option {
	return func(s *Stage) {
		if lang != "" {
			s.language = lang
		}
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Stage) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithName labels the checker in logs and metrics. Default: "remote".
func WithName(name string) Option {
	return func(s *Stage) {
		if name != "" {
			s.name = name
		}
	}
}

// Stage is the throttled remote grammar step. It is safe for concurrent use;
// the throttle is shared by every caller of the same Stage.
type Stage struct {
	checker  Checker
	throttle *throttle.Throttle
	timeout  time.Duration
	now      func() time.Time
	language string
	name     string
	metrics  *observe.Metrics
}

// NewStage returns a Stage calling checker at most as often as th allows.
// A nil th gets a fresh throttle with the default interval.
func NewStage(checker Checker, th *throttle.Throttle, opts ...Option) *Stage {
	if th == nil {
		th = throttle.New(0)
	}
	s := &Stage{
		checker:  checker,
		throttle: th,
		timeout:  defaultTimeout,
		now:      time.Now,
		language: DefaultLanguage,
		name:     "remote",
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Throttle returns the gate guarding the remote call.
func (s *Stage) Throttle() *throttle.Throttle { return s.throttle }

// Timeout returns the per-call timeout.
func (s *Stage) Timeout() time.Duration { return s.timeout }

// CorrectViaRemote returns text with the remote checker's fixes applied, or
// text unchanged when the call is throttled or fails.
func (s *Stage) CorrectViaRemote(ctx context.Context, text string) string {
	return s.Correct(ctx, text, "").Text
}

// Correct is [Stage.CorrectViaRemote] with a per-call language and a
// detailed result. An empty language uses the stage default.
func (s *Stage) Correct(ctx context.Context, text, language string) Result {
	res := Result{Text: text, Fixes: []Fix{}}

	accepted := s.throttle.TryAcquire(s.now())
	s.metrics.RecordThrottle(ctx, accepted)
	if !accepted {
		res.Outcome = OutcomeThrottled
		return res
	}
	if language == "" {
		language = s.language
	}

	ctx, span := observe.StartSpan(ctx, "grammar.check")
	defer span.End()
	span.SetAttributes(attribute.String("checker", s.name), attribute.String("language", language))

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	start := time.Now()
	matches, err := s.checker.Check(callCtx, text, language)
	cancel()
	if err != nil {
		kind := errorKind(err)
		s.metrics.RecordRemoteCall(ctx, s.name, time.Since(start), kind)
		span.SetStatus(codes.Error, err.Error())
		observe.Logger(ctx).Warn("grammar check failed, keeping text",
			"checker", s.name, "kind", kind, "err", err)
		res.Outcome = OutcomeUnavailable
		return res
	}
	s.metrics.RecordRemoteCall(ctx, s.name, time.Since(start), "")

	edits, dropped := patch.DropOverlaps(Edits(matches))
	if dropped > 0 {
		s.metrics.RecordEditsDropped(ctx, s.name, "overlap", dropped)
		observe.Logger(ctx).Warn("dropped overlapping grammar edits",
			"checker", s.name, "dropped", dropped, "kept", len(edits))
	}
	res.Dropped = dropped
	if len(edits) == 0 {
		res.Outcome = OutcomeClean
		return res
	}

	corrected, err := patch.Apply(text, edits)
	if err != nil {
		s.metrics.RecordEditsDropped(ctx, s.name, "out_of_range", len(edits))
		observe.Logger(ctx).Warn("grammar edits out of range, keeping text",
			"checker", s.name, "err", err)
		res.Outcome = OutcomeBadEdits
		return res
	}

	runes := []rune(text)
	ruleOf := make(map[patch.Edit]string, len(matches))
	for _, m := range matches {
		if len(m.Replacements) > 0 {
			ruleOf[patch.Edit{Offset: m.Offset, Length: m.Length, Replacement: m.Replacements[0]}] = m.RuleID
		}
	}
	for _, e := range edits {
		res.Fixes = append(res.Fixes, Fix{
			Edit:     e,
			Original: string(runes[e.Offset:e.End()]),
			RuleID:   ruleOf[e],
		})
		s.metrics.RecordCorrection(ctx, "grammar")
	}
	res.Text = corrected
	res.Outcome = OutcomeApplied
	observe.Logger(ctx).Debug("grammar edits applied", "checker", s.name, "edits", len(edits))
	return res
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	default:
		return "unavailable"
	}
}
