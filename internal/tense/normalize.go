package tense

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule names, usable with [WithoutRules].
const (
	RuleConjugate = "conjugate"
	RuleModal     = "modal"
	RuleNegation  = "negation"
	RuleCopula    = "copula"
)

var (
	modalAuxiliaries    = map[string]bool{"will": true, "can": true, "should": true, "may": true}
	thirdPersonPronouns = map[string]bool{"he": true, "she": true, "it": true}
)

// Change describes one word the normalizer rewrote.
type Change struct {
	// Index is the token index, or -1 for a word inserted before the sentence.
	Index int

	// Original is the surface form before rewriting; empty for insertions.
	Original string

	// Replacement is the rewritten form.
	Replacement string

	// Rule names the rule that produced the final form.
	Rule string
}

// Result is the outcome of [Normalizer.Rewrite].
type Result struct {
	// Text is the rewritten sentence, words joined by single spaces.
	Text string

	// Tense is the tense the sentence was normalized to.
	Tense Tense

	// Changes lists the rewritten words in surface order. Never nil.
	Changes []Change
}

// rule is one step of the rewrite. Rules run in table order over a shared
// state, so later rules see the words produced by earlier ones.
type rule struct {
	name  string
	apply func(*state)
}

// rules is the ordered rule table.
var rules = []rule{
	{RuleConjugate, conjugateRoot},
	{RuleModal, stripModalS},
	{RuleNegation, fixNegation},
	{RuleCopula, insertCopula},
}

// Option is a functional option for configuring a [Normalizer].
type Option func(*Normalizer)

// WithoutRules disables the named rules. Unknown names are ignored.
func WithoutRules(names ...string) Option {
	return func(n *Normalizer) {
		for _, name := range names {
			n.disabled[name] = true
		}
	}
}

// Normalizer rewrites a parsed sentence's root verb to agree with the
// detected tense and its subject, then applies the surface fixups.
// It is read-only after [New] and safe for concurrent use.
type Normalizer struct {
	disabled map[string]bool
}

// New returns a Normalizer with every rule enabled unless opts disable some.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{disabled: make(map[string]bool)}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Rules returns the names of the enabled rules in the order they run.
func (n *Normalizer) Rules() []string {
	var out []string
	for _, r := range rules {
		if !n.disabled[r.name] {
			out = append(out, r.name)
		}
	}
	return out
}

// Normalize returns the rewritten text of s.
func (n *Normalizer) Normalize(s Sentence) string {
	return n.Rewrite(s).Text
}

// Rewrite normalizes s and reports which words changed.
func (n *Normalizer) Rewrite(s Sentence) Result {
	st := newState(s)
	for _, r := range rules {
		if n.disabled[r.name] {
			continue
		}
		st.current = r.name
		r.apply(st)
	}
	return st.result()
}

var defaultNormalizer = New()

// Normalize rewrites s with every rule enabled.
func Normalize(s Sentence) string {
	return defaultNormalizer.Normalize(s)
}

type state struct {
	s       Sentence
	words   []string
	ruleOf  []string
	prefix  []string
	tense   Tense
	root    int
	subject int
	current string
}

func newState(s Sentence) *state {
	st := &state{
		s:      s,
		words:  make([]string, len(s.Tokens)),
		ruleOf: make([]string, len(s.Tokens)),
		tense:  DetectTense(s),
		root:   s.Root(),
	}
	for i, t := range s.Tokens {
		st.words[i] = t.Text
	}
	st.subject = s.Subject(st.root)
	return st
}

func (st *state) set(i int, word string) {
	if st.words[i] == word {
		return
	}
	st.words[i] = word
	st.ruleOf[i] = st.current
}

func (st *state) lower(i int) string {
	return strings.ToLower(st.words[i])
}

func (st *state) result() Result {
	changes := make([]Change, 0)
	for _, w := range st.prefix {
		changes = append(changes, Change{Index: -1, Replacement: w, Rule: RuleCopula})
	}
	for i, w := range st.words {
		if orig := st.s.Tokens[i].Text; w != orig {
			changes = append(changes, Change{Index: i, Original: orig, Replacement: w, Rule: st.ruleOf[i]})
		}
	}
	out := make([]string, 0, len(st.prefix)+len(st.words))
	out = append(out, st.prefix...)
	out = append(out, st.words...)
	return Result{Text: strings.Join(out, " "), Tense: st.tense, Changes: changes}
}

// thirdPersonSingular reports whether the subject takes the "-s" form.
func (st *state) thirdPersonSingular() bool {
	if st.subject < 0 {
		return false
	}
	sub := st.s.Tokens[st.subject]
	if thirdPersonPronouns[strings.ToLower(sub.Text)] {
		return true
	}
	return sub.Tag == "NN" || sub.Tag == "NNP"
}

// conjugateRoot rewrites the root verb from its lemma for the detected tense
// and subject. A root without a subject is left as typed. Auxiliaries and
// copulas get no special treatment: "can runs" is left to the modal rule and
// irregular forms come out regular.
func conjugateRoot(st *state) {
	if st.root < 0 || st.subject < 0 {
		return
	}
	verb := st.s.Tokens[st.root]
	lemma := verb.lemma()

	var form string
	switch st.tense {
	case Past:
		if strings.HasSuffix(lemma, "e") {
			form = lemma + "d"
		} else {
			form = lemma + "ed"
		}
	case Future:
		form = lemma
	default:
		if st.thirdPersonSingular() {
			form = lemma + "s"
		} else {
			form = lemma
		}
	}
	st.set(st.root, matchCase(verb.Text, form))
}

// stripModalS rewrites "can runs" style pairs to the bare lemmas.
func stripModalS(st *state) {
	for i := 0; i+1 < len(st.words); i++ {
		aux, next := st.s.Tokens[i], st.s.Tokens[i+1]
		if !aux.isAuxiliary() || !modalAuxiliaries[st.lower(i)] {
			continue
		}
		if !next.isVerb() || !strings.HasSuffix(st.lower(i+1), "s") {
			continue
		}
		st.set(i, matchCase(st.words[i], aux.lemma()))
		st.set(i+1, matchCase(st.words[i+1], next.lemma()))
	}
}

// fixNegation rewrites "don't" to "doesn't" after he, she, or it. A split
// "do" + "n't" pair has its "do" rewritten to "does".
func fixNegation(st *state) {
	if st.subject < 0 || !thirdPersonPronouns[strings.ToLower(st.s.Tokens[st.subject].Text)] {
		return
	}
	for i := range st.words {
		switch st.lower(i) {
		case "don't", "don’t":
			st.set(i, matchCase(st.words[i], "doesn't"))
		case "do":
			if i+1 < len(st.words) && (st.lower(i+1) == "n't" || st.lower(i+1) == "not") {
				st.set(i, matchCase(st.words[i], "does"))
			}
		}
	}
}

// insertCopula prepends "is" to "the book on the table" style fragments. It
// looks at the words as typed, so a conjugated copula still counts.
func insertCopula(st *state) {
	var on, table bool
	for _, t := range st.s.Tokens {
		switch strings.ToLower(t.Text) {
		case "on":
			on = true
		case "table":
			table = true
		case "is", "isn't":
			return
		}
	}
	if on && table {
		st.prefix = append(st.prefix, "is")
	}
}

// matchCase upper-cases the first letter of word when like starts with an
// upper-case letter.
func matchCase(like, word string) string {
	r, _ := utf8.DecodeRuneInString(like)
	if !unicode.IsUpper(r) || word == "" {
		return word
	}
	w, size := utf8.DecodeRuneInString(word)
	return string(unicode.ToUpper(w)) + word[size:]
}
