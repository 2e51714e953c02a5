// Package tense implements heuristic tense detection and subject-verb
// agreement over a dependency-parsed sentence.
//
// A parsed sentence is stored as an arena: a flat slice of [Token] values in
// surface order, where each token names its syntactic parent by index. The
// children of a token are found by scanning for tokens whose Head equals its
// index. No token holds a pointer to another.
//
// The rewriting rules are deliberately approximate. Past tense is formed by
// appending "ed" to the lemma and irregular verbs are not special-cased; the
// narrow fixups (modal auxiliaries, "don't", and the "on the table" copula)
// patch common surface mistakes and nothing more.
package tense

import "strings"

// NoHead is the Head value of the root token.
const NoHead = -1

// Token is one word of a parsed sentence.
type Token struct {
	// Text is the surface form as typed.
	Text string `json:"text"`

	// Lemma is the dictionary form of the word.
	Lemma string `json:"lemma"`

	// POS is the coarse part-of-speech (VERB, AUX, NOUN, PRON, ...).
	POS string `json:"pos"`

	// Tag is the fine-grained Penn Treebank tag (VBD, VBZ, NN, PRP, ...).
	Tag string `json:"tag"`

	// Dep is the dependency label (ROOT, nsubj, aux, ...).
	Dep string `json:"dep"`

	// Head is the index of the syntactic parent, or [NoHead] for the root.
	Head int `json:"head"`
}

// Sentence is a dependency-parsed sentence stored as a token arena.
type Sentence struct {
	Tokens []Token `json:"tokens"`
}

// Len returns the number of tokens.
func (s Sentence) Len() int {
	return len(s.Tokens)
}

// Children returns the indices of the direct children of token i in surface
// order.
func (s Sentence) Children(i int) []int {
	var out []int
	for j, t := range s.Tokens {
		if j != i && t.Head == i {
			out = append(out, j)
		}
	}
	return out
}

// Root returns the index of the main predicate: the token labelled "root"
// (case-insensitive), or failing that the first token without a parent.
// It returns -1 for an empty sentence.
func (s Sentence) Root() int {
	for i, t := range s.Tokens {
		if strings.EqualFold(t.Dep, "root") {
			return i
		}
	}
	for i, t := range s.Tokens {
		if t.Head == NoHead {
			return i
		}
	}
	return -1
}

// Subject returns the index of the nominal subject among the direct children
// of token head, or -1 when there is none.
func (s Sentence) Subject(head int) int {
	if head < 0 {
		return -1
	}
	for _, c := range s.Children(head) {
		switch strings.ToLower(s.Tokens[c].Dep) {
		case "nsubj", "nsubjpass":
			return c
		}
	}
	return -1
}

// Text joins the surface forms with single spaces.
func (s Sentence) Text() string {
	words := make([]string, len(s.Tokens))
	for i, t := range s.Tokens {
		words[i] = t.Text
	}
	return strings.Join(words, " ")
}

// lemma returns the token's lemma, falling back to its lower-cased surface.
func (t Token) lemma() string {
	if t.Lemma != "" {
		return t.Lemma
	}
	return strings.ToLower(t.Text)
}

func (t Token) isVerb() bool {
	return t.POS == "VERB" || t.POS == "AUX" || strings.HasPrefix(t.Tag, "VB")
}

func (t Token) isAuxiliary() bool {
	return t.POS == "AUX" || t.Tag == "MD" || strings.HasPrefix(strings.ToLower(t.Dep), "aux")
}
