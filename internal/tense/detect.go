package tense

import (
	"strings"
	"unicode"
)

// Tense is the grammatical tense inferred for a sentence.
type Tense int

const (
	// Unknown means no cue was found. It conjugates like [Present].
	Unknown Tense = iota
	Present
	Past
	Future
)

// String returns the lower-case name of the tense.
func (t Tense) String() string {
	switch t {
	case Present:
		return "present"
	case Past:
		return "past"
	case Future:
		return "future"
	default:
		return "unknown"
	}
}

var (
	futureAuxiliaries = map[string]bool{"will": true, "shall": true}
	pastCues          = map[string]bool{"yesterday": true, "ago": true, "last": true, "past": true, "then": true}
)

// DetectTense infers the tense of s. A future auxiliary wins over everything
// else, a lexical past cue or a past verb tag comes next, and a present verb
// tag last. [Unknown] is returned when nothing matches.
func DetectTense(s Sentence) Tense {
	words := make([]string, len(s.Tokens))
	for i, t := range s.Tokens {
		words[i] = strings.ToLower(t.Text)
	}
	if t := detectLexical(words); t != Unknown {
		return t
	}

	present := false
	for _, t := range s.Tokens {
		switch t.Tag {
		case "VBD", "VBN":
			return Past
		case "VBZ", "VBP":
			present = true
		}
	}
	if present {
		return Present
	}
	return Unknown
}

// DetectTenseText infers the tense of raw text from lexical cues alone, for
// callers that have no parse. It never returns [Present], since present tense
// is only signalled by verb tags.
func DetectTenseText(text string) Tense {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	return detectLexical(words)
}

func detectLexical(words []string) Tense {
	past := false
	for _, w := range words {
		if futureAuxiliaries[w] {
			return Future
		}
		if pastCues[w] {
			past = true
		}
	}
	if past {
		return Past
	}
	return Unknown
}
