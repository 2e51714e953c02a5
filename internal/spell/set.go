package spell

import (
	"fmt"
	"slices"
	"strings"
)

// Set holds one [Corrector] per language code and resolves unknown languages
// to a default. It is read-only after [NewSet] and safe for concurrent use.
type Set struct {
	byLang      map[string]*Corrector
	defaultLang string
}

// NewSet builds a Set. defaultLang must be a key of correctors.
func NewSet(defaultLang string, correctors map[string]*Corrector) (*Set, error) {
	defaultLang = normalizeLang(defaultLang)
	s := &Set{byLang: make(map[string]*Corrector, len(correctors)), defaultLang: defaultLang}
	for lang, c := range correctors {
		if c == nil {
			return nil, fmt.Errorf("spell: nil corrector for language %q", lang)
		}
		s.byLang[normalizeLang(lang)] = c
	}
	if _, ok := s.byLang[defaultLang]; !ok {
		return nil, fmt.Errorf("spell: default language %q has no dictionary", defaultLang)
	}
	return s, nil
}

// For returns the corrector for lang. A regional code such as "en-US" falls
// back to its base language, and anything else unknown to the default.
func (s *Set) For(lang string) *Corrector {
	lang = normalizeLang(lang)
	if c, ok := s.byLang[lang]; ok {
		return c
	}
	if base, _, found := strings.Cut(lang, "-"); found {
		if c, ok := s.byLang[base]; ok {
			return c
		}
	}
	return s.byLang[s.defaultLang]
}

// Languages returns the loaded language codes in sorted order.
func (s *Set) Languages() []string {
	langs := make([]string, 0, len(s.byLang))
	for l := range s.byLang {
		langs = append(langs, l)
	}
	slices.Sort(langs)
	return langs
}

// DefaultLanguage returns the fallback language code.
func (s *Set) DefaultLanguage() string {
	return s.defaultLang
}

func normalizeLang(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}
