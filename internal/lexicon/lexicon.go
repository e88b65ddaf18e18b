// Package lexicon holds the static word lists the role tagger and the
// morphology normalizer consult: payment-context stopwords, organization
// legal-form acronyms, given-name dictionaries, diminutive maps, and
// surname/patronymic suffix rules.
//
// Lookups are case-insensitive and quote-stripped. The tables are read-only
// after init, so everything here is safe for concurrent use.
package lexicon

import (
	"strings"

	"github.com/lucentpay/sift/internal/model"
)

// Lexicon bundles the per-language word lists. Construct with Default and
// inject; the tagger never consults package-level state.
type Lexicon struct {
	stopwords   map[string]bool
	legalForms  map[string]bool
	givenNames  map[string]bool
	diminutives map[string]string
}

// Default returns the built-in lexicon covering ru/uk/en payment text.
func Default() *Lexicon {
	return &Lexicon{
		stopwords:   stopwords,
		legalForms:  legalForms,
		givenNames:  givenNames,
		diminutives: diminutives,
	}
}

// Fold lowercases a token and strips surrounding quotes and guillemets so
// «ПРИВАТБАНК» and "Приватбанк" hit the same key.
func Fold(s string) string {
	s = strings.Trim(s, "«»\"'“”‘’`")
	return strings.ToLower(s)
}

// IsStopword reports whether the token is payment-context filler
// (amounts, payment verbs, field labels) rather than a name part.
func (l *Lexicon) IsStopword(token string) bool {
	return l.stopwords[Fold(token)]
}

// IsLegalForm reports whether the token is an organization legal-form
// acronym (ООО, ТОВ, LLC, GmbH, …). Legal-form tokens are never unknown.
func (l *Lexicon) IsLegalForm(token string) bool {
	return l.legalForms[Fold(token)]
}

// IsGivenName reports whether the token is a known given name — directly,
// through a diminutive, or as an inflected form of a dictionary name.
func (l *Lexicon) IsGivenName(token string) bool {
	_, ok := l.GivenLemma(token)
	return ok
}

// caseEndings are the oblique-case endings stripped when looking up an
// inflected given name ("Ивану" → "Иван"). Longest first.
var caseEndings = []string{
	"ами", "ями", "ого", "ему", "ой", "ою", "ом", "ем", "ым", "им",
	"ах", "ях", "у", "ю", "а", "я", "е", "і", "и", "ы",
}

// GivenLemma resolves a token to a dictionary given name, trying the folded
// form, the diminutive map, and then single case-ending stripping.
func (l *Lexicon) GivenLemma(token string) (string, bool) {
	key := Fold(token)
	if l.givenNames[key] {
		return key, true
	}
	if canon, ok := l.diminutives[key]; ok {
		return canon, true
	}
	for _, end := range caseEndings {
		if !strings.HasSuffix(key, end) {
			continue
		}
		stem := strings.TrimSuffix(key, end)
		if len([]rune(stem)) < 3 {
			continue
		}
		if l.givenNames[stem] {
			return stem, true
		}
		// Names whose nominative ends in a vowel shed it before oblique
		// endings (Дарья → Дарье): retry with the common finals.
		for _, final := range []string{"а", "я", "й"} {
			if l.givenNames[stem+final] {
				return stem + final, true
			}
		}
	}
	return "", false
}

// CanonicalGiven resolves a diminutive to its canonical given name,
// preserving the capitalization convention of the output (title case).
// Returns the input unchanged when no mapping exists.
func (l *Lexicon) CanonicalGiven(token string) (string, bool) {
	if canon, ok := l.diminutives[Fold(token)]; ok {
		return Title(canon), true
	}
	return token, false
}

// HasSurnameSuffix reports whether the token ends in a surname suffix for
// the given language. Suffix rules are positional heuristics — a lexicon
// hit always wins over them.
func (l *Lexicon) HasSurnameSuffix(lang model.Language, token string) bool {
	key := Fold(token)
	for _, suf := range surnameSuffixes(lang) {
		if len(key) > len(suf)+2 && strings.HasSuffix(key, suf) {
			return true
		}
	}
	return false
}

// HasPatronymicSuffix reports whether the token carries a patronymic ending
// for the given language (e.g. -ovich, -ivna).
func (l *Lexicon) HasPatronymicSuffix(lang model.Language, token string) bool {
	key := Fold(token)
	for _, suf := range patronymicSuffixes(lang) {
		if len(key) > len(suf)+1 && strings.HasSuffix(key, suf) {
			return true
		}
	}
	return false
}

// FeminineSurname reports whether the token looks like a feminine surname
// form. The normalizer preserves these rather than collapsing to masculine.
func (l *Lexicon) FeminineSurname(token string) bool {
	key := Fold(token)
	for _, suf := range feminineSurnameSuffixes {
		if strings.HasSuffix(key, suf) {
			return true
		}
	}
	return false
}

// Title uppercases the first rune of s, lowercasing the rest.
func Title(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
	return string(runes)
}

func surnameSuffixes(lang model.Language) []string {
	switch lang {
	case model.LangUK:
		return ukSurnameSuffixes
	case model.LangEN:
		return enSurnameSuffixes
	default:
		return ruSurnameSuffixes
	}
}

func patronymicSuffixes(lang model.Language) []string {
	switch lang {
	case model.LangUK:
		return ukPatronymicSuffixes
	case model.LangEN:
		return translitPatronymicSuffixes
	default:
		return ruPatronymicSuffixes
	}
}
