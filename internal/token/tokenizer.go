// Package token splits raw payment text into classified tokens.
//
// Splitting happens on whitespace and punctuation, with two exceptions that
// matter for names: hyphens and apostrophes stay inside word tokens
// (O'Connor, Петров-Сидоров), and a period after a single letter stays
// attached so initials survive as "И." tokens. Stray period runs in initials
// ("И.. И.") are collapsed before emission.
//
// Tokenization is pure CPU and never fails: empty or whitespace-only input
// yields an empty token list. Results are cached by (language, text, flags).
package token

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/lucentpay/sift/internal/cache"
	"github.com/lucentpay/sift/internal/model"
)

// Flags alter tokenizer behavior and participate in the cache key.
type Flags uint8

const (
	// FlagCollapseInitials folds period runs ("И..") into a single period
	// before scanning. On by default.
	FlagCollapseInitials Flags = 1 << iota
)

// DefaultFlags is the flag set used by the screening service.
const DefaultFlags = FlagCollapseInitials

// Tokenizer splits text into model.Token values. Safe for concurrent use;
// the injected cache is its only shared state.
type Tokenizer struct {
	cache *cache.TTLCache[[]model.Token]
}

// New creates a Tokenizer backed by the given cache. A nil cache disables
// caching (used by tests).
func New(c *cache.TTLCache[[]model.Token]) *Tokenizer {
	return &Tokenizer{cache: c}
}

// Tokenize splits text into classified tokens. The returned bool reports
// whether the result came from the cache. The returned slice must be treated
// as immutable — cached calls share it.
func (t *Tokenizer) Tokenize(lang model.Language, text string, flags Flags) ([]model.Token, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, false
	}

	key := string(lang) + "\x00" + text + "\x00" + string(rune(flags))
	if t.cache != nil {
		if cached, ok := t.cache.Get(key); ok {
			return cached, true
		}
	}

	cleaned := norm.NFC.String(text)
	if flags&FlagCollapseInitials != 0 {
		cleaned = collapsePeriods(cleaned)
	}

	tokens := scan(cleaned)

	if t.cache != nil {
		t.cache.Set(key, tokens)
	}
	return tokens, false
}

// collapsePeriods folds every run of two or more periods into one.
func collapsePeriods(s string) string {
	if !strings.Contains(s, "..") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	prevDot := false
	for _, r := range s {
		if r == '.' {
			if prevDot {
				continue
			}
			prevDot = true
		} else {
			prevDot = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// scan walks the cleaned text once, emitting word, digit and punctuation
// tokens. Punctuation runs become a single token each; quote characters are
// pure separators and are emitted as punctuation so the trace stays complete.
func scan(s string) []model.Token {
	var tokens []model.Token
	runes := []rune(s)
	byteAt := make([]int, len(runes)+1)
	{
		off := 0
		for i, r := range runes {
			byteAt[i] = off
			off += len(string(r))
		}
		byteAt[len(runes)] = off
	}

	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsLetter(r):
			start := i
			i++
			for i < len(runes) {
				c := runes[i]
				if unicode.IsLetter(c) || unicode.IsDigit(c) {
					i++
					continue
				}
				// Hyphen/apostrophe joins two letter runs.
				if (c == '-' || c == '\'' || c == '’') && i+1 < len(runes) && unicode.IsLetter(runes[i+1]) {
					i += 2
					continue
				}
				break
			}
			// A period directly after a single letter is an initial marker.
			if i-start == 1 && i < len(runes) && runes[i] == '.' {
				i++
			}
			tokens = append(tokens, wordToken(string(runes[start:i]), byteAt[start], byteAt[i]))
		case unicode.IsDigit(r):
			start := i
			for i < len(runes) && unicode.IsDigit(runes[i]) {
				i++
			}
			tokens = append(tokens, model.Token{
				Text:    string(runes[start:i]),
				Start:   byteAt[start],
				End:     byteAt[i],
				Script:  model.ScriptNone,
				IsDigit: true,
			})
		default:
			start := i
			for i < len(runes) && !unicode.IsSpace(runes[i]) && !unicode.IsLetter(runes[i]) && !unicode.IsDigit(runes[i]) {
				i++
			}
			tokens = append(tokens, model.Token{
				Text:    string(runes[start:i]),
				Start:   byteAt[start],
				End:     byteAt[i],
				Script:  model.ScriptNone,
				IsPunct: true,
			})
		}
	}
	return tokens
}

func wordToken(text string, start, end int) model.Token {
	return model.Token{
		Text:   text,
		Start:  start,
		End:    end,
		Script: classifyScript(text),
	}
}

// classifyScript reports the writing system of a word token.
func classifyScript(s string) model.Script {
	var latin, cyrillic bool
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic = true
		case unicode.Is(unicode.Latin, r):
			latin = true
		}
	}
	switch {
	case latin && cyrillic:
		return model.ScriptMixed
	case cyrillic:
		return model.ScriptCyrillic
	case latin:
		return model.ScriptLatin
	default:
		return model.ScriptNone
	}
}

// ukMarkers are letters unique to Ukrainian among the Cyrillic languages
// this screener handles.
const ukMarkers = "іїєґІЇЄҐ"

// DetectLanguage infers the language from the dominant script of word
// tokens when the caller supplied no hint. Cyrillic defaults to Russian
// unless Ukrainian-specific letters are present.
func DetectLanguage(hint model.Language, tokens []model.Token) model.Language {
	if hint != model.LangAuto {
		return hint
	}
	var cyr, lat int
	uk := false
	for _, tok := range tokens {
		switch tok.Script {
		case model.ScriptCyrillic, model.ScriptMixed:
			cyr++
			if strings.ContainsAny(tok.Text, ukMarkers) {
				uk = true
			}
		case model.ScriptLatin:
			lat++
		}
	}
	switch {
	case cyr == 0 && lat == 0:
		return model.LangEN
	case cyr >= lat && uk:
		return model.LangUK
	case cyr >= lat:
		return model.LangRU
	default:
		return model.LangEN
	}
}
