package morph

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lucentpay/sift/internal/cache"
	"github.com/lucentpay/sift/internal/lexicon"
	"github.com/lucentpay/sift/internal/model"
	"github.com/lucentpay/sift/internal/tagger"
)

// Notes recorded in TokenTrace.MorphNotes.
const (
	NoteAlreadyNominative = "nominative"
	NoteOracleLemma       = "oracle_lemma"
	NoteOracleUnavailable = "oracle_unavailable"
	NoteASCIIPassthrough  = "ascii_passthrough"
	NoteDiminutive        = "diminutive"
	NoteSuffixRule        = "suffix_rule"
	NoteFemininePreserved = "feminine_preserved"
)

type cached struct {
	Output string
	Notes  string
}

// Normalizer rewrites name-part tokens to canonical nominative form.
// It never mutates its input: Normalize returns a fresh Tagged slice with
// updated traces.
type Normalizer struct {
	oracle Oracle
	lex    *lexicon.Lexicon
	cache  *cache.TTLCache[cached]
}

// New creates a Normalizer owning a bounded analysis cache keyed by
// (language, token, role). cacheSize <= 0 disables caching (tests).
// Call Close to stop the cache's eviction goroutine.
func New(oracle Oracle, lex *lexicon.Lexicon, cacheSize int, cacheTTL time.Duration) *Normalizer {
	if oracle == nil {
		oracle = NoopOracle{}
	}
	n := &Normalizer{oracle: oracle, lex: lex}
	if cacheSize > 0 {
		n.cache = cache.New[cached](cacheSize, cacheTTL)
	}
	return n
}

// Close releases the analysis cache.
func (n *Normalizer) Close() {
	if n.cache != nil {
		n.cache.Close()
	}
}

// Normalize converts every given/surname/patronymic token to nominative
// form, resolves diminutives for given names, and preserves feminine surname
// endings. Initials and non-name roles pass through untouched. Failure of
// the oracle degrades to suffix rules, then to passthrough with a trace note.
func (n *Normalizer) Normalize(ctx context.Context, lang model.Language, tagged []tagger.Tagged) []tagger.Tagged {
	out := make([]tagger.Tagged, len(tagged))
	for i, tg := range tagged {
		out[i] = tg
		role := tg.Trace.Role
		if role != model.RoleGiven && role != model.RoleSurname && role != model.RolePatronymic {
			continue
		}

		// ASCII tokens embedded in a Cyrillic-language context carry no
		// slavic morphology. Hard rule, not a heuristic.
		if cyrillicLang(lang) && tg.Trace.Token.Script == model.ScriptLatin {
			out[i].Trace.MorphNotes = NoteASCIIPassthrough
			continue
		}

		output, notes, hit := n.normalizeToken(ctx, lang, role, tg.Trace.Token.Text)
		out[i].Trace.OutputText = output
		out[i].Trace.MorphNotes = notes
		out[i].Trace.MorphCacheHit = hit
	}
	return out
}

func (n *Normalizer) normalizeToken(ctx context.Context, lang model.Language, role model.Role, text string) (output, notes string, cacheHit bool) {
	key := string(lang) + "\x00" + text + "\x00" + string(role)
	if n.cache != nil {
		if v, ok := n.cache.Get(key); ok {
			return v.Output, v.Notes, true
		}
	}

	output, notes = n.compute(ctx, lang, role, text)
	if n.cache != nil {
		n.cache.Set(key, cached{Output: output, Notes: notes})
	}
	return output, notes, false
}

func (n *Normalizer) compute(ctx context.Context, lang model.Language, role model.Role, text string) (string, string) {
	analysis, err := n.oracle.Analyze(ctx, text, lang)
	switch {
	case err == nil:
		return n.applyAnalysis(role, text, analysis)
	case errors.Is(err, ErrUnavailable):
		return n.fallback(role, text)
	default:
		// Contract violation from the oracle client; degrade the same way.
		return n.fallback(role, text)
	}
}

// applyAnalysis renders the oracle's lemma according to role rules.
func (n *Normalizer) applyAnalysis(role model.Role, text string, a Analysis) (string, string) {
	lemma := lexicon.Title(a.Lemma)

	if role == model.RoleGiven {
		if canon, ok := n.lex.CanonicalGiven(lemma); ok {
			return canon, NoteDiminutive
		}
		if a.Case == CaseNominative && lemma == text {
			return text, NoteAlreadyNominative
		}
		return lemma, NoteOracleLemma
	}

	if role == model.RoleSurname {
		// Morphology dictionaries lemmatize surnames to the masculine
		// form; a feminine input keeps its gender.
		if a.Gender == GenderFeminine || n.lex.FeminineSurname(text) {
			if fem := feminizeSurname(lemma); fem != lemma {
				return fem, NoteFemininePreserved
			}
		}
	}

	if a.Case == CaseNominative && lemma == text {
		return text, NoteAlreadyNominative
	}
	return lemma, NoteOracleLemma
}

// fallback normalizes without the oracle: dictionary lookup for given
// names, oblique-suffix rewriting for surnames and patronymics, otherwise
// passthrough marked oracle_unavailable.
func (n *Normalizer) fallback(role model.Role, text string) (string, string) {
	switch role {
	case model.RoleGiven:
		if canon, ok := n.lex.CanonicalGiven(text); ok {
			return canon, NoteDiminutive
		}
		if lemma, ok := n.lex.GivenLemma(text); ok {
			title := lexicon.Title(lemma)
			if title == text {
				return text, NoteAlreadyNominative
			}
			return title, NoteSuffixRule
		}
	case model.RoleSurname:
		if nom, ok := rewriteSuffix(text, obliqueSurname); ok {
			return nom, NoteSuffixRule
		}
	case model.RolePatronymic:
		if nom, ok := rewriteSuffix(text, obliquePatronymic); ok {
			return nom, NoteSuffixRule
		}
	}
	return text, NoteOracleUnavailable
}

// obliqueSurname maps common oblique surname endings to their nominative
// ending. Feminine endings map to feminine nominatives — gender is never
// collapsed.
var obliqueSurname = []suffixRule{
	{"овым", "ов"}, {"евым", "ев"}, {"иным", "ин"},
	{"овой", "ова"}, {"евой", "ева"}, {"иной", "ина"},
	{"ову", "ов"}, {"еву", "ев"}, {"ину", "ин"},
	{"ова", ""}, // ambiguous: genitive masc or nominative fem — keep as-is
	{"ском", "ский"}, {"скому", "ский"}, {"ской", "ская"},
	{"енку", "енко"}, {"енка", "енко"},
}

var obliquePatronymic = []suffixRule{
	{"ичу", "ич"}, {"ичем", "ич"}, {"ича", "ич"},
	{"овне", "овна"}, {"овны", "овна"}, {"овной", "овна"},
	{"евне", "евна"}, {"евны", "евна"},
	{"івні", "івна"}, {"ївні", "ївна"},
}

type suffixRule struct {
	from, to string
}

func rewriteSuffix(text string, rules []suffixRule) (string, bool) {
	lower := strings.ToLower(text)
	for _, r := range rules {
		if !strings.HasSuffix(lower, r.from) {
			continue
		}
		if r.to == "" {
			return text, false
		}
		stemLen := len(text) - len(r.from)
		if stemLen < 2 {
			return text, false
		}
		return text[:stemLen] + r.to, true
	}
	return text, false
}

// feminizeSurname converts a masculine surname lemma to its feminine form.
// Returns the input unchanged when no rule applies.
func feminizeSurname(lemma string) string {
	lower := strings.ToLower(lemma)
	switch {
	case strings.HasSuffix(lower, "ский"):
		return lemma[:len(lemma)-len("ий")] + "ая"
	case strings.HasSuffix(lower, "цкий"):
		return lemma[:len(lemma)-len("ий")] + "ая"
	case strings.HasSuffix(lower, "ов"), strings.HasSuffix(lower, "ев"),
		strings.HasSuffix(lower, "ёв"), strings.HasSuffix(lower, "ин"),
		strings.HasSuffix(lower, "ын"):
		return lemma + "а"
	}
	return lemma
}

func cyrillicLang(lang model.Language) bool {
	return lang == model.LangRU || lang == model.LangUK
}
