// Package tagger assigns a role to every token using a left-to-right
// finite-state machine plus lexicon lookups.
//
// The machine is a pure function: Step(state, token) returns the next state,
// the role, and the rule that fired; Tag folds Step over the token sequence.
// There is no reject state — a token no rule claims stays in the trace as
// unknown, never dropped. Lexicon hits always beat positional heuristics.
package tagger

import (
	"strings"
	"unicode"

	"github.com/lucentpay/sift/internal/lexicon"
	"github.com/lucentpay/sift/internal/model"
)

// State is the FSM position between tokens.
type State int

const (
	ExpectNameStart State = iota
	AfterInitial
	AfterGiven
	AfterSurname
	AfterPatronymic
	InOrgContext
)

// Rule names recorded in TokenTrace.RuleApplied. Stable strings — audit
// replay depends on them.
const (
	RuleStopword      = "stopword_lexicon"
	RuleLegalForm     = "legal_form_lexicon"
	RuleInitial       = "initial_pattern"
	RuleGivenName     = "given_name_lexicon"
	RulePatronymic    = "patronymic_suffix"
	RuleSurname       = "surname_suffix"
	RuleOrgMember     = "org_context_member"
	RulePositionalSur = "positional_surname"
	RulePositionalGiv = "positional_given"
	RuleDigit         = "digit"
	RulePunct         = "punctuation"
	RuleNone          = "no_rule"
)

// Config alters tagging behavior. One value is passed in at construction;
// the tagger never consults ambient flags.
type Config struct {
	// StrictStopwords makes a stopword-lexicon hit final even when the
	// token could also be read as a name part.
	StrictStopwords bool
}

// Tagged pairs the audit trace of a token with the FSM state after it was
// consumed. The assembler uses the state to keep organization name members
// (role unknown, rule org_context_member) inside the organization run.
type Tagged struct {
	Trace model.TokenTrace
	State State
}

// Tagger classifies tokens against an injected lexicon.
type Tagger struct {
	lex *lexicon.Lexicon
	cfg Config
}

// New creates a Tagger.
func New(lex *lexicon.Lexicon, cfg Config) *Tagger {
	return &Tagger{lex: lex, cfg: cfg}
}

// Tag runs the FSM over the token sequence, emitting exactly one Tagged per
// input token, in order. tokenCacheHit is propagated into every trace entry.
func (t *Tagger) Tag(lang model.Language, tokens []model.Token, tokenCacheHit bool) []Tagged {
	out := make([]Tagged, 0, len(tokens))
	state := ExpectNameStart
	for _, tok := range tokens {
		next, role, rule := t.Step(lang, state, tok)
		out = append(out, Tagged{
			Trace: model.TokenTrace{
				Token:         tok,
				Role:          role,
				RuleApplied:   rule,
				OutputText:    tok.Text,
				TokenCacheHit: tokenCacheHit,
			},
			State: next,
		})
		state = next
	}
	return out
}

// Step is one FSM transition. Checks run strictest-lexicon first; the
// positional fallbacks fire only when no lexicon or suffix rule claimed the
// token.
func (t *Tagger) Step(lang model.Language, state State, tok model.Token) (State, model.Role, string) {
	switch {
	case tok.IsPunct:
		return state, model.RoleStopword, RulePunct
	case tok.IsDigit:
		return state, model.RoleStopword, RuleDigit
	}

	if t.lex.IsStopword(tok.Text) {
		if t.cfg.StrictStopwords || !t.lex.IsGivenName(tok.Text) {
			return state, model.RoleStopword, RuleStopword
		}
	}

	if t.lex.IsLegalForm(tok.Text) {
		return InOrgContext, model.RoleLegalForm, RuleLegalForm
	}

	if isInitial(tok.Text) {
		return AfterInitial, model.RoleInitial, RuleInitial
	}

	// A given-name dictionary hit is a lexicon match and wins from any
	// state, including org context — it is what ends an organization run.
	if t.lex.IsGivenName(tok.Text) {
		return AfterGiven, model.RoleGiven, RuleGivenName
	}

	// Inside an organization, remaining words are the organization's proper
	// name. Suffix and positional person heuristics are suppressed here:
	// short all-caps tokens are abbreviations, and quoted trade names
	// routinely end in name-like suffixes.
	if state == InOrgContext {
		return InOrgContext, model.RoleUnknown, RuleOrgMember
	}

	if t.lex.HasPatronymicSuffix(lang, tok.Text) {
		return AfterPatronymic, model.RolePatronymic, RulePatronymic
	}

	if t.lex.HasSurnameSuffix(lang, tok.Text) {
		return AfterSurname, model.RoleSurname, RuleSurname
	}

	// Positional defaults: only for capitalized words adjacent to an
	// already-recognized name part.
	if capitalized(tok.Text) {
		switch state {
		case AfterInitial, AfterGiven, AfterPatronymic:
			return AfterSurname, model.RoleSurname, RulePositionalSur
		case AfterSurname:
			return AfterGiven, model.RoleGiven, RulePositionalGiv
		}
	}

	return state, model.RoleUnknown, RuleNone
}

// isInitial matches single-letter-plus-dot tokens ("И.", "J.").
func isInitial(s string) bool {
	runes := []rune(s)
	return len(runes) == 2 && unicode.IsLetter(runes[0]) && runes[1] == '.'
}

// capitalized reports an upper-first, not-all-upper word.
func capitalized(s string) bool {
	runes := []rune(s)
	if len(runes) < 2 || !unicode.IsUpper(runes[0]) {
		return false
	}
	return strings.ToUpper(s) != s
}
