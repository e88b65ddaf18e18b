// Package model defines the records that flow through the screening pipeline.
//
// Every stage produces a new immutable record; nothing here mutates an
// upstream stage's output. Records live for one request only — the process
// caches (tokenizer, morphology) key on (language, text, flags) and hold no
// request state.
package model

// Language is a BCP-47-ish language hint for tokenization and morphology.
type Language string

const (
	LangAuto Language = ""   // detect from dominant script
	LangRU   Language = "ru" // Russian
	LangUK   Language = "uk" // Ukrainian
	LangEN   Language = "en" // English
)

// Script classifies the writing system of a token.
type Script string

const (
	ScriptLatin    Script = "latin"
	ScriptCyrillic Script = "cyrillic"
	ScriptMixed    Script = "mixed"
	ScriptNone     Script = "none" // digits, punctuation
)

// Token is one classified unit of input text. Created once per tokenization
// pass and never modified afterwards. Start/End are byte offsets into the
// cleaned input, satisfying cleaned[Start:End] == Token.Text.
type Token struct {
	Text    string `json:"text"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Script  Script `json:"script"`
	IsDigit bool   `json:"is_digit"`
	IsPunct bool   `json:"is_punct"`
}

// Role is the part a token plays in a name, assigned by the role tagger.
type Role string

const (
	RoleGiven      Role = "given"
	RoleSurname    Role = "surname"
	RolePatronymic Role = "patronymic"
	RoleInitial    Role = "initial"
	RoleLegalForm  Role = "organization_legal_form"
	RoleStopword   Role = "context_stopword"
	RoleUnknown    Role = "unknown"
)

// NamePart reports whether the role contributes to a person name run.
func (r Role) NamePart() bool {
	switch r {
	case RoleGiven, RoleSurname, RolePatronymic, RoleInitial:
		return true
	}
	return false
}

// TokenTrace is the audit record for one input token: which rule fired,
// what the token became, and whether caches served the lookups. Exactly one
// trace exists per input token, in original token order, append-only.
type TokenTrace struct {
	Token         Token  `json:"token"`
	Role          Role   `json:"role"`
	RuleApplied   string `json:"rule_applied"`
	OutputText    string `json:"output_text"`
	MorphNotes    string `json:"morph_notes,omitempty"`
	TokenCacheHit bool   `json:"token_cache_hit"`
	MorphCacheHit bool   `json:"morph_cache_hit"`
}
