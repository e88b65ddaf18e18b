package model

// EntityKind distinguishes person and organization entities.
type EntityKind string

const (
	KindPerson       EntityKind = "person"
	KindOrganization EntityKind = "organization"
)

// NormalizedEntity is one comparable name extracted from the input text:
// an ordered run of name-part tokens in canonical (nominative, de-diminutive)
// form, plus the full per-token audit trail that produced it.
type NormalizedEntity struct {
	Kind           EntityKind   `json:"kind"`
	CoreTokens     []string     `json:"core_tokens"`
	NormalizedText string       `json:"normalized_text"`
	Confidence     float64      `json:"confidence"`
	Trace          []TokenTrace `json:"trace"`
}
