package model

import "github.com/google/uuid"

// RiskLevel partitions the weighted score into actionable bands.
type RiskLevel string

const (
	RiskClear  RiskLevel = "clear"
	RiskReview RiskLevel = "review"
	RiskHigh   RiskLevel = "high"
)

// Signals are the auxiliary match facts fed into the decision engine
// alongside search results. Zero values are the neutral interpretation —
// a missing signal never fails a decision.
type Signals struct {
	PersonConfidence float64  `json:"person_confidence"`
	OrgConfidence    float64  `json:"org_confidence"`
	DateMatch        bool     `json:"date_match"`
	IDMatch          bool     `json:"id_match"`
	Evidence         []string `json:"evidence,omitempty"`
}

// Similarity summarizes vector-tier evidence across candidates.
type Similarity struct {
	CosTop float64 `json:"cos_top"`
	CosP95 float64 `json:"cos_p95"`
}

// GateEntry is the slice of a watchlist entry the business gate consults:
// whether the listed entity has a tax ID and a date of birth on file.
type GateEntry struct {
	EntityID uuid.UUID `json:"entity_id"`
	HasTIN   bool      `json:"has_tin"`
	HasDOB   bool      `json:"has_dob"`
}

// DecisionInput is everything the decision engine sees. Decide is a pure
// function of this value plus configured weights — no hidden state.
type DecisionInput struct {
	Entity     NormalizedEntity `json:"entity"`
	Candidates []Candidate      `json:"candidates"`
	Signals    Signals          `json:"signals"`
	Similarity Similarity       `json:"similarity"`
	Gate       []GateEntry      `json:"gate,omitempty"`
}

// DecisionOutput is the verdict for one screened entity.
type DecisionOutput struct {
	RiskLevel  RiskLevel `json:"risk_level"`
	Score      float64   `json:"score"`
	Reasons    []string  `json:"reasons"`
	GatePassed bool      `json:"business_gate_passed"`
}
