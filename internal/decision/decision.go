// Package decision turns search evidence into a risk verdict. Decide is a
// pure function of its input plus the configured weights: same input, same
// output, no hidden state.
package decision

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/lucentpay/sift/internal/model"
)

// Weights are the named coefficients of the risk formula plus the band
// thresholds. Validate at construction; Decide assumes a valid value.
type Weights struct {
	Person     float64 `json:"w_person"`
	Org        float64 `json:"w_org"`
	Similarity float64 `json:"w_similarity"`

	// Per-tier weights for the best candidate score of each match type.
	Exact  float64 `json:"w_exact"`
	Phrase float64 `json:"w_phrase"`
	Ngram  float64 `json:"w_ngram"`
	Weak   float64 `json:"w_weak"`

	DateBonus float64 `json:"date_bonus"`
	IDBonus   float64 `json:"id_bonus"`

	// NameMatchThreshold is the person confidence at which the business
	// gate engages.
	NameMatchThreshold float64 `json:"name_match_threshold"`

	// Band thresholds: score < Review → clear, < High → review, else high.
	ReviewThreshold float64 `json:"review_threshold"`
	HighThreshold   float64 `json:"high_threshold"`
}

// DefaultWeights returns the production defaults.
func DefaultWeights() Weights {
	return Weights{
		Person:             0.20,
		Org:                0.10,
		Similarity:         0.15,
		Exact:              0.30,
		Phrase:             0.20,
		Ngram:              0.10,
		Weak:               0.05,
		DateBonus:          0.10,
		IDBonus:            0.10,
		NameMatchThreshold: 0.75,
		ReviewThreshold:    0.40,
		HighThreshold:      0.70,
	}
}

// Validate rejects weights that cannot produce meaningful bands.
func (w Weights) Validate() error {
	if w.ReviewThreshold <= 0 || w.HighThreshold <= 0 {
		return fmt.Errorf("decision: thresholds must be positive")
	}
	if w.ReviewThreshold >= w.HighThreshold {
		return fmt.Errorf("decision: review threshold %.2f must be below high threshold %.2f",
			w.ReviewThreshold, w.HighThreshold)
	}
	if w.NameMatchThreshold <= 0 || w.NameMatchThreshold > 1 {
		return fmt.Errorf("decision: name match threshold %.2f out of (0,1]", w.NameMatchThreshold)
	}
	return nil
}

// Engine renders risk verdicts.
type Engine struct {
	w Weights
}

// New creates an Engine with the given weights.
func New(w Weights) *Engine {
	return &Engine{w: w}
}

// GateReason is the audit string emitted when the business gate fails.
const GateReason = "missing TIN/DOB for name match"

// Decide computes the verdict for one screened entity. Missing or malformed
// signals take their neutral value; Decide always returns an output.
func (e *Engine) Decide(in model.DecisionInput) model.DecisionOutput {
	var reasons []string

	// Business gate: a confident person name match must be corroborated by
	// tax ID and date of birth, unless the matched watchlist entry carries
	// neither field. Gate failure bypasses the weighted formula.
	gatePassed, gateReasons := e.gate(in)
	reasons = append(reasons, gateReasons...)
	if !gatePassed {
		return model.DecisionOutput{
			RiskLevel:  model.RiskHigh,
			Score:      0,
			Reasons:    append(reasons, GateReason),
			GatePassed: false,
		}
	}

	score := e.w.Person*clamp01(in.Signals.PersonConfidence) +
		e.w.Org*clamp01(in.Signals.OrgConfidence) +
		e.w.Similarity*clamp01(in.Similarity.CosTop)

	best := bestPerTier(in.Candidates)
	for _, tier := range []model.MatchType{model.MatchExact, model.MatchPhrase, model.MatchNgram, model.MatchWeak} {
		b, ok := best[tier]
		if !ok {
			continue
		}
		score += e.tierWeight(tier) * b.score
		reasons = append(reasons, fmt.Sprintf("%s match %q (score %.2f)", tier, b.name, b.score))
	}

	if in.Signals.DateMatch {
		score += e.w.DateBonus
		reasons = append(reasons, "date of birth matched")
	}
	if in.Signals.IDMatch {
		score += e.w.IDBonus
		reasons = append(reasons, "tax ID matched")
	}
	reasons = append(reasons, in.Signals.Evidence...)

	level := e.band(score)
	reasons = append(reasons, fmt.Sprintf("weighted score %.2f banded %s", score, level))

	return model.DecisionOutput{
		RiskLevel:  level,
		Score:      score,
		Reasons:    reasons,
		GatePassed: true,
	}
}

// gate evaluates the TIN/DOB business gate. It engages only when the person
// confidence clears the name-match threshold and at least one candidate was
// found.
func (e *Engine) gate(in model.DecisionInput) (bool, []string) {
	if in.Signals.PersonConfidence < e.w.NameMatchThreshold || len(in.Candidates) == 0 {
		return true, nil
	}

	entry, ok := gateEntryFor(in.Gate, in.Candidates[0].EntityID)
	if !ok || (!entry.HasTIN && !entry.HasDOB) {
		// The listed entity has no TIN or DOB on file, so a name-only
		// match is the strongest possible evidence.
		return true, []string{"business gate passed on name match alone (entry carries no TIN/DOB)"}
	}

	if in.Signals.IDMatch && in.Signals.DateMatch {
		return true, []string{"business gate passed (TIN and DOB corroborated)"}
	}
	return false, nil
}

func gateEntryFor(entries []model.GateEntry, id uuid.UUID) (model.GateEntry, bool) {
	for _, g := range entries {
		if g.EntityID == id {
			return g, true
		}
	}
	return model.GateEntry{}, false
}

type tierBest struct {
	score float64
	name  string
}

// bestPerTier picks the highest candidate score per match type.
func bestPerTier(candidates []model.Candidate) map[model.MatchType]tierBest {
	best := make(map[model.MatchType]tierBest)
	for _, c := range candidates {
		if c.AC == nil {
			continue
		}
		if cur, ok := best[c.AC.MatchType]; !ok || c.AC.Score > cur.score {
			best[c.AC.MatchType] = tierBest{score: c.AC.Score, name: c.MatchedName}
		}
	}
	return best
}

func (e *Engine) tierWeight(t model.MatchType) float64 {
	switch t {
	case model.MatchExact:
		return e.w.Exact
	case model.MatchPhrase:
		return e.w.Phrase
	case model.MatchNgram:
		return e.w.Ngram
	case model.MatchWeak:
		return e.w.Weak
	}
	return 0
}

func (e *Engine) band(score float64) model.RiskLevel {
	switch {
	case score >= e.w.HighThreshold:
		return model.RiskHigh
	case score >= e.w.ReviewThreshold:
		return model.RiskReview
	default:
		return model.RiskClear
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
