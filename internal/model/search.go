package model

import (
	"time"

	"github.com/google/uuid"
)

// MatchType labels which search tier produced a score.
// Tie-break strength: exact > phrase > ngram > weak.
type MatchType string

const (
	MatchExact  MatchType = "exact"
	MatchPhrase MatchType = "phrase"
	MatchNgram  MatchType = "ngram"
	MatchWeak   MatchType = "weak"
)

var matchStrength = map[MatchType]int{
	MatchExact:  4,
	MatchPhrase: 3,
	MatchNgram:  2,
	MatchWeak:   1,
}

// Stronger reports whether m outranks other in the tie-break order.
func (m MatchType) Stronger(other MatchType) bool {
	return matchStrength[m] > matchStrength[other]
}

// SearchOpts parameterizes one hybrid search. Passed by value; components
// never consult ambient flags.
type SearchOpts struct {
	TopK             int
	ExactThreshold   float64
	PhraseThreshold  float64
	NgramThreshold   float64
	WeakFloor        float64 // below NgramThreshold but at/above this → weak hit
	VectorThreshold  float64
	EnableEscalation bool
	StageTimeout     time.Duration
	ConsensusBoost   float64 // bonus per extra agreeing stage, see search.Fuse
}

// DefaultSearchOpts returns the thresholds used when the caller passes none.
func DefaultSearchOpts() SearchOpts {
	return SearchOpts{
		TopK:             10,
		ExactThreshold:   0.92,
		PhraseThreshold:  0.80,
		NgramThreshold:   0.60,
		WeakFloor:        0.40,
		VectorThreshold:  0.70,
		EnableEscalation: true,
		StageTimeout:     2 * time.Second,
		ConsensusBoost:   0.05,
	}
}

// ACScore is one text-tier (non-vector) hit against the index store.
type ACScore struct {
	MatchType    MatchType `json:"match_type"`
	Score        float64   `json:"score"`
	MatchedField string    `json:"matched_field"`
	EntityID     uuid.UUID `json:"entity_id"`
}

// Candidate is one watchlist entity surfaced by any combination of search
// tiers, with per-source scores and the fused ranking score.
type Candidate struct {
	EntityID    uuid.UUID  `json:"entity_id"`
	EntityType  EntityKind `json:"entity_type"`
	MatchedName string     `json:"matched_name"`
	AC          *ACScore   `json:"ac_score,omitempty"`
	VectorScore float64    `json:"vector_score"`
	FusedScore  float64    `json:"fused_score"`
	SourceTrail []string   `json:"source_trail"`
}

// StageTrace records one executed search stage, including stages that
// returned nothing, timed out, or ran against the degraded fallback index.
// Entries are ordered by logical stage, not wall-clock completion.
type StageTrace struct {
	Stage    string  `json:"stage"`
	Query    string  `json:"query"`
	TookMS   float64 `json:"took_ms"`
	HitCount int     `json:"hit_count"`
	Degraded bool    `json:"degraded,omitempty"`
	TimedOut bool    `json:"timed_out,omitempty"`
}
