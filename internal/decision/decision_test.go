package decision

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucentpay/sift/internal/model"
)

func candidate(id uuid.UUID, mt model.MatchType, score float64) model.Candidate {
	return model.Candidate{
		EntityID:    id,
		EntityType:  model.KindPerson,
		MatchedName: "Иван Петров",
		AC:          &model.ACScore{MatchType: mt, Score: score, EntityID: id},
		FusedScore:  score,
	}
}

func TestGatePassesWhenEntryCarriesNeitherField(t *testing.T) {
	// Name-only match against an entry with no TIN and no DOB on file:
	// the gate passes and the weighted formula decides.
	id := uuid.New()
	e := New(DefaultWeights())

	out := e.Decide(model.DecisionInput{
		Candidates: []model.Candidate{candidate(id, model.MatchExact, 0.95)},
		Signals:    model.Signals{PersonConfidence: 0.85},
		Gate:       []model.GateEntry{{EntityID: id, HasTIN: false, HasDOB: false}},
	})

	assert.True(t, out.GatePassed)
	assert.NotEqual(t, model.RiskHigh, out.RiskLevel, "risk comes from the score, not the gate")
	assert.Greater(t, out.Score, 0.0)
	assert.NotContains(t, out.Reasons, GateReason)
}

func TestGateFailsWhenEntryHasBothFields(t *testing.T) {
	id := uuid.New()
	e := New(DefaultWeights())

	out := e.Decide(model.DecisionInput{
		Candidates: []model.Candidate{candidate(id, model.MatchExact, 0.95)},
		Signals:    model.Signals{PersonConfidence: 0.85},
		Gate:       []model.GateEntry{{EntityID: id, HasTIN: true, HasDOB: true}},
	})

	assert.False(t, out.GatePassed)
	assert.Equal(t, model.RiskHigh, out.RiskLevel)
	assert.Equal(t, 0.0, out.Score)
	assert.Contains(t, out.Reasons, GateReason)
}

func TestGatePassesWithCorroboration(t *testing.T) {
	id := uuid.New()
	e := New(DefaultWeights())

	out := e.Decide(model.DecisionInput{
		Candidates: []model.Candidate{candidate(id, model.MatchExact, 0.95)},
		Signals:    model.Signals{PersonConfidence: 0.85, IDMatch: true, DateMatch: true},
		Similarity: model.Similarity{CosTop: 0.90},
		Gate:       []model.GateEntry{{EntityID: id, HasTIN: true, HasDOB: true}},
	})

	assert.True(t, out.GatePassed)
	assert.Equal(t, model.RiskHigh, out.RiskLevel, "exact match with TIN and DOB corroboration is high risk")
	assert.Greater(t, out.Score, 0.0)
}

func TestGateSkippedBelowNameMatchThreshold(t *testing.T) {
	id := uuid.New()
	e := New(DefaultWeights())

	out := e.Decide(model.DecisionInput{
		Candidates: []model.Candidate{candidate(id, model.MatchNgram, 0.62)},
		Signals:    model.Signals{PersonConfidence: 0.50},
		Gate:       []model.GateEntry{{EntityID: id, HasTIN: true, HasDOB: true}},
	})

	assert.True(t, out.GatePassed, "gate engages only on confident name matches")
}

func TestWeightedScoreComposition(t *testing.T) {
	id := uuid.New()
	w := DefaultWeights()
	e := New(w)

	in := model.DecisionInput{
		Candidates: []model.Candidate{candidate(id, model.MatchExact, 0.90)},
		Signals:    model.Signals{PersonConfidence: 0.60, DateMatch: true},
		Similarity: model.Similarity{CosTop: 0.80},
	}
	out := e.Decide(in)

	want := w.Person*0.60 + w.Similarity*0.80 + w.Exact*0.90 + w.DateBonus
	assert.InDelta(t, want, out.Score, 1e-9)
}

func TestDeterminism(t *testing.T) {
	id := uuid.New()
	e := New(DefaultWeights())
	in := model.DecisionInput{
		Candidates: []model.Candidate{
			candidate(id, model.MatchExact, 0.95),
			candidate(uuid.New(), model.MatchNgram, 0.70),
			candidate(uuid.New(), model.MatchPhrase, 0.85),
		},
		Signals:    model.Signals{PersonConfidence: 0.85, IDMatch: true, DateMatch: true},
		Similarity: model.Similarity{CosTop: 0.9, CosP95: 0.7},
		Gate:       []model.GateEntry{{EntityID: id, HasTIN: true, HasDOB: true}},
	}

	first := e.Decide(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.Decide(in))
	}
}

func TestEmptyInputIsClear(t *testing.T) {
	e := New(DefaultWeights())
	out := e.Decide(model.DecisionInput{})

	assert.Equal(t, model.RiskClear, out.RiskLevel)
	assert.Equal(t, 0.0, out.Score)
	assert.True(t, out.GatePassed)
}

func TestNeutralSignalsClamped(t *testing.T) {
	e := New(DefaultWeights())
	out := e.Decide(model.DecisionInput{
		Signals:    model.Signals{PersonConfidence: -3, OrgConfidence: 17},
		Similarity: model.Similarity{CosTop: 2.0},
	})

	w := DefaultWeights()
	assert.InDelta(t, w.Org*1.0+w.Similarity*1.0, out.Score, 1e-9)
	require.NotEmpty(t, out.Reasons)
}

func TestBandThresholds(t *testing.T) {
	w := DefaultWeights()
	e := New(w)

	tests := []struct {
		name  string
		score float64
		want  model.RiskLevel
	}{
		{"below review", 0.39, model.RiskClear},
		{"at review", w.ReviewThreshold, model.RiskReview},
		{"below high", 0.69, model.RiskReview},
		{"at high", w.HighThreshold, model.RiskHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.band(tt.score))
		})
	}
}

func TestWeightsValidate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())

	w := DefaultWeights()
	w.ReviewThreshold = 0.8
	assert.Error(t, w.Validate(), "review above high must fail")

	w = DefaultWeights()
	w.NameMatchThreshold = 1.5
	assert.Error(t, w.Validate())
}
