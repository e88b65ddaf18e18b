package screening

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucentpay/sift/internal/assemble"
	"github.com/lucentpay/sift/internal/decision"
	"github.com/lucentpay/sift/internal/lexicon"
	"github.com/lucentpay/sift/internal/model"
	"github.com/lucentpay/sift/internal/morph"
	"github.com/lucentpay/sift/internal/search"
	"github.com/lucentpay/sift/internal/storage"
	"github.com/lucentpay/sift/internal/tagger"
	"github.com/lucentpay/sift/internal/token"
)

type fakeSearcher struct {
	results map[string]search.Result // keyed by normalized text
}

func (f *fakeSearcher) Search(_ context.Context, entity model.NormalizedEntity, _ model.SearchOpts) (search.Result, error) {
	return f.results[entity.NormalizedText], nil
}

type fakeEntries struct {
	entries map[uuid.UUID]model.WatchlistEntry
}

func (f *fakeEntries) EntriesByID(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]model.WatchlistEntry, error) {
	out := make(map[uuid.UUID]model.WatchlistEntry)
	for _, id := range ids {
		if e, ok := f.entries[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

type fakeAudit struct {
	mu   sync.Mutex
	recs []storage.ScreeningRecord
	done chan struct{}
}

func (f *fakeAudit) RecordScreening(_ context.Context, rec storage.ScreeningRecord) error {
	f.mu.Lock()
	f.recs = append(f.recs, rec)
	f.mu.Unlock()
	close(f.done)
	return nil
}

func newService(searcher Searcher, entries EntrySource, audit AuditSink) *Service {
	lex := lexicon.Default()
	return New(
		token.New(nil),
		tagger.New(lex, tagger.Config{StrictStopwords: true}),
		morph.New(morph.NoopOracle{}, lex, 0, 0),
		assemble.New(),
		searcher,
		decision.New(decision.DefaultWeights()),
		entries,
		audit,
		model.DefaultSearchOpts(),
		slog.Default(),
	)
}

func TestScreenEmptyInput(t *testing.T) {
	svc := newService(&fakeSearcher{}, nil, nil)

	resp, err := svc.Screen(context.Background(), Request{Text: "   "})
	require.NoError(t, err)
	assert.Empty(t, resp.Entities)
	assert.Empty(t, resp.CandidatesPerEntity)
	assert.Empty(t, resp.Decisions)
	assert.Equal(t, model.RiskClear, resp.OverallRisk)
}

func TestScreenOrgAndPerson(t *testing.T) {
	personID := uuid.New()
	searcher := &fakeSearcher{results: map[string]search.Result{
		"Иван Петров": {
			Candidates: []model.Candidate{{
				EntityID:    personID,
				EntityType:  model.KindPerson,
				MatchedName: "Иван Петров",
				AC:          &model.ACScore{MatchType: model.MatchExact, Score: 0.97, EntityID: personID},
				FusedScore:  0.97,
			}},
			Stages: []model.StageTrace{{Stage: "exact", HitCount: 1}},
		},
	}}
	entries := &fakeEntries{entries: map[uuid.UUID]model.WatchlistEntry{
		personID: {EntityID: personID, Kind: model.KindPerson, NormalizedName: "Иван Петров"},
	}}

	svc := newService(searcher, entries, nil)
	resp, err := svc.Screen(context.Background(), Request{Text: "Оплата ТОВ «ПРИВАТБАНК» Ивану Петрову"})
	require.NoError(t, err)

	require.Len(t, resp.Entities, 2)
	assert.Equal(t, model.KindOrganization, resp.Entities[0].Kind)
	assert.Equal(t, "ТОВ ПРИВАТБАНК", resp.Entities[0].NormalizedText)
	assert.Equal(t, model.KindPerson, resp.Entities[1].Kind)
	assert.Equal(t, "Иван Петров", resp.Entities[1].NormalizedText)

	require.Len(t, resp.Decisions, 2)
	require.Len(t, resp.CandidatesPerEntity, 2)
	require.Len(t, resp.SearchTraces, 2)

	// The person entity matched on name only, against an entry with no TIN
	// or DOB on file: the gate passes and the score decides.
	personDecision := resp.Decisions[1]
	assert.True(t, personDecision.GatePassed)
	assert.NotEqual(t, model.RiskClear, personDecision.RiskLevel)
	assert.Equal(t, personDecision.RiskLevel, resp.OverallRisk)
}

func TestScreenGateFailure(t *testing.T) {
	personID := uuid.New()
	searcher := &fakeSearcher{results: map[string]search.Result{
		"Иван Петров": {
			Candidates: []model.Candidate{{
				EntityID:    personID,
				EntityType:  model.KindPerson,
				MatchedName: "Иван Петров",
				AC:          &model.ACScore{MatchType: model.MatchExact, Score: 0.97, EntityID: personID},
				FusedScore:  0.97,
			}},
		},
	}}
	entries := &fakeEntries{entries: map[uuid.UUID]model.WatchlistEntry{
		personID: {EntityID: personID, Kind: model.KindPerson, NormalizedName: "Иван Петров", HasTIN: true, HasDOB: true},
	}}

	svc := newService(searcher, entries, nil)
	resp, err := svc.Screen(context.Background(), Request{Text: "Иван Петров"})
	require.NoError(t, err)

	require.Len(t, resp.Decisions, 1)
	assert.False(t, resp.Decisions[0].GatePassed)
	assert.Equal(t, model.RiskHigh, resp.Decisions[0].RiskLevel)
	assert.Equal(t, model.RiskHigh, resp.OverallRisk)
	assert.Contains(t, resp.Decisions[0].Reasons, decision.GateReason)
}

func TestScreenTraceCompleteness(t *testing.T) {
	svc := newService(&fakeSearcher{}, nil, nil)
	input := "Оплата за товар Иван Петров 1500"

	resp, err := svc.Screen(context.Background(), Request{Text: input})
	require.NoError(t, err)

	tokens, _ := token.New(nil).Tokenize(model.LangAuto, input, token.DefaultFlags)
	assert.Len(t, resp.TokenTraces, len(tokens), "one trace per input token")
}

func TestScreenDegradedPropagates(t *testing.T) {
	searcher := &fakeSearcher{results: map[string]search.Result{
		"Иван Петров": {Degraded: true},
	}}
	svc := newService(searcher, nil, nil)

	resp, err := svc.Screen(context.Background(), Request{Text: "Иван Петров"})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
}

func TestScreenAuditRecorded(t *testing.T) {
	audit := &fakeAudit{done: make(chan struct{})}
	svc := newService(&fakeSearcher{}, nil, audit)

	_, err := svc.Screen(context.Background(), Request{Text: "Иван Петров"})
	require.NoError(t, err)

	select {
	case <-audit.done:
	case <-time.After(2 * time.Second):
		t.Fatal("audit record not written")
	}

	audit.mu.Lock()
	defer audit.mu.Unlock()
	require.Len(t, audit.recs, 1)
	assert.Equal(t, "Иван Петров", audit.recs[0].RawText)
	assert.NotEmpty(t, audit.recs[0].Result)
}
