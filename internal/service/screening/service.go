// Package screening orchestrates one screening request end to end:
// tokenize, tag, normalize, assemble, search each entity, apply the business
// gate, and decide. The service owns no state beyond its collaborators;
// every request is independent.
package screening

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/lucentpay/sift/internal/assemble"
	"github.com/lucentpay/sift/internal/decision"
	"github.com/lucentpay/sift/internal/model"
	"github.com/lucentpay/sift/internal/morph"
	"github.com/lucentpay/sift/internal/search"
	"github.com/lucentpay/sift/internal/storage"
	"github.com/lucentpay/sift/internal/tagger"
	"github.com/lucentpay/sift/internal/telemetry"
	"github.com/lucentpay/sift/internal/token"
)

// Searcher runs hybrid search for one entity. Implemented by search.Engine.
type Searcher interface {
	Search(ctx context.Context, entity model.NormalizedEntity, opts model.SearchOpts) (search.Result, error)
}

// EntrySource hydrates candidate watchlist entries. Implemented by
// storage.DB; nil disables hydration and the business gate runs with no
// entry data (neutral).
type EntrySource interface {
	EntriesByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.WatchlistEntry, error)
}

// AuditSink records completed screenings. Implemented by storage.DB.
type AuditSink interface {
	RecordScreening(ctx context.Context, rec storage.ScreeningRecord) error
}

// Request is one screening call.
type Request struct {
	Text         string            `json:"text"`
	LanguageHint model.Language    `json:"language,omitempty"`
	Opts         *model.SearchOpts `json:"-"`

	// External corroboration results fed into the decision signals. The
	// matching itself happens upstream of this service.
	DateMatch bool `json:"date_match,omitempty"`
	IDMatch   bool `json:"id_match,omitempty"`
}

// Response is the structured screening result, traces included. A request
// always produces a Response; degradation shows up in the traces, not in an
// error.
type Response struct {
	Language            model.Language           `json:"language"`
	Entities            []model.NormalizedEntity `json:"entities"`
	CandidatesPerEntity [][]model.Candidate      `json:"candidates_per_entity"`
	Decisions           []model.DecisionOutput   `json:"decisions"`
	OverallRisk         model.RiskLevel          `json:"overall_risk"`
	TokenTraces         []model.TokenTrace       `json:"token_traces"`
	SearchTraces        [][]model.StageTrace     `json:"search_traces"`
	Degraded            bool                     `json:"degraded,omitempty"`
}

// Service wires the pipeline stages together.
type Service struct {
	tokenizer  *token.Tokenizer
	tagger     *tagger.Tagger
	normalizer *morph.Normalizer
	assembler  *assemble.Assembler
	searcher   Searcher
	decider    *decision.Engine
	entries    EntrySource
	audit      AuditSink
	opts       model.SearchOpts
	logger     *slog.Logger

	screenDuration metric.Float64Histogram
	riskCount      metric.Int64Counter
}

// New creates a Service. entries and audit may be nil.
func New(
	tokenizer *token.Tokenizer,
	tg *tagger.Tagger,
	normalizer *morph.Normalizer,
	assembler *assemble.Assembler,
	searcher Searcher,
	decider *decision.Engine,
	entries EntrySource,
	audit AuditSink,
	opts model.SearchOpts,
	logger *slog.Logger,
) *Service {
	meter := telemetry.Meter("sift/screening")
	screenDur, _ := meter.Float64Histogram("sift.screening.duration",
		metric.WithDescription("Time to screen one payment text (ms)"),
		metric.WithUnit("ms"),
	)
	riskCount, _ := meter.Int64Counter("sift.screening.decisions",
		metric.WithDescription("Screening decisions by risk level"),
	)
	return &Service{
		tokenizer:  tokenizer,
		tagger:     tg,
		normalizer: normalizer,
		assembler:  assembler,
		searcher:   searcher,
		decider:    decider,
		entries:    entries,
		audit:      audit,
		opts:       opts,
		logger:     logger,

		screenDuration: screenDur,
		riskCount:      riskCount,
	}
}

// Screen processes one request through the full pipeline.
func (s *Service) Screen(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	opts := s.opts
	if req.Opts != nil {
		opts = *req.Opts
	}

	tokens, tokenHit := s.tokenizer.Tokenize(req.LanguageHint, req.Text, token.DefaultFlags)
	lang := token.DetectLanguage(req.LanguageHint, tokens)

	resp := Response{Language: lang, OverallRisk: model.RiskClear}
	if len(tokens) == 0 {
		return resp, nil
	}

	tagged := s.tagger.Tag(lang, tokens, tokenHit)
	normalized := s.normalizer.Normalize(ctx, lang, tagged)

	resp.TokenTraces = make([]model.TokenTrace, len(normalized))
	for i, tg := range normalized {
		resp.TokenTraces[i] = tg.Trace
	}

	resp.Entities = s.assembler.Assemble(normalized)

	for _, entity := range resp.Entities {
		result, err := s.searcher.Search(ctx, entity, opts)
		if err != nil {
			// Search degrades internally; an error here means even the
			// fallback was unusable. The entity still gets a decision.
			s.logger.Error("screening: search failed", "entity", entity.NormalizedText, "error", err)
			result = search.Result{}
		}
		resp.Degraded = resp.Degraded || result.Degraded

		gate := s.hydrate(ctx, result.Candidates)

		out := s.decider.Decide(model.DecisionInput{
			Entity:     entity,
			Candidates: result.Candidates,
			Signals:    s.signals(entity, req),
			Similarity: result.Similarity,
			Gate:       gate,
		})

		resp.CandidatesPerEntity = append(resp.CandidatesPerEntity, result.Candidates)
		resp.SearchTraces = append(resp.SearchTraces, result.Stages)
		resp.Decisions = append(resp.Decisions, out)
		resp.OverallRisk = worseRisk(resp.OverallRisk, out.RiskLevel)
	}

	s.recordAudit(req, resp)
	if s.screenDuration != nil {
		s.screenDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}
	if s.riskCount != nil {
		s.riskCount.Add(ctx, 1, metric.WithAttributes(
			attribute.String("risk_level", string(resp.OverallRisk)),
			attribute.Bool("degraded", resp.Degraded),
		))
	}
	return resp, nil
}

// signals maps entity confidence and request corroboration into decision
// signals. Missing fields stay at their neutral zero value.
func (s *Service) signals(entity model.NormalizedEntity, req Request) model.Signals {
	sig := model.Signals{DateMatch: req.DateMatch, IDMatch: req.IDMatch}
	switch entity.Kind {
	case model.KindPerson:
		sig.PersonConfidence = entity.Confidence
	case model.KindOrganization:
		sig.OrgConfidence = entity.Confidence
	}
	return sig
}

// hydrate fills matched names for vector-only candidates and returns the
// business-gate view of every candidate entry. Storage failure degrades to
// no gate data, which the decision engine treats as neutral.
func (s *Service) hydrate(ctx context.Context, candidates []model.Candidate) []model.GateEntry {
	if s.entries == nil || len(candidates) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.EntityID
	}

	entries, err := s.entries.EntriesByID(ctx, ids)
	if err != nil {
		s.logger.Warn("screening: hydrate candidates failed", "error", err)
		return nil
	}

	gate := make([]model.GateEntry, 0, len(entries))
	for i := range candidates {
		e, ok := entries[candidates[i].EntityID]
		if !ok {
			continue
		}
		if candidates[i].MatchedName == "" {
			candidates[i].MatchedName = e.NormalizedName
		}
		gate = append(gate, e.GateFields())
	}
	return gate
}

// recordAudit writes the audit row outside the request path. The response
// never waits on or fails because of the audit sink.
func (s *Service) recordAudit(req Request, resp Response) {
	if s.audit == nil {
		return
	}

	result, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn("screening: marshal audit result", "error", err)
		return
	}
	rec := storage.ScreeningRecord{
		RawText:  req.Text,
		Language: string(resp.Language),
		Result:   result,
		Degraded: resp.Degraded,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.audit.RecordScreening(ctx, rec); err != nil {
			s.logger.Warn("screening: record audit", "error", err)
		}
	}()
}

func worseRisk(a, b model.RiskLevel) model.RiskLevel {
	rank := map[model.RiskLevel]int{model.RiskClear: 0, model.RiskReview: 1, model.RiskHigh: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
