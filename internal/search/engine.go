// Package search runs hybrid watchlist search: exact, phrase, and ngram text
// tiers in parallel, with conditional escalation to the vector tier when no
// strong text match is found, and score fusion across agreeing tiers.
//
// The engine degrades instead of failing: an unhealthy primary store routes
// the text tiers to the snapshot fallback, a timed-out stage contributes an
// empty (flagged) trace, and a missing vector backend simply disables
// escalation. Every executed stage appears in the trace, hits or not.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lucentpay/sift/internal/embedding"
	"github.com/lucentpay/sift/internal/index"
	"github.com/lucentpay/sift/internal/model"
)

// Stage names recorded in StageTrace.Stage.
const (
	StageExact  = "exact"
	StagePhrase = "phrase"
	StageNgram  = "ngram"
	StageVector = "vector"
)

// Result is the outcome of one hybrid search.
type Result struct {
	Candidates []model.Candidate
	Stages     []model.StageTrace
	Similarity model.Similarity
	Degraded   bool
}

// Engine orchestrates the search tiers.
type Engine struct {
	primary  index.TextStore
	fallback index.TextStore
	vectors  index.VectorStore
	embedder embedding.Provider
	logger   *slog.Logger
}

// New creates an Engine. fallback, vectors, and embedder may each be nil;
// the corresponding capability is then disabled.
func New(primary index.TextStore, fallback index.TextStore, vectors index.VectorStore, embedder embedding.Provider, logger *slog.Logger) *Engine {
	return &Engine{
		primary:  primary,
		fallback: fallback,
		vectors:  vectors,
		embedder: embedder,
		logger:   logger,
	}
}

// Search runs the text tiers concurrently, escalates to the vector tier when
// no strong text match was found, fuses scores, and returns the TopK
// candidates plus the complete stage trace.
func (e *Engine) Search(ctx context.Context, entity model.NormalizedEntity, opts model.SearchOpts) (Result, error) {
	opts = normalizeOpts(opts)

	if entity.NormalizedText == "" {
		return Result{}, nil
	}

	store, degraded := e.pickStore(ctx)
	if store == nil {
		return Result{}, fmt.Errorf("search: no text store available")
	}

	query := entity.NormalizedText
	fetchLimit := opts.TopK * 3

	// Text tiers run concurrently; traces land in fixed slots so the final
	// order is logical stage order, not completion order.
	traces := make([]model.StageTrace, 3, 4)
	hitsByStage := make([][]index.Hit, 3)

	g, gctx := errgroup.WithContext(ctx)
	runStage := func(slot int, stage string, fn func(context.Context) ([]index.Hit, error)) {
		g.Go(func() error {
			stageCtx, cancel := context.WithTimeout(gctx, opts.StageTimeout)
			defer cancel()

			start := time.Now()
			hits, err := fn(stageCtx)
			trace := model.StageTrace{
				Stage:    stage,
				Query:    query,
				TookMS:   msSince(start),
				HitCount: len(hits),
				Degraded: degraded,
			}
			if err != nil {
				if stageCtx.Err() != nil {
					trace.TimedOut = true
					e.logger.Warn("search: stage timed out", "stage", stage, "took_ms", trace.TookMS)
				} else {
					e.logger.Warn("search: stage failed", "stage", stage, "error", err)
				}
				hits = nil
				trace.HitCount = 0
			}
			traces[slot] = trace
			hitsByStage[slot] = hits
			return nil // a failed stage degrades, it never fails the search
		})
	}

	runStage(0, StageExact, func(c context.Context) ([]index.Hit, error) {
		return store.Exact(c, query, fetchLimit)
	})
	runStage(1, StagePhrase, func(c context.Context) ([]index.Hit, error) {
		return store.Phrase(c, query, fetchLimit)
	})
	runStage(2, StageNgram, func(c context.Context) ([]index.Hit, error) {
		return store.Ngram(c, query, opts.WeakFloor, fetchLimit)
	})
	_ = g.Wait()

	candidates := make(map[uuid.UUID]*model.Candidate)
	e.collectText(candidates, StageExact, hitsByStage[0], opts)
	e.collectText(candidates, StagePhrase, hitsByStage[1], opts)
	e.collectText(candidates, StageNgram, hitsByStage[2], opts)

	var sim model.Similarity
	if e.shouldEscalate(candidates, opts) {
		vecTrace, vecHits := e.vectorStage(ctx, entity, opts)
		traces = append(traces, vecTrace)
		sim = e.collectVector(candidates, vecHits, entity.Kind, opts)
	}

	result := Result{
		Candidates: fuseAndRank(candidates, opts),
		Stages:     traces,
		Similarity: sim,
		Degraded:   degraded,
	}
	return result, nil
}

// pickStore returns the primary store when healthy, otherwise the fallback.
func (e *Engine) pickStore(ctx context.Context) (index.TextStore, bool) {
	if e.primary != nil {
		if err := e.primary.Healthy(ctx); err == nil {
			return e.primary, false
		} else if e.fallback != nil {
			e.logger.Warn("search: primary store unhealthy, using snapshot", "error", err)
		}
	}
	if e.fallback != nil && e.fallback.Healthy(ctx) == nil {
		return e.fallback, true
	}
	// Last resort: an unhealthy primary still beats nothing.
	if e.primary != nil {
		return e.primary, false
	}
	return nil, false
}

// collectText folds one text tier's hits into the candidate map, classifying
// each score into a match type and keeping the strongest evidence per entity.
func (e *Engine) collectText(candidates map[uuid.UUID]*model.Candidate, stage string, hits []index.Hit, opts model.SearchOpts) {
	for _, h := range hits {
		mt, ok := classify(stage, h.Score, opts)
		if !ok {
			continue
		}
		ac := &model.ACScore{
			MatchType:    mt,
			Score:        h.Score,
			MatchedField: h.Field,
			EntityID:     h.EntityID,
		}

		c, exists := candidates[h.EntityID]
		if !exists {
			candidates[h.EntityID] = &model.Candidate{
				EntityID:    h.EntityID,
				EntityType:  h.Kind,
				MatchedName: h.Name,
				AC:          ac,
				SourceTrail: []string{trail(stage, h.Score)},
			}
			continue
		}
		c.SourceTrail = append(c.SourceTrail, trail(stage, h.Score))
		if betterAC(ac, c.AC) {
			c.AC = ac
			c.MatchedName = h.Name
		}
	}
}

// classify maps a raw tier score to a match type per the thresholds. A score
// below its tier's threshold can still register as a weak match; below the
// weak floor it is discarded.
func classify(stage string, score float64, opts model.SearchOpts) (model.MatchType, bool) {
	switch stage {
	case StageExact:
		if score >= opts.ExactThreshold {
			return model.MatchExact, true
		}
	case StagePhrase:
		if score >= opts.PhraseThreshold {
			return model.MatchPhrase, true
		}
	case StageNgram:
		if score >= opts.NgramThreshold {
			return model.MatchNgram, true
		}
	}
	if score >= opts.WeakFloor {
		return model.MatchWeak, true
	}
	return "", false
}

// betterAC prefers the stronger match type, then the higher score.
func betterAC(a, b *model.ACScore) bool {
	if a.MatchType != b.MatchType {
		return a.MatchType.Stronger(b.MatchType)
	}
	return a.Score > b.Score
}

// shouldEscalate reports whether the vector tier should run: escalation is
// enabled, a backend exists, and no text candidate is strong (exact or
// phrase).
func (e *Engine) shouldEscalate(candidates map[uuid.UUID]*model.Candidate, opts model.SearchOpts) bool {
	if !opts.EnableEscalation || e.vectors == nil || e.embedder == nil {
		return false
	}
	for _, c := range candidates {
		if c.AC != nil && (c.AC.MatchType == model.MatchExact || c.AC.MatchType == model.MatchPhrase) {
			return false
		}
	}
	return true
}

// vectorStage embeds the query and runs the nearest-neighbor search. Errors
// degrade to an empty trace entry, never fail the request.
func (e *Engine) vectorStage(ctx context.Context, entity model.NormalizedEntity, opts model.SearchOpts) (model.StageTrace, []index.VectorHit) {
	stageCtx, cancel := context.WithTimeout(ctx, opts.StageTimeout)
	defer cancel()

	start := time.Now()
	trace := model.StageTrace{Stage: StageVector, Query: entity.NormalizedText}

	vec, err := e.embedder.Embed(stageCtx, entity.NormalizedText)
	if err != nil {
		trace.TookMS = msSince(start)
		trace.TimedOut = stageCtx.Err() != nil
		e.logger.Warn("search: embed query failed", "error", err)
		return trace, nil
	}

	hits, err := e.vectors.Similar(stageCtx, vec.Slice(), entity.Kind, opts.TopK*3)
	trace.TookMS = msSince(start)
	if err != nil {
		trace.TimedOut = stageCtx.Err() != nil
		e.logger.Warn("search: vector stage failed", "error", err)
		return trace, nil
	}
	trace.HitCount = len(hits)
	return trace, hits
}

// collectVector folds vector hits into the candidate map and computes the
// similarity summary over all returned neighbors.
func (e *Engine) collectVector(candidates map[uuid.UUID]*model.Candidate, hits []index.VectorHit, kind model.EntityKind, opts model.SearchOpts) model.Similarity {
	scores := make([]float64, 0, len(hits))
	for _, h := range hits {
		scores = append(scores, h.Score)
		if h.Score < opts.VectorThreshold {
			continue
		}
		if c, exists := candidates[h.EntityID]; exists {
			c.VectorScore = h.Score
			c.SourceTrail = append(c.SourceTrail, trail(StageVector, h.Score))
		} else {
			candidates[h.EntityID] = &model.Candidate{
				EntityID:    h.EntityID,
				EntityType:  kind,
				VectorScore: h.Score,
				SourceTrail: []string{trail(StageVector, h.Score)},
			}
		}
	}
	return summarize(scores)
}

// fuseAndRank computes the fused score per candidate and returns the TopK in
// deterministic order.
//
// Fusion rewards agreement: the fused score starts at the best single-tier
// score and gains ConsensusBoost for each additional agreeing tier, scaled
// by the weakest agreeing score, capped at 1.0. The fused score is never
// below the best component.
func fuseAndRank(candidates map[uuid.UUID]*model.Candidate, opts model.SearchOpts) []model.Candidate {
	out := make([]model.Candidate, 0, len(candidates))
	for _, c := range candidates {
		var scores []float64
		if c.AC != nil {
			scores = append(scores, c.AC.Score)
		}
		if c.VectorScore > 0 {
			scores = append(scores, c.VectorScore)
		}
		c.FusedScore = fuse(scores, opts.ConsensusBoost)
		out = append(out, *c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		mi, mj := matchTypeOf(out[i]), matchTypeOf(out[j])
		if mi != mj {
			return mi.Stronger(mj)
		}
		return out[i].EntityID.String() < out[j].EntityID.String()
	})

	if len(out) > opts.TopK {
		out = out[:opts.TopK]
	}
	return out
}

// fuse combines per-tier scores for one candidate.
func fuse(scores []float64, boost float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	best, weakest := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s > best {
			best = s
		}
		if s < weakest {
			weakest = s
		}
	}
	fused := best + boost*float64(len(scores)-1)*weakest
	if fused > 1.0 {
		fused = 1.0
	}
	return fused
}

func matchTypeOf(c model.Candidate) model.MatchType {
	if c.AC != nil {
		return c.AC.MatchType
	}
	return model.MatchWeak
}

// summarize computes the top and p95 cosine scores over the vector stage's
// neighbors.
func summarize(scores []float64) model.Similarity {
	if len(scores) == 0 {
		return model.Similarity{}
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	top := sorted[len(sorted)-1]
	idx := int(float64(len(sorted)-1) * 0.95)
	return model.Similarity{CosTop: top, CosP95: sorted[idx]}
}

func trail(stage string, score float64) string {
	return fmt.Sprintf("%s:%.4f", stage, score)
}

func normalizeOpts(opts model.SearchOpts) model.SearchOpts {
	def := model.DefaultSearchOpts()
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = def.StageTimeout
	}
	if opts.ExactThreshold <= 0 {
		opts.ExactThreshold = def.ExactThreshold
	}
	if opts.PhraseThreshold <= 0 {
		opts.PhraseThreshold = def.PhraseThreshold
	}
	if opts.NgramThreshold <= 0 {
		opts.NgramThreshold = def.NgramThreshold
	}
	if opts.WeakFloor <= 0 {
		opts.WeakFloor = def.WeakFloor
	}
	if opts.VectorThreshold <= 0 {
		opts.VectorThreshold = def.VectorThreshold
	}
	if opts.ConsensusBoost < 0 {
		opts.ConsensusBoost = def.ConsensusBoost
	}
	return opts
}

// msSince reports elapsed wall time in milliseconds for stage traces.
func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
