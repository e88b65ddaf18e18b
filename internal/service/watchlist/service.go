// Package watchlist keeps the reference data and its search indexes in step:
// every entry write lands in Postgres and, when a vector index is configured,
// its names are embedded and upserted into Qdrant.
package watchlist

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lucentpay/sift/internal/embedding"
	"github.com/lucentpay/sift/internal/index"
	"github.com/lucentpay/sift/internal/model"
)

// EntryStore is the slice of storage this service writes through.
// Implemented by storage.DB.
type EntryStore interface {
	UpsertEntry(ctx context.Context, e model.WatchlistEntry) (model.WatchlistEntry, error)
	DeleteEntry(ctx context.Context, id uuid.UUID) error
	ListEntries(ctx context.Context, limit, offset int) ([]model.WatchlistEntry, error)
}

// VectorIndex is the slice of the vector store this service writes to.
// Implemented by index.QdrantVectors.
type VectorIndex interface {
	Upsert(ctx context.Context, points []index.NamePoint) error
	DeleteByEntity(ctx context.Context, entityID uuid.UUID) error
}

// Service coordinates watchlist writes across Postgres and the vector index.
type Service struct {
	db       EntryStore
	embedder embedding.Provider
	vectors  VectorIndex
	logger   *slog.Logger
}

// New creates a Service. vectors may be nil, in which case entries are
// text-searchable only.
func New(db EntryStore, embedder embedding.Provider, vectors VectorIndex, logger *slog.Logger) *Service {
	return &Service{db: db, embedder: embedder, vectors: vectors, logger: logger}
}

// Upsert writes the entry and reindexes its name vectors. Vector indexing is
// best-effort: a Qdrant failure leaves the entry text-searchable and is
// logged, not returned, so the escalation tier can catch up on reindex.
func (s *Service) Upsert(ctx context.Context, e model.WatchlistEntry) (model.WatchlistEntry, error) {
	saved, err := s.db.UpsertEntry(ctx, e)
	if err != nil {
		return model.WatchlistEntry{}, err
	}

	if err := s.indexVectors(ctx, saved); err != nil {
		s.logger.Warn("watchlist: vector indexing failed",
			"entity_id", saved.EntityID, "error", err)
	}
	return saved, nil
}

// Delete removes the entry and its name vectors.
func (s *Service) Delete(ctx context.Context, entityID uuid.UUID) error {
	if err := s.db.DeleteEntry(ctx, entityID); err != nil {
		return err
	}
	if s.vectors != nil {
		if err := s.vectors.DeleteByEntity(ctx, entityID); err != nil {
			s.logger.Warn("watchlist: vector delete failed",
				"entity_id", entityID, "error", err)
		}
	}
	return nil
}

// Reindex re-embeds and re-upserts the vectors for every stored entry.
// Used after the Qdrant collection is recreated or the embedding model
// changes.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	if s.vectors == nil {
		return 0, nil
	}

	const pageSize = 500
	total := 0
	for offset := 0; ; offset += pageSize {
		entries, err := s.db.ListEntries(ctx, pageSize, offset)
		if err != nil {
			return total, fmt.Errorf("watchlist: list entries for reindex: %w", err)
		}
		if len(entries) == 0 {
			return total, nil
		}
		for _, e := range entries {
			if err := s.indexVectors(ctx, e); err != nil {
				return total, fmt.Errorf("watchlist: reindex entity %s: %w", e.EntityID, err)
			}
			total++
		}
	}
}

func (s *Service) indexVectors(ctx context.Context, e model.WatchlistEntry) error {
	if s.vectors == nil || s.embedder == nil {
		return nil
	}

	names := make([]string, 0, 1+len(e.Aliases))
	names = append(names, e.NormalizedName)
	names = append(names, e.Aliases...)

	folded := make([]string, len(names))
	for i, n := range names {
		folded[i] = embedding.Fold(n)
	}

	vecs, err := s.embedder.EmbedBatch(ctx, folded)
	if err != nil {
		return fmt.Errorf("embed names: %w", err)
	}

	points := make([]index.NamePoint, len(names))
	for i, n := range names {
		points[i] = index.NamePoint{
			// Deterministic per (entity, name) so re-upserts overwrite.
			ID:        uuid.NewSHA1(e.EntityID, []byte(n)),
			EntityID:  e.EntityID,
			Kind:      e.Kind,
			Name:      n,
			Embedding: vecs[i].Slice(),
		}
	}
	return s.vectors.Upsert(ctx, points)
}
