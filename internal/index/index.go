// Package index provides the watchlist indexes behind hybrid search: exact,
// phrase, and ngram text tiers over Postgres, a vector tier over Qdrant, and
// an in-memory SQLite snapshot used when the primary cluster is unreachable.
package index

import (
	"context"

	"github.com/google/uuid"

	"github.com/lucentpay/sift/internal/model"
)

// Hit is one watchlist entry surfaced by a text tier.
type Hit struct {
	EntityID uuid.UUID
	Kind     model.EntityKind
	Name     string // the name or alias that matched
	Field    string // "primary_name" or "alias"
	Score    float64
}

// VectorHit is one neighbor from the vector tier. Score is cosine similarity.
type VectorHit struct {
	EntityID uuid.UUID
	Score    float64
}

// TextStore serves the non-vector search tiers. Implementations must be safe
// for concurrent use; the engine runs all three tiers in parallel.
type TextStore interface {
	// Exact matches the normalized name verbatim against primary names and
	// aliases. Hits score 1.0.
	Exact(ctx context.Context, name string, limit int) ([]Hit, error)

	// Phrase matches the name as an ordered token phrase, tolerating extra
	// tokens between and around the query tokens.
	Phrase(ctx context.Context, name string, limit int) ([]Hit, error)

	// Ngram matches by trigram similarity. floor discards hits below the
	// weak-match floor before they reach the engine.
	Ngram(ctx context.Context, name string, floor float64, limit int) ([]Hit, error)

	// Healthy reports whether the store can serve queries right now.
	Healthy(ctx context.Context) error
}

// VectorStore serves the escalation tier.
type VectorStore interface {
	// Similar returns the nearest watchlist name vectors of the given kind.
	Similar(ctx context.Context, vector []float32, kind model.EntityKind, limit int) ([]VectorHit, error)

	// Healthy reports whether the store can serve queries right now.
	Healthy(ctx context.Context) error
}
