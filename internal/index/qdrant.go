package index

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/singleflight"

	"github.com/lucentpay/sift/internal/model"
)

// QdrantConfig holds connection settings for the vector tier.
type QdrantConfig struct {
	URL        string // "https://host:6333" or "http://localhost:6333"
	APIKey     string
	Collection string
	Dims       uint64
}

// NamePoint is one watchlist name vector to upsert.
type NamePoint struct {
	ID        uuid.UUID // point ID, one per (entity, name) pair
	EntityID  uuid.UUID
	Kind      model.EntityKind
	Name      string
	Embedding []float32
}

// QdrantVectors implements VectorStore backed by a Qdrant collection of
// watchlist name embeddings.
type QdrantVectors struct {
	client     *qdrant.Client
	collection string
	dims       uint64
	logger     *slog.Logger

	healthGroup singleflight.Group
	healthErr   atomic.Value // stores *error; inner error may be nil
	healthAt    atomic.Int64 // unix nanos of last check
}

// parseQdrantURL extracts host, port, and TLS flag. The REST port 6333 is
// rewritten to the gRPC port 6334.
func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("index: invalid qdrant URL: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()

	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("index: invalid port in qdrant URL: %q", portStr)
		}
		if p == 6333 {
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}

	return host, port, useTLS, nil
}

// NewQdrantVectors connects to Qdrant over gRPC.
func NewQdrantVectors(cfg QdrantConfig, logger *slog.Logger) (*QdrantVectors, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("index: connect to qdrant at %s:%d: %w", host, port, err)
	}

	return &QdrantVectors{
		client:     client,
		collection: cfg.Collection,
		dims:       cfg.Dims,
		logger:     logger,
	}, nil
}

// EnsureCollection creates the collection if missing and ensures the payload
// index on entity_kind. CreateFieldIndex is idempotent on Qdrant, so it is
// always attempted.
func (q *QdrantVectors) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("index: check collection exists: %w", err)
	}

	if !exists {
		m := uint64(16)
		efConstruct := uint64(128)

		if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     q.dims,
				Distance: qdrant.Distance_Cosine,
				HnswConfig: &qdrant.HnswConfigDiff{
					M:           &m,
					EfConstruct: &efConstruct,
				},
			}),
		}); err != nil {
			return fmt.Errorf("index: create collection %q: %w", q.collection, err)
		}
		q.logger.Info("qdrant: created collection", "collection", q.collection, "dims", q.dims)
	}

	keywordType := qdrant.FieldType_FieldTypeKeyword
	for _, field := range []string{"entity_id", "entity_kind"} {
		if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      &keywordType,
		}); err != nil {
			return fmt.Errorf("index: ensure index on %q: %w", field, err)
		}
	}
	return nil
}

// Similar returns the nearest name vectors of the given kind. One entity may
// appear once per indexed alias; the caller deduplicates, keeping the best
// score.
func (q *QdrantVectors) Similar(ctx context.Context, vector []float32, kind model.EntityKind, limit int) ([]VectorHit, error) {
	if limit <= 0 {
		limit = 10
	}

	must := []*qdrant.Condition{
		qdrant.NewMatch("entity_kind", string(kind)),
	}

	// Over-fetch to absorb alias duplicates of the same entity.
	fetchLimit := uint64(limit) * 3 //nolint:gosec
	scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vector),
		Filter:         &qdrant.Filter{Must: must},
		Limit:          &fetchLimit,
		WithPayload:    qdrant.NewWithPayloadInclude("entity_id"),
	})
	if err != nil {
		return nil, fmt.Errorf("index: qdrant query: %w", err)
	}

	seen := make(map[uuid.UUID]bool, len(scored))
	hits := make([]VectorHit, 0, limit)
	for _, sp := range scored {
		idStr := sp.Payload["entity_id"].GetStringValue()
		if idStr == "" {
			continue
		}
		entityID, err := uuid.Parse(idStr)
		if err != nil {
			q.logger.Warn("qdrant: invalid entity_id in payload", "entity_id", idStr)
			continue
		}
		if seen[entityID] {
			continue // results arrive score-descending; first hit is the best
		}
		seen[entityID] = true
		hits = append(hits, VectorHit{EntityID: entityID, Score: float64(sp.Score)})
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}

// Upsert inserts or updates name points.
func (q *QdrantVectors) Upsert(ctx context.Context, points []NamePoint) error {
	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID.String()),
			Vectors: qdrant.NewVectorsDense(p.Embedding),
			Payload: qdrant.NewValueMap(map[string]any{
				"entity_id":   p.EntityID.String(),
				"entity_kind": string(p.Kind),
				"name":        p.Name,
			}),
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrantPoints,
	})
	if err != nil {
		return fmt.Errorf("index: qdrant upsert %d points: %w", len(points), err)
	}
	return nil
}

// DeleteByEntity removes all name points for a delisted watchlist entity.
func (q *QdrantVectors) DeleteByEntity(ctx context.Context, entityID uuid.UUID) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{
						qdrant.NewMatch("entity_id", entityID.String()),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("index: qdrant delete entity %s: %w", entityID, err)
	}
	return nil
}

// Healthy returns nil if Qdrant is reachable. Results are cached for
// 5 seconds; concurrent checks after expiry are deduplicated via
// singleflight so only one gRPC call is made.
func (q *QdrantVectors) Healthy(ctx context.Context) error {
	if time.Since(time.Unix(0, q.healthAt.Load())) < 5*time.Second {
		return q.loadHealthErr()
	}

	// context.Background() rather than the caller's ctx: singleflight reuses
	// the first caller's context, and a cancel there would poison every
	// waiter with a stale error.
	result, _, _ := q.healthGroup.Do("health", func() (any, error) {
		checkCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		_, err := q.client.HealthCheck(checkCtx)
		if err != nil {
			q.storeHealthErr(fmt.Errorf("index: qdrant unhealthy: %w", err))
		} else {
			q.storeHealthErr(nil)
		}
		q.healthAt.Store(time.Now().UnixNano())
		return q.loadHealthErr(), nil
	})
	if result == nil {
		return nil
	}
	return result.(error)
}

// storeHealthErr wraps err in a pointer because atomic.Value cannot hold nil.
func (q *QdrantVectors) storeHealthErr(err error) {
	q.healthErr.Store(&err)
}

func (q *QdrantVectors) loadHealthErr() error {
	v := q.healthErr.Load()
	if v == nil {
		return nil
	}
	return *v.(*error)
}

// Close shuts down the gRPC connection.
func (q *QdrantVectors) Close() error {
	return q.client.Close()
}
