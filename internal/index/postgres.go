package index

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lucentpay/sift/internal/model"
)

// PostgresText serves the exact, phrase, and ngram tiers from the watchlist
// tables. Exact and ngram run over watchlist_names (one row per primary name
// or alias); phrase uses the precomputed tsvector column.
//
// Requires the pg_trgm extension and the indexes created by the migrations.
type PostgresText struct {
	pool *pgxpool.Pool
}

// NewPostgresText creates a text store over an existing pool.
func NewPostgresText(pool *pgxpool.Pool) *PostgresText {
	return &PostgresText{pool: pool}
}

// Exact matches the folded name verbatim. Equality is a binary signal, so
// every hit scores 1.0.
func (p *PostgresText) Exact(ctx context.Context, name string, limit int) ([]Hit, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT entity_id, entity_kind, name, field
		 FROM watchlist_names
		 WHERE folded_name = lower($1)
		 LIMIT $2`,
		name, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("index: exact query: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		h := Hit{Score: 1.0}
		var kind string
		if err := rows.Scan(&h.EntityID, &kind, &h.Name, &h.Field); err != nil {
			return nil, fmt.Errorf("index: scan exact hit: %w", err)
		}
		h.Kind = model.EntityKind(kind)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Phrase matches the name as an ordered phrase via phraseto_tsquery over the
// 'simple' configuration — no stemming, names are not prose. Rank is
// normalized by document length so short exact-ish names outrank long entries
// that merely contain the tokens.
func (p *PostgresText) Phrase(ctx context.Context, name string, limit int) ([]Hit, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT entity_id, entity_kind, name, field,
		        ts_rank_cd(name_tsv, phraseto_tsquery('simple', lower($1)), 1) AS rank
		 FROM watchlist_names
		 WHERE name_tsv @@ phraseto_tsquery('simple', lower($1))
		 ORDER BY rank DESC
		 LIMIT $2`,
		name, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("index: phrase query: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var kind string
		if err := rows.Scan(&h.EntityID, &kind, &h.Name, &h.Field, &h.Score); err != nil {
			return nil, fmt.Errorf("index: scan phrase hit: %w", err)
		}
		h.Kind = model.EntityKind(kind)
		if h.Score > 1.0 {
			h.Score = 1.0
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Ngram matches by pg_trgm similarity. set_limit applies the floor inside
// Postgres so the % operator can use the trigram index.
func (p *PostgresText) Ngram(ctx context.Context, name string, floor float64, limit int) ([]Hit, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT entity_id, entity_kind, name, field,
		        similarity(folded_name, lower($1)) AS sml
		 FROM watchlist_names
		 WHERE similarity(folded_name, lower($1)) >= $2
		 ORDER BY sml DESC
		 LIMIT $3`,
		name, floor, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("index: ngram query: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var kind string
		if err := rows.Scan(&h.EntityID, &kind, &h.Name, &h.Field, &h.Score); err != nil {
			return nil, fmt.Errorf("index: scan ngram hit: %w", err)
		}
		h.Kind = model.EntityKind(kind)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Healthy pings the pool.
func (p *PostgresText) Healthy(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("index: postgres unhealthy: %w", err)
	}
	return nil
}
