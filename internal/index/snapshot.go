package index

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/lucentpay/sift/internal/model"
)

// Snapshot is the degraded-mode text store: an in-memory SQLite copy of the
// watchlist names, refreshed periodically from Postgres. When the cluster is
// down, searches run here and every result is flagged degraded.
//
// SQLite's lower() only folds ASCII, so names are folded in Go before they
// are stored or queried. Trigram scoring also runs in Go — the snapshot is
// bounded by the watchlist size, which is small enough to scan.
type Snapshot struct {
	db          *sql.DB
	logger      *slog.Logger
	maxAge      time.Duration
	refreshedAt atomic.Int64 // unix nanos of last successful refresh
}

// SnapshotRow is one watchlist name loaded into the snapshot.
type SnapshotRow struct {
	EntityID uuid.UUID
	Kind     model.EntityKind
	Name     string
	Field    string
}

// NewSnapshot opens the in-memory database and creates the schema. maxAge
// bounds how stale the snapshot may get before Healthy reports an error.
func NewSnapshot(maxAge time.Duration, logger *slog.Logger) (*Snapshot, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("index: open snapshot db: %w", err)
	}
	// The in-memory database lives on a single connection; a second
	// connection would see an empty schema.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE names (
			entity_id TEXT NOT NULL,
			kind      TEXT NOT NULL,
			name      TEXT NOT NULL,
			folded    TEXT NOT NULL,
			field     TEXT NOT NULL
		);
		CREATE INDEX idx_names_folded ON names (folded);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("index: create snapshot schema: %w", err)
	}

	if maxAge <= 0 {
		maxAge = 10 * time.Minute
	}
	return &Snapshot{db: db, logger: logger, maxAge: maxAge}, nil
}

// Refresh replaces the snapshot contents atomically.
func (s *Snapshot) Refresh(ctx context.Context, rows []SnapshotRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin snapshot refresh: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM names`); err != nil {
		return fmt.Errorf("index: clear snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO names (entity_id, kind, name, folded, field) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare snapshot insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.EntityID.String(), string(r.Kind), r.Name, fold(r.Name), r.Field,
		); err != nil {
			return fmt.Errorf("index: insert snapshot row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit snapshot refresh: %w", err)
	}

	s.refreshedAt.Store(time.Now().UnixNano())
	s.logger.Info("snapshot: refreshed", "rows", len(rows))
	return nil
}

// Exact matches the folded name verbatim.
func (s *Snapshot) Exact(ctx context.Context, name string, limit int) ([]Hit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_id, kind, name, field FROM names WHERE folded = ? LIMIT ?`,
		fold(name), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("index: snapshot exact: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []Hit
	for rows.Next() {
		h, err := scanSnapshotHit(rows)
		if err != nil {
			return nil, err
		}
		h.Score = 1.0
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Phrase matches the query tokens in order with arbitrary text between them,
// via a LIKE pattern over the folded name. Score is the folded-length ratio:
// a candidate barely longer than the query scores near 1.0.
func (s *Snapshot) Phrase(ctx context.Context, name string, limit int) ([]Hit, error) {
	folded := fold(name)
	tokens := strings.Fields(folded)
	if len(tokens) == 0 {
		return nil, nil
	}
	pattern := "%" + strings.Join(tokens, "%") + "%"

	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_id, kind, name, field, folded FROM names WHERE folded LIKE ? LIMIT ?`,
		pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("index: snapshot phrase: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var idStr, kind, candFolded string
		if err := rows.Scan(&idStr, &kind, &h.Name, &h.Field, &candFolded); err != nil {
			return nil, fmt.Errorf("index: scan snapshot phrase hit: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		h.EntityID = id
		h.Kind = model.EntityKind(kind)
		h.Score = float64(len(folded)) / float64(len(candFolded))
		if h.Score > 1.0 {
			h.Score = 1.0
		}
		hits = append(hits, h)
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits, rows.Err()
}

// Ngram scans all names and scores them by trigram similarity in Go.
func (s *Snapshot) Ngram(ctx context.Context, name string, floor float64, limit int) ([]Hit, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity_id, kind, name, field, folded FROM names`)
	if err != nil {
		return nil, fmt.Errorf("index: snapshot ngram: %w", err)
	}
	defer func() { _ = rows.Close() }()

	query := trigramSet(fold(name))
	var hits []Hit
	for rows.Next() {
		var h Hit
		var idStr, kind, candFolded string
		if err := rows.Scan(&idStr, &kind, &h.Name, &h.Field, &candFolded); err != nil {
			return nil, fmt.Errorf("index: scan snapshot ngram hit: %w", err)
		}
		score := trigramSimilarity(query, trigramSet(candFolded))
		if score < floor {
			continue
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		h.EntityID = id
		h.Kind = model.EntityKind(kind)
		h.Score = score
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Healthy reports an error when the snapshot has never been loaded or has
// exceeded its staleness bound.
func (s *Snapshot) Healthy(_ context.Context) error {
	at := s.refreshedAt.Load()
	if at == 0 {
		return fmt.Errorf("index: snapshot never refreshed")
	}
	if age := time.Since(time.Unix(0, at)); age > s.maxAge {
		return fmt.Errorf("index: snapshot stale by %s", age-s.maxAge)
	}
	return nil
}

// Age returns the time since the last successful refresh.
func (s *Snapshot) Age() time.Duration {
	at := s.refreshedAt.Load()
	if at == 0 {
		return -1
	}
	return time.Since(time.Unix(0, at))
}

// Close releases the in-memory database.
func (s *Snapshot) Close() error {
	return s.db.Close()
}

type snapshotScanner interface {
	Scan(dest ...any) error
}

func scanSnapshotHit(rows snapshotScanner) (Hit, error) {
	var h Hit
	var idStr, kind string
	if err := rows.Scan(&idStr, &kind, &h.Name, &h.Field); err != nil {
		return Hit{}, fmt.Errorf("index: scan snapshot hit: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return Hit{}, fmt.Errorf("index: snapshot entity_id %q: %w", idStr, err)
	}
	h.EntityID = id
	h.Kind = model.EntityKind(kind)
	return h, nil
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// trigramSet extracts the padded rune trigrams of s, matching pg_trgm's
// convention of two leading and one trailing space per word.
func trigramSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, word := range strings.Fields(s) {
		runes := []rune("  " + word + " ")
		for i := 0; i+3 <= len(runes); i++ {
			set[string(runes[i:i+3])] = true
		}
	}
	return set
}

// trigramSimilarity is |A ∩ B| / |A ∪ B|.
func trigramSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if b[t] {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}
