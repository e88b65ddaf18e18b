package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lucentpay/sift/internal/index"
	"github.com/lucentpay/sift/internal/model"
)

// UpsertEntry inserts or updates a watchlist entry and rebuilds its rows in
// watchlist_names (one per primary name and alias) atomically. The names
// table is what the text search tiers query.
func (db *DB) UpsertEntry(ctx context.Context, e model.WatchlistEntry) (model.WatchlistEntry, error) {
	if e.EntityID == uuid.Nil {
		e.EntityID = uuid.New()
	}
	e.UpdatedAt = time.Now().UTC()
	if e.Aliases == nil {
		e.Aliases = []string{}
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.WatchlistEntry{}, fmt.Errorf("storage: begin upsert entry tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO watchlist_entries (entity_id, kind, primary_name, normalized_name, aliases, has_tin, has_dob, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (entity_id) DO UPDATE SET
		   kind = EXCLUDED.kind,
		   primary_name = EXCLUDED.primary_name,
		   normalized_name = EXCLUDED.normalized_name,
		   aliases = EXCLUDED.aliases,
		   has_tin = EXCLUDED.has_tin,
		   has_dob = EXCLUDED.has_dob,
		   updated_at = EXCLUDED.updated_at`,
		e.EntityID, string(e.Kind), e.PrimaryName, e.NormalizedName,
		e.Aliases, e.HasTIN, e.HasDOB, e.UpdatedAt,
	); err != nil {
		return model.WatchlistEntry{}, fmt.Errorf("storage: upsert entry: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM watchlist_names WHERE entity_id = $1`, e.EntityID,
	); err != nil {
		return model.WatchlistEntry{}, fmt.Errorf("storage: clear entry names: %w", err)
	}

	insertName := func(name, field string) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO watchlist_names (entity_id, entity_kind, name, folded_name, field)
			 VALUES ($1, $2, $3, lower($3), $4)`,
			e.EntityID, string(e.Kind), name, field,
		)
		return err
	}

	if err := insertName(e.NormalizedName, "primary_name"); err != nil {
		return model.WatchlistEntry{}, fmt.Errorf("storage: insert primary name: %w", err)
	}
	for _, alias := range e.Aliases {
		if err := insertName(alias, "alias"); err != nil {
			return model.WatchlistEntry{}, fmt.Errorf("storage: insert alias: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.WatchlistEntry{}, fmt.Errorf("storage: commit upsert entry tx: %w", err)
	}
	return e, nil
}

// GetEntry retrieves a watchlist entry by ID.
func (db *DB) GetEntry(ctx context.Context, id uuid.UUID) (model.WatchlistEntry, error) {
	var e model.WatchlistEntry
	var kind string
	err := db.pool.QueryRow(ctx,
		`SELECT entity_id, kind, primary_name, normalized_name, aliases, has_tin, has_dob, updated_at
		 FROM watchlist_entries WHERE entity_id = $1`, id,
	).Scan(&e.EntityID, &kind, &e.PrimaryName, &e.NormalizedName, &e.Aliases, &e.HasTIN, &e.HasDOB, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.WatchlistEntry{}, fmt.Errorf("storage: entry %s: %w", id, ErrNotFound)
		}
		return model.WatchlistEntry{}, fmt.Errorf("storage: get entry: %w", err)
	}
	e.Kind = model.EntityKind(kind)
	return e, nil
}

// EntriesByID returns the watchlist entries for a set of candidate IDs.
// Used to hydrate matched names for vector-only candidates and to feed the
// business gate.
func (db *DB) EntriesByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.WatchlistEntry, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]model.WatchlistEntry{}, nil
	}

	rows, err := db.pool.Query(ctx,
		`SELECT entity_id, kind, primary_name, normalized_name, aliases, has_tin, has_dob, updated_at
		 FROM watchlist_entries WHERE entity_id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: entries by id: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]model.WatchlistEntry, len(ids))
	for rows.Next() {
		var e model.WatchlistEntry
		var kind string
		if err := rows.Scan(&e.EntityID, &kind, &e.PrimaryName, &e.NormalizedName, &e.Aliases, &e.HasTIN, &e.HasDOB, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan entry: %w", err)
		}
		e.Kind = model.EntityKind(kind)
		out[e.EntityID] = e
	}
	return out, rows.Err()
}

// GateEntries returns the business-gate view for a set of candidate IDs.
func (db *DB) GateEntries(ctx context.Context, ids []uuid.UUID) ([]model.GateEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := db.pool.Query(ctx,
		`SELECT entity_id, has_tin, has_dob FROM watchlist_entries WHERE entity_id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: gate entries: %w", err)
	}
	defer rows.Close()

	var entries []model.GateEntry
	for rows.Next() {
		var g model.GateEntry
		if err := rows.Scan(&g.EntityID, &g.HasTIN, &g.HasDOB); err != nil {
			return nil, fmt.Errorf("storage: scan gate entry: %w", err)
		}
		entries = append(entries, g)
	}
	return entries, rows.Err()
}

// ListEntries returns watchlist entries with pagination. limit is clamped to
// [1, 1000] with a default of 200.
func (db *DB) ListEntries(ctx context.Context, limit, offset int) ([]model.WatchlistEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := db.pool.Query(ctx,
		`SELECT entity_id, kind, primary_name, normalized_name, aliases, has_tin, has_dob, updated_at
		 FROM watchlist_entries ORDER BY updated_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list entries: %w", err)
	}
	defer rows.Close()

	var entries []model.WatchlistEntry
	for rows.Next() {
		var e model.WatchlistEntry
		var kind string
		if err := rows.Scan(&e.EntityID, &kind, &e.PrimaryName, &e.NormalizedName, &e.Aliases, &e.HasTIN, &e.HasDOB, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan entry: %w", err)
		}
		e.Kind = model.EntityKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteEntry removes an entry; watchlist_names rows cascade.
func (db *DB) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM watchlist_entries WHERE entity_id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: entry %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountEntries returns the number of watchlist entries.
func (db *DB) CountEntries(ctx context.Context) (int, error) {
	var count int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM watchlist_entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("storage: count entries: %w", err)
	}
	return count, nil
}

// SnapshotRows returns every watchlist name for loading into the degraded
// fallback snapshot.
func (db *DB) SnapshotRows(ctx context.Context) ([]index.SnapshotRow, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT entity_id, entity_kind, name, field FROM watchlist_names`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: snapshot rows: %w", err)
	}
	defer rows.Close()

	var out []index.SnapshotRow
	for rows.Next() {
		var r index.SnapshotRow
		var kind string
		if err := rows.Scan(&r.EntityID, &kind, &r.Name, &r.Field); err != nil {
			return nil, fmt.Errorf("storage: scan snapshot row: %w", err)
		}
		r.Kind = model.EntityKind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}
