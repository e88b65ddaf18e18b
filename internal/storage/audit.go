package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScreeningRecord is one audit row: the raw input and the full structured
// result, kept for replay and dispute handling.
type ScreeningRecord struct {
	ID        uuid.UUID `json:"id"`
	RawText   string    `json:"raw_text"`
	Language  string    `json:"language"`
	Result    []byte    `json:"result"` // response JSON, traces included
	Degraded  bool      `json:"degraded"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordScreening inserts an audit row. Failures are the caller's to log;
// screening responses never block on the audit write.
func (db *DB) RecordScreening(ctx context.Context, rec ScreeningRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO screenings (id, raw_text, language, result, degraded, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.RawText, rec.Language, rec.Result, rec.Degraded, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: record screening: %w", err)
	}
	return nil
}

// ListScreenings returns recent audit rows, newest first.
func (db *DB) ListScreenings(ctx context.Context, limit, offset int) ([]ScreeningRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, raw_text, language, result, degraded, created_at
		 FROM screenings ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list screenings: %w", err)
	}
	defer rows.Close()

	var recs []ScreeningRecord
	for rows.Next() {
		var r ScreeningRecord
		if err := rows.Scan(&r.ID, &r.RawText, &r.Language, &r.Result, &r.Degraded, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan screening: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
