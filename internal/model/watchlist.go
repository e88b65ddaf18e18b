package model

import (
	"time"

	"github.com/google/uuid"
)

// WatchlistEntry is one row of the reference dataset being screened against.
// Only the fields the core consumes are modeled; list provenance, programs
// and remarks stay in storage.
type WatchlistEntry struct {
	EntityID       uuid.UUID  `json:"entity_id"`
	Kind           EntityKind `json:"kind"`
	PrimaryName    string     `json:"primary_name"`
	NormalizedName string     `json:"normalized_name"`
	Aliases        []string   `json:"aliases,omitempty"`
	HasTIN         bool       `json:"has_tin"`
	HasDOB         bool       `json:"has_dob"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// GateFields extracts the business-gate view of the entry.
func (e WatchlistEntry) GateFields() GateEntry {
	return GateEntry{EntityID: e.EntityID, HasTIN: e.HasTIN, HasDOB: e.HasDOB}
}
