package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/lucentpay/sift/internal/model"
	"github.com/lucentpay/sift/internal/storage"
)

// WatchlistWriter mutates watchlist entries and their indexes.
// Implemented by watchlist.Service.
type WatchlistWriter interface {
	Upsert(ctx context.Context, e model.WatchlistEntry) (model.WatchlistEntry, error)
	Delete(ctx context.Context, entityID uuid.UUID) error
	Reindex(ctx context.Context) (int, error)
}

// WatchlistReader reads watchlist entries and the screening audit log.
// Implemented by storage.DB.
type WatchlistReader interface {
	GetEntry(ctx context.Context, id uuid.UUID) (model.WatchlistEntry, error)
	ListEntries(ctx context.Context, limit, offset int) ([]model.WatchlistEntry, error)
	CountEntries(ctx context.Context) (int, error)
	ListScreenings(ctx context.Context, limit, offset int) ([]storage.ScreeningRecord, error)
}

// WatchlistDeps bundles the watchlist read and write sides.
type WatchlistDeps struct {
	Writer WatchlistWriter
	Reader WatchlistReader
}

type upsertEntryRequest struct {
	EntityID       *uuid.UUID       `json:"entity_id,omitempty"`
	Kind           model.EntityKind `json:"kind"`
	PrimaryName    string           `json:"primary_name"`
	NormalizedName string           `json:"normalized_name,omitempty"`
	Aliases        []string         `json:"aliases,omitempty"`
	HasTIN         bool             `json:"has_tin"`
	HasDOB         bool             `json:"has_dob"`
}

// HandleUpsertEntry handles POST /v1/watchlist.
func (h *Handlers) HandleUpsertEntry(w http.ResponseWriter, r *http.Request) {
	var req upsertEntryRequest
	if err := decodeJSON(w, r, &req, h.maxBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.PrimaryName == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "primary_name is required")
		return
	}
	if req.Kind != model.KindPerson && req.Kind != model.KindOrganization {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "kind must be person or organization")
		return
	}
	if req.NormalizedName == "" {
		req.NormalizedName = req.PrimaryName
	}

	entry := model.WatchlistEntry{
		Kind:           req.Kind,
		PrimaryName:    req.PrimaryName,
		NormalizedName: req.NormalizedName,
		Aliases:        req.Aliases,
		HasTIN:         req.HasTIN,
		HasDOB:         req.HasDOB,
	}
	if req.EntityID != nil {
		entry.EntityID = *req.EntityID
	}

	saved, err := h.watchlist.Writer.Upsert(r.Context(), entry)
	if err != nil {
		h.logger.Error("upsert watchlist entry", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to save entry")
		return
	}

	status := http.StatusCreated
	if req.EntityID != nil {
		status = http.StatusOK
	}
	writeJSON(w, r, status, saved)
}

// HandleGetEntry handles GET /v1/watchlist/{entity_id}.
func (h *Handlers) HandleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("entity_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid entity_id")
		return
	}

	entry, err := h.watchlist.Reader.GetEntry(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "entry not found")
			return
		}
		h.logger.Error("get watchlist entry", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to load entry")
		return
	}

	writeJSON(w, r, http.StatusOK, entry)
}

// HandleListEntries handles GET /v1/watchlist.
func (h *Handlers) HandleListEntries(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r, 100)

	entries, err := h.watchlist.Reader.ListEntries(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list watchlist entries", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to list entries")
		return
	}

	total, err := h.watchlist.Reader.CountEntries(r.Context())
	if err != nil {
		h.logger.Error("count watchlist entries", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to list entries")
		return
	}

	writeList(w, r, entries, &total, limit, offset, offset+len(entries) < total)
}

// HandleDeleteEntry handles DELETE /v1/watchlist/{entity_id}.
func (h *Handlers) HandleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("entity_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid entity_id")
		return
	}

	if err := h.watchlist.Writer.Delete(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "entry not found")
			return
		}
		h.logger.Error("delete watchlist entry", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to delete entry")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleReindex handles POST /v1/watchlist/reindex.
func (h *Handlers) HandleReindex(w http.ResponseWriter, r *http.Request) {
	n, err := h.watchlist.Writer.Reindex(r.Context())
	if err != nil {
		h.logger.Error("reindex watchlist", "error", err, "indexed", n)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "reindex failed")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int{"indexed": n})
}

// HandleListScreenings handles GET /v1/screenings.
func (h *Handlers) HandleListScreenings(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r, 50)

	recs, err := h.watchlist.Reader.ListScreenings(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list screenings", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to list screenings")
		return
	}

	writeList(w, r, recs, nil, limit, offset, len(recs) == limit)
}

func paginationParams(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
