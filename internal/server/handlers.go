package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/lucentpay/sift/internal/auth"
	"github.com/lucentpay/sift/internal/model"
	"github.com/lucentpay/sift/internal/service/screening"
)

// Screener runs one screening request. Implemented by screening.Service.
type Screener interface {
	Screen(ctx context.Context, req screening.Request) (screening.Response, error)
}

// Pinger reports backend liveness. Implemented by storage.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker reports index health. Implemented by index.QdrantVectors
// and index.Snapshot.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

// AgeReporter reports the staleness of the degraded-mode snapshot.
// Implemented by index.Snapshot.
type AgeReporter interface {
	HealthChecker
	Age() time.Duration
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	screener  Screener
	watchlist WatchlistDeps
	jwtMgr    *auth.JWTManager

	pg       Pinger
	vectors  HealthChecker // nil = vector tier disabled
	snapshot AgeReporter   // nil = degraded mode disabled

	adminKeyHash string // Argon2id hash of the bootstrap API key; empty disables /auth/token
	logger       *slog.Logger
	startedAt    time.Time
	version      string
	maxBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Vectors, Snapshot.
type HandlersDeps struct {
	Screener     Screener
	Watchlist    WatchlistDeps
	JWTMgr       *auth.JWTManager
	PG           Pinger
	Vectors      HealthChecker
	Snapshot     AgeReporter
	AdminKeyHash string
	Logger       *slog.Logger
	Version      string
	MaxBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		screener:     d.Screener,
		watchlist:    d.Watchlist,
		jwtMgr:       d.JWTMgr,
		pg:           d.PG,
		vectors:      d.Vectors,
		snapshot:     d.Snapshot,
		adminKeyHash: d.AdminKeyHash,
		logger:       d.Logger,
		startedAt:    time.Now(),
		version:      d.Version,
		maxBodyBytes: d.MaxBodyBytes,
	}
}

type authTokenRequest struct {
	ClientID string    `json:"client_id"`
	APIKey   string    `json:"api_key"`
	Role     auth.Role `json:"role,omitempty"`
}

type authTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Role      auth.Role `json:"role"`
}

// HandleAuthToken handles POST /auth/token. Clients exchange the bootstrap
// API key for a JWT scoped to the requested role (screener by default).
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req authTokenRequest
	if err := decodeJSON(w, r, &req, h.maxBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.ClientID == "" || req.APIKey == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "client_id and api_key are required")
		return
	}

	role := req.Role
	if role == "" {
		role = auth.RoleScreener
	}
	if role != auth.RoleScreener && role != auth.RoleAdmin {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unknown role")
		return
	}

	if h.adminKeyHash == "" {
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}
	valid, err := auth.VerifyAPIKey(req.APIKey, h.adminKeyHash)
	if err != nil || !valid {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(req.ClientID, role)
	if err != nil {
		h.logger.Error("issue token", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to issue token")
		return
	}

	writeJSON(w, r, http.StatusOK, authTokenResponse{Token: token, ExpiresAt: expiresAt, Role: role})
}

// HandleScreen handles POST /v1/screen.
func (h *Handlers) HandleScreen(w http.ResponseWriter, r *http.Request) {
	var req screening.Request
	if err := decodeJSON(w, r, &req, h.maxBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Text == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "text is required")
		return
	}

	resp, err := h.screener.Screen(r.Context(), req)
	if err != nil {
		h.logger.Error("screening failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "screening failed")
		return
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	httpStatus := http.StatusOK

	pgStatus := "connected"
	if err := h.pg.Ping(r.Context()); err != nil {
		pgStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	resp := model.HealthResponse{
		Status:   status,
		Version:  h.version,
		Postgres: pgStatus,
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	}

	if h.vectors != nil {
		if err := h.vectors.Healthy(r.Context()); err == nil {
			resp.Qdrant = "connected"
		} else {
			resp.Qdrant = "disconnected"
			// Vector escalation is optional; text tiers still work.
			if resp.Status == "healthy" {
				resp.Status = "degraded"
			}
		}
	}

	if h.snapshot != nil {
		resp.SnapshotAgeSeconds = int64(h.snapshot.Age().Seconds())
		if err := h.snapshot.Healthy(r.Context()); err == nil {
			resp.Snapshot = "fresh"
		} else {
			resp.Snapshot = "stale"
			// A stale snapshot only matters when Postgres is already down,
			// and that case is unhealthy above.
		}
	}

	writeJSON(w, r, httpStatus, resp)
}
