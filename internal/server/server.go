package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lucentpay/sift/internal/auth"
	"github.com/lucentpay/sift/internal/ratelimit"
)

// Server is the screening HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Config holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Limiter, Vectors, Snapshot.
type Config struct {
	Screener  Screener
	Watchlist WatchlistDeps
	JWTMgr    *auth.JWTManager
	PG        Pinger
	Vectors   HealthChecker
	Snapshot  AgeReporter
	Limiter   ratelimit.Limiter
	Logger    *slog.Logger

	AdminKeyHash string

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg Config) *Server {
	h := NewHandlers(HandlersDeps{
		Screener:     cfg.Screener,
		Watchlist:    cfg.Watchlist,
		JWTMgr:       cfg.JWTMgr,
		PG:           cfg.PG,
		Vectors:      cfg.Vectors,
		Snapshot:     cfg.Snapshot,
		AdminKeyHash: cfg.AdminKeyHash,
		Logger:       cfg.Logger,
		Version:      cfg.Version,
		MaxBodyBytes: cfg.MaxRequestBodyBytes,
	})

	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	// Screening traffic is limited per client; token minting per IP.
	screenRL := ratelimit.Middleware(cfg.Limiter, clientKeyFunc, reqIDFunc)
	authRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Token endpoint (no auth required, rate limited by IP).
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	// Screening (screener or admin, rate limited).
	screenRole := requireRole(auth.RoleScreener, auth.RoleAdmin)
	mux.Handle("POST /v1/screen", screenRL(screenRole(http.HandlerFunc(h.HandleScreen))))

	// Watchlist management and the audit log (admin only, no rate limit).
	adminOnly := requireRole(auth.RoleAdmin)
	mux.Handle("POST /v1/watchlist", adminOnly(http.HandlerFunc(h.HandleUpsertEntry)))
	mux.Handle("GET /v1/watchlist", adminOnly(http.HandlerFunc(h.HandleListEntries)))
	mux.Handle("GET /v1/watchlist/{entity_id}", adminOnly(http.HandlerFunc(h.HandleGetEntry)))
	mux.Handle("DELETE /v1/watchlist/{entity_id}", adminOnly(http.HandlerFunc(h.HandleDeleteEntry)))
	mux.Handle("POST /v1/watchlist/reindex", adminOnly(http.HandlerFunc(h.HandleReindex)))
	mux.Handle("GET /v1/screenings", adminOnly(http.HandlerFunc(h.HandleListScreenings)))

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID, security headers, tracing, logging, auth, recovery, handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// clientKeyFunc extracts the client ID from the request context for rate
// limiting. Admin tokens are exempt.
func clientKeyFunc(r *http.Request) string {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	if claims.Role == auth.RoleAdmin {
		return ""
	}
	return "client:" + claims.ClientID
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
