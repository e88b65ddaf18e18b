// Package sift embeds the payment screening service in a Go program.
//
// The zero-dependency path:
//
//	app, err := sift.New(ctx)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// Configuration comes from environment variables (see internal/config);
// options override individual settings and replace pluggable components
// such as the embedding provider and the morphology oracle.
package sift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/pgvector/pgvector-go"

	"github.com/lucentpay/sift/internal/assemble"
	"github.com/lucentpay/sift/internal/auth"
	"github.com/lucentpay/sift/internal/cache"
	"github.com/lucentpay/sift/internal/config"
	"github.com/lucentpay/sift/internal/decision"
	"github.com/lucentpay/sift/internal/embedding"
	"github.com/lucentpay/sift/internal/index"
	"github.com/lucentpay/sift/internal/lexicon"
	"github.com/lucentpay/sift/internal/model"
	"github.com/lucentpay/sift/internal/morph"
	"github.com/lucentpay/sift/internal/ratelimit"
	"github.com/lucentpay/sift/internal/search"
	"github.com/lucentpay/sift/internal/server"
	"github.com/lucentpay/sift/internal/service/screening"
	"github.com/lucentpay/sift/internal/service/watchlist"
	"github.com/lucentpay/sift/internal/storage"
	"github.com/lucentpay/sift/internal/tagger"
	"github.com/lucentpay/sift/internal/telemetry"
	"github.com/lucentpay/sift/internal/token"
	"github.com/lucentpay/sift/migrations"
)

// App is a fully wired screening service. Create with New, start with Run.
type App struct {
	cfg          config.Config
	db           *storage.DB
	qdrant       *index.QdrantVectors
	snapshot     *index.Snapshot
	limiter      ratelimit.Limiter
	tokenCache   *cache.TTLCache[[]model.Token]
	normalizer   *morph.Normalizer
	srv          *server.Server
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New builds an App from environment configuration plus options. It connects
// to Postgres, runs migrations, loads the degraded-mode snapshot, and wires
// the screening pipeline. The returned App is not yet serving; call Run.
func New(ctx context.Context, opts ...Option) (*App, error) {
	var o resolvedOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("sift: load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}

	version := o.version
	if version == "" {
		version = "dev"
	}

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("sift: telemetry: %w", err)
	}

	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("sift: storage: %w", err)
	}

	cleanup := func() {
		db.Close()
		_ = otelShutdown(context.Background())
	}

	// RunMigrations tracks applied files in schema_migrations and skips
	// duplicates, so errors here indicate real failures.
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		cleanup()
		return nil, fmt.Errorf("sift: migrations: %w", err)
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("sift: auth: %w", err)
	}

	var embedder embedding.Provider
	if o.embedder != nil {
		embedder = embedderAdapter{p: o.embedder}
		logger.Info("embedding provider: custom (option override)", "dimensions", embedder.Dimensions())
	} else {
		embedder = newEmbeddingProvider(cfg, logger)
	}

	// Vector escalation is optional. Without Qdrant, or with a noop embedder
	// whose zero vectors match nothing, the text tiers carry the whole search
	// and watchlist writes skip vector indexing.
	var qdrant *index.QdrantVectors
	var vectors index.VectorStore
	var watchVectors watchlist.VectorIndex
	switch {
	case cfg.QdrantURL == "":
		logger.Info("qdrant: disabled (no QDRANT_URL)")
	case !vectorTierEnabled(cfg.QdrantURL, embedder):
		logger.Info("qdrant: disabled (noop embedding provider)")
	default:
		qdrant, err = index.NewQdrantVectors(index.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dims:       uint64(embedder.Dimensions()), //nolint:gosec // Dimensions is validated positive
		}, logger)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("sift: qdrant: %w", err)
		}
		if err := qdrant.EnsureCollection(ctx); err != nil {
			_ = qdrant.Close()
			cleanup()
			return nil, fmt.Errorf("sift: qdrant ensure collection: %w", err)
		}
		vectors = qdrant
		watchVectors = qdrant
		logger.Info("qdrant: enabled", "collection", cfg.QdrantCollection)
	}

	snapshot, err := index.NewSnapshot(cfg.SnapshotMaxAge, logger)
	if err != nil {
		if qdrant != nil {
			_ = qdrant.Close()
		}
		cleanup()
		return nil, fmt.Errorf("sift: snapshot: %w", err)
	}
	if rows, err := db.SnapshotRows(ctx); err != nil {
		logger.Warn("initial snapshot load failed, degraded mode starts cold", "error", err)
	} else if err := snapshot.Refresh(ctx, rows); err != nil {
		logger.Warn("initial snapshot refresh failed", "error", err)
	} else {
		logger.Info("snapshot loaded", "rows", len(rows))
	}

	var oracle morph.Oracle
	switch {
	case o.oracle != nil:
		oracle = oracleAdapter{m: o.oracle}
		logger.Info("morph oracle: custom (option override)")
	case cfg.MorphOracleURL != "":
		oracle = morph.NewHTTPOracle(cfg.MorphOracleURL, cfg.MorphOracleTimeout)
		logger.Info("morph oracle: http", "url", cfg.MorphOracleURL)
	default:
		oracle = morph.NoopOracle{}
		logger.Info("morph oracle: disabled (suffix rules only)")
	}

	lex := lexicon.Default()
	tokenCache := cache.New[[]model.Token](2048, 10*time.Minute)
	tokenizer := token.New(tokenCache)
	tg := tagger.New(lex, tagger.Config{StrictStopwords: true})
	normalizer := morph.New(oracle, lex, cfg.MorphCacheSize, cfg.MorphCacheTTL)
	assembler := assemble.New()
	engine := search.New(index.NewPostgresText(db.Pool()), snapshot, vectors, embedder, logger)
	decider := decision.New(decision.DefaultWeights())

	screeningSvc := screening.New(tokenizer, tg, normalizer, assembler, engine, decider, db, db, cfg.SearchOpts(), logger)
	watchlistSvc := watchlist.New(db, embedder, watchVectors, logger)

	var limiter ratelimit.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	var adminKeyHash string
	if cfg.AdminAPIKey != "" {
		adminKeyHash, err = auth.HashAPIKey(cfg.AdminAPIKey)
		if err != nil {
			_ = limiter.Close()
			normalizer.Close()
			tokenCache.Close()
			if qdrant != nil {
				_ = qdrant.Close()
			}
			_ = snapshot.Close()
			cleanup()
			return nil, fmt.Errorf("sift: hash admin key: %w", err)
		}
	} else {
		logger.Warn("SIFT_ADMIN_API_KEY not set, /auth/token is disabled")
	}

	srv := server.New(server.Config{
		Screener: screeningSvc,
		Watchlist: server.WatchlistDeps{
			Writer: watchlistSvc,
			Reader: db,
		},
		JWTMgr:              jwtMgr,
		PG:                  db,
		Vectors:             healthOrNil(qdrant),
		Snapshot:            snapshot,
		Limiter:             limiter,
		Logger:              logger,
		AdminKeyHash:        adminKeyHash,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	return &App{
		cfg:          cfg,
		db:           db,
		qdrant:       qdrant,
		snapshot:     snapshot,
		limiter:      limiter,
		tokenCache:   tokenCache,
		normalizer:   normalizer,
		srv:          srv,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// healthOrNil avoids handing a typed-nil *QdrantVectors to the server's
// HealthChecker interface field.
func healthOrNil(q *index.QdrantVectors) server.HealthChecker {
	if q == nil {
		return nil
	}
	return q
}

// Run starts the HTTP server and the snapshot refresh loop, then blocks
// until ctx is cancelled or the server fails. It always attempts a graceful
// shutdown before returning.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("sift starting", "version", a.version, "port", a.cfg.Port)

	go a.snapshotRefreshLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	if err := a.Shutdown(context.Background()); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown drains in-flight HTTP requests and releases all resources.
// Safe to call after Run returns; Run calls it itself on exit.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("sift shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err := a.srv.Shutdown(httpCtx)
	cancel()
	if err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	a.closeResources()
	_ = a.otelShutdown(context.Background())
	a.db.Close()

	a.logger.Info("sift stopped")
	return err
}

// closeResources stops the background goroutines New started: the rate
// limiter's eviction loop, the tokenizer and morphology caches, and the
// snapshot index. Nil fields are skipped so a partially built App can be
// torn down.
func (a *App) closeResources() {
	if a.limiter != nil {
		_ = a.limiter.Close()
	}
	if a.normalizer != nil {
		a.normalizer.Close()
	}
	if a.tokenCache != nil {
		a.tokenCache.Close()
	}
	if a.snapshot != nil {
		_ = a.snapshot.Close()
	}
	if a.qdrant != nil {
		_ = a.qdrant.Close()
	}
}

// snapshotRefreshLoop keeps the in-memory fallback index close to the
// Postgres watchlist so a database outage degrades search instead of
// failing it.
func (a *App) snapshotRefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.SnapshotRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opCtx, cancel := context.WithTimeout(ctx, a.cfg.SnapshotRefreshInterval)
			rows, err := a.db.SnapshotRows(opCtx)
			if err != nil {
				cancel()
				a.logger.Warn("snapshot row load failed", "error", err, "age_s", int64(a.snapshot.Age().Seconds()))
				continue
			}
			if err := a.snapshot.Refresh(opCtx, rows); err != nil {
				a.logger.Warn("snapshot refresh failed", "error", err)
			}
			cancel()
		}
	}
}

// newEmbeddingProvider selects a provider from configuration.
// Selection: "openai", "ollama", "noop", or "auto" (default). Auto mode
// tries Ollama if reachable, then OpenAI if a key is present, else noop.
// Ollama is preferred: name embeddings stay on-premises.
func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when SIFT_EMBEDDING_PROVIDER=openai")
			return embedding.NewNoopProvider(cfg.EmbeddingDimensions)
		}
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModel)
		return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel)

	case "ollama":
		logger.Info("embedding provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", cfg.EmbeddingDimensions)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, cfg.EmbeddingDimensions)

	case "noop":
		logger.Info("embedding provider: noop (vector escalation disabled)")
		return embedding.NewNoopProvider(cfg.EmbeddingDimensions)

	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("embedding provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", cfg.EmbeddingDimensions)
			return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, cfg.EmbeddingDimensions)
		}
		if cfg.OpenAIAPIKey != "" {
			logger.Info("embedding provider: openai (auto-detected)", "model", cfg.EmbeddingModel)
			return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel)
		}
		logger.Warn("no embedding provider available, using noop (vector escalation disabled)")
		return embedding.NewNoopProvider(cfg.EmbeddingDimensions)
	}
}

// vectorTierEnabled reports whether vector escalation can do useful work:
// Qdrant is configured and the embedder produces real vectors. A noop
// embedder only yields zero vectors, so wiring Qdrant would add a network
// round trip per escalation that can never match anything.
func vectorTierEnabled(qdrantURL string, embedder embedding.Provider) bool {
	if qdrantURL == "" {
		return false
	}
	_, noop := embedder.(*embedding.NoopProvider)
	return !noop
}

// ollamaReachable checks if an Ollama server is responding.
func ollamaReachable(baseURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// embedderAdapter bridges the public EmbeddingProvider interface onto the
// internal pgvector-based one.
type embedderAdapter struct {
	p EmbeddingProvider
}

func (a embedderAdapter) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	v, err := a.p.Embed(ctx, text)
	if err != nil {
		return pgvector.Vector{}, err
	}
	return pgvector.NewVector(v), nil
}

func (a embedderAdapter) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	vs, err := a.p.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([]pgvector.Vector, len(vs))
	for i, v := range vs {
		out[i] = pgvector.NewVector(v)
	}
	return out, nil
}

func (a embedderAdapter) Dimensions() int {
	return a.p.Dimensions()
}

// oracleAdapter bridges the public MorphOracle interface onto the internal
// morph.Oracle one.
type oracleAdapter struct {
	m MorphOracle
}

func (a oracleAdapter) Analyze(ctx context.Context, tok string, lang model.Language) (morph.Analysis, error) {
	res, err := a.m.Analyze(ctx, tok, string(lang))
	if err != nil {
		return morph.Analysis{}, err
	}
	return morph.Analysis{
		Lemma:      res.Lemma,
		Case:       morph.Case(res.Case),
		Gender:     morph.Gender(res.Gender),
		Confidence: res.Confidence,
	}, nil
}
