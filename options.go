package sift

import (
	"log/slog"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port        int
	databaseURL string
	logger      *slog.Logger
	version     string
	embedder    EmbeddingProvider
	oracle      MorphOracle
}

// WithPort overrides the TCP port from config (SIFT_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the database connection string from config (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithEmbeddingProvider replaces the auto-detected embedding provider
// (OpenAI/Ollama/noop). Only the vector escalation tier uses embeddings;
// the text tiers are unaffected.
func WithEmbeddingProvider(p EmbeddingProvider) Option {
	return func(o *resolvedOptions) { o.embedder = p }
}

// WithMorphOracle replaces the morphology oracle configured via
// SIFT_MORPH_ORACLE_URL. Names still pass through the built-in suffix
// normalizer first; the oracle only handles tokens the rules cannot.
func WithMorphOracle(m MorphOracle) Option {
	return func(o *resolvedOptions) { o.oracle = m }
}
