package sift

import (
	"context"
)

// EmbeddingProvider generates vector embeddings from name text.
// When provided via WithEmbeddingProvider, replaces the auto-detected
// OpenAI/Ollama/noop provider. Uses []float32 (not pgvector.Vector) to avoid
// forcing the pgvector dependency on external consumers. New() wraps it in
// an adapter for internal use.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// MorphAnalysis is a morphology oracle's verdict for one token.
type MorphAnalysis struct {
	Lemma      string
	Case       string // "nominative", "genitive", "dative", "accusative", "instrumental", "prepositional", or "unknown"
	Gender     string // "masc", "fem", or "unknown"
	Confidence float64
}

// MorphOracle analyzes an inflected word. When provided via WithMorphOracle,
// replaces the HTTP oracle configured by SIFT_MORPH_ORACLE_URL. Names still
// pass through the built-in suffix rules first.
// Implementations must be safe for concurrent use.
type MorphOracle interface {
	Analyze(ctx context.Context, token, language string) (MorphAnalysis, error)
}
