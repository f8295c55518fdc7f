package retriever

import (
	"context"

	"github.com/jackzampolin/papercast/internal/podcast"
)

// ScoredChunk is a chunk with its similarity score.
type ScoredChunk struct {
	Chunk podcast.Chunk
	Score float64
}

// ScoredPattern is a style pattern with its similarity score.
type ScoredPattern struct {
	Pattern podcast.StylePattern
	Score   float64
}

// Index stores embedded chunks and style patterns and answers similarity
// queries. Implementations: in-memory (default) and pgvector.
type Index interface {
	// UpsertChunks stores embedded paper chunks.
	UpsertChunks(ctx context.Context, chunks []podcast.Chunk) error

	// SearchChunks returns the k most similar chunks of a paper.
	SearchChunks(ctx context.Context, paperID string, query []float32, k int) ([]ScoredChunk, error)

	// ChunkCount returns the number of indexed chunks for a paper.
	ChunkCount(ctx context.Context, paperID string) (int, error)

	// GetChunks returns a paper's chunks in ordinal order.
	GetChunks(ctx context.Context, paperID string) ([]podcast.Chunk, error)

	// UpsertStylePatterns stores embedded style patterns.
	UpsertStylePatterns(ctx context.Context, patterns []podcast.StylePattern) error

	// SearchStylePatterns returns the k most similar patterns for a style,
	// optionally restricted to a section.
	SearchStylePatterns(ctx context.Context, styleID, section string, query []float32, k int) ([]ScoredPattern, error)

	// StylePatternCount returns the number of indexed patterns for a style.
	StylePatternCount(ctx context.Context, styleID string) (int, error)
}
