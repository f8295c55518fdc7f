package retriever

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/jackzampolin/papercast/internal/podcast"
)

// MemoryIndex is the default in-process Index. Suitable for single-node
// deployments and tests.
type MemoryIndex struct {
	mu       sync.RWMutex
	chunks   map[string][]podcast.Chunk        // paperID -> chunks
	patterns map[string][]podcast.StylePattern // styleID -> patterns
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		chunks:   make(map[string][]podcast.Chunk),
		patterns: make(map[string][]podcast.StylePattern),
	}
}

// UpsertChunks stores embedded paper chunks.
func (m *MemoryIndex) UpsertChunks(_ context.Context, chunks []podcast.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range chunks {
		existing := m.chunks[c.PaperID]
		replaced := false
		for i := range existing {
			if existing[i].ChunkID == c.ChunkID {
				existing[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, c)
		}
		m.chunks[c.PaperID] = existing
	}
	return nil
}

// SearchChunks returns the k most similar chunks of a paper by cosine
// similarity.
func (m *MemoryIndex) SearchChunks(_ context.Context, paperID string, query []float32, k int) ([]ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var scored []ScoredChunk
	for _, c := range m.chunks[paperID] {
		if len(c.Embedding) == 0 {
			continue
		}
		scored = append(scored, ScoredChunk{
			Chunk: c,
			Score: cosineSimilarity(query, c.Embedding),
		})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// ChunkCount returns the number of indexed chunks for a paper.
func (m *MemoryIndex) ChunkCount(_ context.Context, paperID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks[paperID]), nil
}

// GetChunks returns a paper's chunks in ordinal order.
func (m *MemoryIndex) GetChunks(_ context.Context, paperID string) ([]podcast.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]podcast.Chunk, len(m.chunks[paperID]))
	copy(out, m.chunks[paperID])
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

// UpsertStylePatterns stores embedded style patterns.
func (m *MemoryIndex) UpsertStylePatterns(_ context.Context, patterns []podcast.StylePattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range patterns {
		m.patterns[p.StyleID] = append(m.patterns[p.StyleID], p)
	}
	return nil
}

// SearchStylePatterns returns the k most similar patterns for a style.
func (m *MemoryIndex) SearchStylePatterns(_ context.Context, styleID, section string, query []float32, k int) ([]ScoredPattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var scored []ScoredPattern
	for _, p := range m.patterns[styleID] {
		if section != "" && p.Section != section {
			continue
		}
		if len(p.Embedding) == 0 {
			continue
		}
		scored = append(scored, ScoredPattern{
			Pattern: p,
			Score:   cosineSimilarity(query, p.Embedding),
		})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// StylePatternCount returns the number of indexed patterns for a style.
func (m *MemoryIndex) StylePatternCount(_ context.Context, styleID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.patterns[styleID]), nil
}

// cosineSimilarity returns the cosine of the angle between two vectors.
// Mismatched or zero-length vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Compile-time interface check.
var _ Index = (*MemoryIndex)(nil)
