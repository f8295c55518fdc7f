// Package retriever indexes paper bodies and style patterns into a vector
// store and serves similarity queries for grounding and phrasing.
package retriever

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jackzampolin/papercast/internal/podcast"
)

// ChunkerConfig controls word-window chunking.
type ChunkerConfig struct {
	ChunkWords   int // window size (300)
	OverlapWords int // overlap between consecutive windows (100)
	MinWords     int // windows below this are merged into the previous chunk (50)
}

// DefaultChunkerConfig returns the standard chunking parameters.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		ChunkWords:   300,
		OverlapWords: 100,
		MinWords:     50,
	}
}

// ChunkPaper splits a paper body into overlapping word windows. The final
// window is merged into its predecessor when it falls below MinWords, so no
// chunk is ever shorter than MinWords unless the whole paper is.
func ChunkPaper(paper *podcast.Paper, cfg ChunkerConfig) ([]podcast.Chunk, error) {
	if cfg.ChunkWords <= 0 {
		cfg = DefaultChunkerConfig()
	}
	if cfg.OverlapWords >= cfg.ChunkWords {
		return nil, fmt.Errorf("overlap %d must be smaller than chunk size %d", cfg.OverlapWords, cfg.ChunkWords)
	}

	words := strings.Fields(paper.Body)
	if len(words) == 0 {
		return nil, fmt.Errorf("paper %s has empty body", paper.PaperID)
	}

	stride := cfg.ChunkWords - cfg.OverlapWords

	var chunks []podcast.Chunk
	for start := 0; start < len(words); start += stride {
		end := start + cfg.ChunkWords
		if end > len(words) {
			end = len(words)
		}

		window := words[start:end]

		// Merge a short tail into the previous chunk instead of emitting it.
		if len(window) < cfg.MinWords && len(chunks) > 0 {
			prev := &chunks[len(chunks)-1]
			prevWords := strings.Fields(prev.Text)
			// The tail overlaps the previous window; only append the new part.
			newStart := start + cfg.OverlapWords
			if newStart < len(words) {
				prevWords = append(prevWords, words[newStart:]...)
				prev.Text = strings.Join(prevWords, " ")
			}
			break
		}

		chunks = append(chunks, podcast.Chunk{
			ChunkID: uuid.New().String(),
			PaperID: paper.PaperID,
			Ordinal: len(chunks),
			Text:    strings.Join(window, " "),
		})

		if end == len(words) {
			break
		}
	}

	return chunks, nil
}
