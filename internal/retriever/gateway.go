package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/papercast/internal/budget"
	"github.com/jackzampolin/papercast/internal/podcast"
	"github.com/jackzampolin/papercast/internal/providers"
)

// GatewayConfig holds indexing and retrieval tuning.
type GatewayConfig struct {
	Chunker          ChunkerConfig
	BatchSize        int           // embedding batch size (64)
	BatchDelay       time.Duration // pause between embedding batches
	RetrievalK       int           // default top-k (5)
	MinIndexCoverage float64       // minimum embedded fraction to accept a paper (0.5)
}

// Gateway owns chunking, embedding, and similarity search for papers and
// style patterns. Retrieval degrades to ordinal text slices when the
// embedder is unavailable, flagged so downstream marks drafts degraded.
type Gateway struct {
	index    Index
	embedder providers.Embedder
	governor *budget.Governor
	limiter  *providers.RateLimiter
	logger   *slog.Logger
	cfg      GatewayConfig
}

// IndexReport summarizes one paper indexing run.
type IndexReport struct {
	PaperID       string  `json:"paper_id"`
	TotalChunks   int     `json:"total_chunks"`
	EmbeddedCount int     `json:"embedded_count"`
	CoverageRatio float64 `json:"coverage_ratio"`
	Degraded      bool    `json:"degraded"`
	TokensUsed    int64   `json:"tokens_used"`
}

// NewGateway creates a retriever gateway.
func NewGateway(index Index, embedder providers.Embedder, governor *budget.Governor, logger *slog.Logger, cfg GatewayConfig) *Gateway {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.RetrievalK <= 0 {
		cfg.RetrievalK = 5
	}
	if cfg.MinIndexCoverage <= 0 {
		cfg.MinIndexCoverage = 0.5
	}
	if cfg.Chunker.ChunkWords <= 0 {
		cfg.Chunker = DefaultChunkerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		index:    index,
		embedder: embedder,
		governor: governor,
		limiter:  providers.NewRateLimiter(600),
		logger:   logger,
		cfg:      cfg,
	}
}

// IndexPaper chunks and embeds a paper body into the index. Batches that
// fail to embed are stored without vectors; the report carries the coverage
// ratio. Coverage below MinIndexCoverage fails the run.
func (g *Gateway) IndexPaper(ctx context.Context, jobID string, paper *podcast.Paper) (*IndexReport, error) {
	chunks, err := ChunkPaper(paper, g.cfg.Chunker)
	if err != nil {
		return nil, podcast.WrapError(podcast.ErrBadInput, err)
	}

	log := g.logger.With("job_id", jobID, "paper_id", paper.PaperID)
	log.Info("indexing paper", "chunks", len(chunks))

	report := &IndexReport{PaperID: paper.PaperID, TotalChunks: len(chunks)}

	for start := 0; start < len(chunks); start += g.cfg.BatchSize {
		end := start + g.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		inputs := make([]string, len(batch))
		var estTokens int64
		for i, c := range batch {
			inputs[i] = c.Text
			estTokens += int64(len(c.Text) / 4)
		}

		if err := g.governor.CheckPrecall(jobID, budget.OpEmbedding, estTokens, 0); err != nil {
			return nil, err
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, podcast.WrapError(podcast.ErrCancelled, err)
		}

		result, embedErr := g.embedder.Embed(ctx, &providers.EmbedRequest{Inputs: inputs})

		usage := budget.Usage{
			JobID:    jobID,
			Stage:    "indexing",
			ItemKey:  fmt.Sprintf("batch_%d", start/g.cfg.BatchSize),
			Op:       budget.OpEmbedding,
			Provider: g.embedder.Name(),
			Success:  embedErr == nil,
		}
		if result != nil {
			usage.Tokens = int64(result.TotalTokens)
			usage.CostUSD = result.CostUSD
		}
		if embedErr != nil {
			usage.ErrorType = "embed_error"
		}
		g.governor.RecordUsage(usage)
		report.TokensUsed += usage.Tokens

		if embedErr != nil {
			if ctx.Err() != nil {
				return nil, podcast.WrapError(podcast.ErrCancelled, ctx.Err())
			}
			log.Warn("embedding batch failed, storing without vectors",
				"batch_start", start, "error", embedErr)
		} else {
			for i := range batch {
				batch[i].Embedding = result.Embeddings[i]
			}
			report.EmbeddedCount += len(batch)
		}

		if err := g.index.UpsertChunks(ctx, batch); err != nil {
			return nil, podcast.WrapError(podcast.ErrInternal, err)
		}

		if g.cfg.BatchDelay > 0 && end < len(chunks) {
			select {
			case <-ctx.Done():
				return nil, podcast.WrapError(podcast.ErrCancelled, ctx.Err())
			case <-time.After(g.cfg.BatchDelay):
			}
		}
	}

	report.CoverageRatio = float64(report.EmbeddedCount) / float64(report.TotalChunks)
	report.Degraded = report.EmbeddedCount < report.TotalChunks

	if report.CoverageRatio < g.cfg.MinIndexCoverage {
		return report, podcast.NewError(podcast.ErrUpstreamPermanent,
			"index coverage %.2f below minimum %.2f for paper %s",
			report.CoverageRatio, g.cfg.MinIndexCoverage, paper.PaperID)
	}

	log.Info("paper indexed",
		"embedded", report.EmbeddedCount,
		"coverage", report.CoverageRatio,
		"degraded", report.Degraded)
	return report, nil
}

// IndexStyles embeds and stores style patterns. Styles are shared across
// jobs, so usage is attributed to the given jobID only when set.
func (g *Gateway) IndexStyles(ctx context.Context, jobID string, patterns []podcast.StylePattern) error {
	for start := 0; start < len(patterns); start += g.cfg.BatchSize {
		end := start + g.cfg.BatchSize
		if end > len(patterns) {
			end = len(patterns)
		}
		batch := patterns[start:end]

		inputs := make([]string, len(batch))
		for i, p := range batch {
			inputs[i] = p.Text
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return podcast.WrapError(podcast.ErrCancelled, err)
		}

		result, err := g.embedder.Embed(ctx, &providers.EmbedRequest{Inputs: inputs})
		if err != nil {
			return podcast.WrapError(podcast.ErrUpstreamTransient, err)
		}

		if jobID != "" {
			g.governor.RecordUsage(budget.Usage{
				JobID:    jobID,
				Stage:    "indexing",
				ItemKey:  "styles",
				Op:       budget.OpEmbedding,
				Provider: g.embedder.Name(),
				Tokens:   int64(result.TotalTokens),
				CostUSD:  result.CostUSD,
				Success:  true,
			})
		}

		for i := range batch {
			batch[i].Embedding = result.Embeddings[i]
		}
		if err := g.index.UpsertStylePatterns(ctx, batch); err != nil {
			return podcast.WrapError(podcast.ErrInternal, err)
		}
	}
	return nil
}

// RetrieveFacts returns the chunks most relevant to the query. When the
// embedder fails, it falls back to the paper's first chunks in ordinal
// order and reports degraded=true.
func (g *Gateway) RetrieveFacts(ctx context.Context, jobID, paperID, query string, k int) ([]podcast.Chunk, bool, error) {
	if k <= 0 {
		k = g.cfg.RetrievalK
	}

	vec, err := g.embedQuery(ctx, jobID, query)
	if err != nil {
		if podcast.KindOf(err) == podcast.ErrCancelled || podcast.KindOf(err) == podcast.ErrBudgetExceeded {
			return nil, false, err
		}
		g.logger.Warn("query embedding failed, falling back to ordinal slices",
			"job_id", jobID, "paper_id", paperID, "error", err)
		chunks, ferr := g.fallbackChunks(ctx, paperID, k)
		return chunks, true, ferr
	}

	scored, err := g.index.SearchChunks(ctx, paperID, vec, k)
	if err != nil {
		return nil, false, podcast.WrapError(podcast.ErrInternal, err)
	}
	if len(scored) == 0 {
		// Nothing embedded for this paper; degrade rather than return empty context.
		chunks, ferr := g.fallbackChunks(ctx, paperID, k)
		return chunks, true, ferr
	}

	chunks := make([]podcast.Chunk, len(scored))
	for i, s := range scored {
		chunks[i] = s.Chunk
	}
	return chunks, false, nil
}

// RetrieveStyles returns the style patterns most similar to the query.
// Style retrieval failures are non-fatal; callers proceed without patterns.
func (g *Gateway) RetrieveStyles(ctx context.Context, jobID, styleID, section, query string, k int) ([]podcast.StylePattern, error) {
	if k <= 0 {
		k = g.cfg.RetrievalK
	}

	vec, err := g.embedQuery(ctx, jobID, query)
	if err != nil {
		return nil, err
	}

	scored, err := g.index.SearchStylePatterns(ctx, styleID, section, vec, k)
	if err != nil {
		return nil, podcast.WrapError(podcast.ErrInternal, err)
	}

	patterns := make([]podcast.StylePattern, len(scored))
	for i, s := range scored {
		patterns[i] = s.Pattern
	}
	return patterns, nil
}

func (g *Gateway) embedQuery(ctx context.Context, jobID, query string) ([]float32, error) {
	estTokens := int64(len(query) / 4)
	if err := g.governor.CheckPrecall(jobID, budget.OpEmbedding, estTokens, 0); err != nil {
		return nil, err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, podcast.WrapError(podcast.ErrCancelled, err)
	}

	result, err := g.embedder.Embed(ctx, &providers.EmbedRequest{Inputs: []string{query}})

	usage := budget.Usage{
		JobID:    jobID,
		Stage:    "retrieval",
		Op:       budget.OpEmbedding,
		Provider: g.embedder.Name(),
		Success:  err == nil,
	}
	if result != nil {
		usage.Tokens = int64(result.TotalTokens)
		usage.CostUSD = result.CostUSD
	}
	if err != nil {
		usage.ErrorType = "embed_error"
	}
	g.governor.RecordUsage(usage)

	if err != nil {
		return nil, podcast.WrapError(podcast.ErrUpstreamTransient, err)
	}
	if len(result.Embeddings) != 1 {
		return nil, podcast.NewError(podcast.ErrUpstreamPermanent, "embedder returned %d vectors for one input", len(result.Embeddings))
	}
	return result.Embeddings[0], nil
}

func (g *Gateway) fallbackChunks(ctx context.Context, paperID string, k int) ([]podcast.Chunk, error) {
	chunks, err := g.index.GetChunks(ctx, paperID)
	if err != nil {
		return nil, podcast.WrapError(podcast.ErrInternal, err)
	}
	if len(chunks) == 0 {
		return nil, podcast.NewError(podcast.ErrInternal, "no chunks indexed for paper %s", paperID)
	}
	if len(chunks) > k {
		chunks = chunks[:k]
	}
	return chunks, nil
}
