package retriever

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/jackzampolin/papercast/internal/podcast"
)

// Schema is the SQL DDL for the vector tables. Execute it via
// [PgvectorIndex.Migrate] or apply it manually during deployment.
// The vector dimension must match the configured embedder.
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS paper_chunks (
    chunk_id   TEXT PRIMARY KEY,
    paper_id   TEXT NOT NULL,
    ordinal    INT NOT NULL,
    body       TEXT NOT NULL,
    embedding  vector(%d)
);
CREATE INDEX IF NOT EXISTS idx_paper_chunks_paper ON paper_chunks(paper_id);

CREATE TABLE IF NOT EXISTS style_patterns (
    id         BIGSERIAL PRIMARY KEY,
    style_id   TEXT NOT NULL,
    section    TEXT NOT NULL DEFAULT '',
    body       TEXT NOT NULL,
    embedding  vector(%d)
);
CREATE INDEX IF NOT EXISTS idx_style_patterns_style ON style_patterns(style_id);
`

// DB is the database interface used by [PgvectorIndex]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgvectorIndex is an [Index] backed by PostgreSQL with the pgvector
// extension. Use it when chunks must survive restarts or be shared across
// nodes.
type PgvectorIndex struct {
	db        DB
	dimension int
}

// Compile-time interface check.
var _ Index = (*PgvectorIndex)(nil)

// NewPgvectorIndex creates a new [PgvectorIndex] over the given connection
// or pool. The caller is responsible for calling [PgvectorIndex.Migrate]
// before issuing queries.
func NewPgvectorIndex(db DB, dimension int) *PgvectorIndex {
	if dimension <= 0 {
		dimension = 1536
	}
	return &PgvectorIndex{db: db, dimension: dimension}
}

// Migrate executes the [Schema] DDL against the database.
func (s *PgvectorIndex) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(Schema, s.dimension, s.dimension)
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("retriever: migrate: %w", err)
	}
	return nil
}

// UpsertChunks stores embedded paper chunks.
func (s *PgvectorIndex) UpsertChunks(ctx context.Context, chunks []podcast.Chunk) error {
	const query = `
		INSERT INTO paper_chunks (chunk_id, paper_id, ordinal, body, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chunk_id) DO UPDATE SET
			paper_id = EXCLUDED.paper_id,
			ordinal = EXCLUDED.ordinal,
			body = EXCLUDED.body,
			embedding = EXCLUDED.embedding`

	for _, c := range chunks {
		var vec any
		if len(c.Embedding) > 0 {
			vec = pgvector.NewVector(c.Embedding)
		}
		if _, err := s.db.Exec(ctx, query, c.ChunkID, c.PaperID, c.Ordinal, c.Text, vec); err != nil {
			return fmt.Errorf("retriever: upsert chunk %s: %w", c.ChunkID, err)
		}
	}
	return nil
}

// SearchChunks returns the k most similar chunks of a paper using cosine
// distance.
func (s *PgvectorIndex) SearchChunks(ctx context.Context, paperID string, query []float32, k int) ([]ScoredChunk, error) {
	const sql = `
		SELECT chunk_id, paper_id, ordinal, body, 1 - (embedding <=> $2) AS score
		FROM paper_chunks
		WHERE paper_id = $1 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2
		LIMIT $3`

	rows, err := s.db.Query(ctx, sql, paperID, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("retriever: search chunks: %w", err)
	}
	defer rows.Close()

	var out []ScoredChunk
	for rows.Next() {
		var sc ScoredChunk
		if err := rows.Scan(&sc.Chunk.ChunkID, &sc.Chunk.PaperID, &sc.Chunk.Ordinal, &sc.Chunk.Text, &sc.Score); err != nil {
			return nil, fmt.Errorf("retriever: search chunks scan: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("retriever: search chunks: %w", err)
	}
	return out, nil
}

// ChunkCount returns the number of indexed chunks for a paper.
func (s *PgvectorIndex) ChunkCount(ctx context.Context, paperID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM paper_chunks WHERE paper_id = $1`, paperID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("retriever: chunk count: %w", err)
	}
	return n, nil
}

// GetChunks returns a paper's chunks in ordinal order.
func (s *PgvectorIndex) GetChunks(ctx context.Context, paperID string) ([]podcast.Chunk, error) {
	const sql = `
		SELECT chunk_id, paper_id, ordinal, body
		FROM paper_chunks
		WHERE paper_id = $1
		ORDER BY ordinal`

	rows, err := s.db.Query(ctx, sql, paperID)
	if err != nil {
		return nil, fmt.Errorf("retriever: get chunks: %w", err)
	}
	defer rows.Close()

	var out []podcast.Chunk
	for rows.Next() {
		var c podcast.Chunk
		if err := rows.Scan(&c.ChunkID, &c.PaperID, &c.Ordinal, &c.Text); err != nil {
			return nil, fmt.Errorf("retriever: get chunks scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("retriever: get chunks: %w", err)
	}
	return out, nil
}

// UpsertStylePatterns stores embedded style patterns.
func (s *PgvectorIndex) UpsertStylePatterns(ctx context.Context, patterns []podcast.StylePattern) error {
	const query = `
		INSERT INTO style_patterns (style_id, section, body, embedding)
		VALUES ($1, $2, $3, $4)`

	for _, p := range patterns {
		var vec any
		if len(p.Embedding) > 0 {
			vec = pgvector.NewVector(p.Embedding)
		}
		if _, err := s.db.Exec(ctx, query, p.StyleID, p.Section, p.Text, vec); err != nil {
			return fmt.Errorf("retriever: upsert style pattern: %w", err)
		}
	}
	return nil
}

// SearchStylePatterns returns the k most similar patterns for a style.
func (s *PgvectorIndex) SearchStylePatterns(ctx context.Context, styleID, section string, query []float32, k int) ([]ScoredPattern, error) {
	sql := `
		SELECT style_id, section, body, 1 - (embedding <=> $2) AS score
		FROM style_patterns
		WHERE style_id = $1 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2
		LIMIT $3`
	args := []any{styleID, pgvector.NewVector(query), k}

	if section != "" {
		sql = `
		SELECT style_id, section, body, 1 - (embedding <=> $2) AS score
		FROM style_patterns
		WHERE style_id = $1 AND section = $4 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2
		LIMIT $3`
		args = append(args, section)
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("retriever: search style patterns: %w", err)
	}
	defer rows.Close()

	var out []ScoredPattern
	for rows.Next() {
		var sp ScoredPattern
		if err := rows.Scan(&sp.Pattern.StyleID, &sp.Pattern.Section, &sp.Pattern.Text, &sp.Score); err != nil {
			return nil, fmt.Errorf("retriever: search style patterns scan: %w", err)
		}
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("retriever: search style patterns: %w", err)
	}
	return out, nil
}

// StylePatternCount returns the number of indexed patterns for a style.
func (s *PgvectorIndex) StylePatternCount(ctx context.Context, styleID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM style_patterns WHERE style_id = $1`, styleID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("retriever: style pattern count: %w", err)
	}
	return n, nil
}
