// Package index maintains the avatar's document knowledge base: a
// PostgreSQL/pgvector-backed store of embedded text chunks, an OpenAI-compatible
// embedding client, and the rebuild/retrieve operations that ground chat
// replies in the Lahn document collection.
package index

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Chunk is one embedded piece of a source document.
type Chunk struct {
	// Source is the document path relative to the docs dir.
	Source string

	// Ordinal is the chunk position within the document.
	Ordinal int

	// Content is the chunk text.
	Content string

	// Embedding is the vector for Content.
	Embedding []float32
}

// Snippet is a retrieval hit.
type Snippet struct {
	Source   string
	Content  string
	Distance float64
}

// Store persists document chunks in a pgvector table. All operations are safe
// for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the PostgreSQL database at dsn, registers pgvector
// types on every connection, and ensures the schema exists.
//
// dimensions must match the embedding model's output width. Changing it after
// the first migration requires dropping the table.
func NewStore(ctx context.Context, dsn string, dimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("index store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so vector columns can
	// be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("index store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("index store: ping: %w", err)
	}

	if err := migrate(ctx, pool, dimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("index store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// migrate installs the pgvector extension and the document chunk table.
func migrate(ctx context.Context, pool *pgxpool.Pool, dimensions int) error {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create extension: %w", err)
	}

	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS document_chunks (
    id         BIGSERIAL    PRIMARY KEY,
    source     TEXT         NOT NULL,
    ordinal    INT          NOT NULL,
    content    TEXT         NOT NULL,
    embedding  VECTOR(%d)   NOT NULL,
    indexed_at TIMESTAMPTZ  NOT NULL DEFAULT now(),
    UNIQUE (source, ordinal)
);

CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding
    ON document_chunks USING hnsw (embedding vector_cosine_ops);
`, dimensions)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// ReplaceAll atomically swaps the whole corpus for chunks: the old rows are
// only gone once every new row is in, so a failed rebuild leaves the previous
// index intact and searchable.
func (s *Store) ReplaceAll(ctx context.Context, chunks []Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("index store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM document_chunks`); err != nil {
		return fmt.Errorf("index store: clear corpus: %w", err)
	}

	const q = `
		INSERT INTO document_chunks (source, ordinal, content, embedding, indexed_at)
		VALUES ($1, $2, $3, $4, $5)`
	now := time.Now()
	for _, c := range chunks {
		vec := pgvector.NewVector(c.Embedding)
		if _, err := tx.Exec(ctx, q, c.Source, c.Ordinal, c.Content, vec, now); err != nil {
			return fmt.Errorf("index store: insert chunk %s#%d: %w", c.Source, c.Ordinal, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("index store: commit: %w", err)
	}
	return nil
}

// Search returns the topK chunks closest (cosine distance) to the query
// embedding, most similar first.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int) ([]Snippet, error) {
	const q = `
		SELECT source, content, embedding <=> $1 AS distance
		FROM   document_chunks
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("index store: search: %w", err)
	}

	snippets, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Snippet, error) {
		var sn Snippet
		err := row.Scan(&sn.Source, &sn.Content, &sn.Distance)
		return sn, err
	})
	if err != nil {
		return nil, fmt.Errorf("index store: scan rows: %w", err)
	}
	return snippets, nil
}

// Count returns the number of indexed chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM document_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index store: count: %w", err)
	}
	return n, nil
}

// Ping verifies database connectivity, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the pool.
func (s *Store) Close() {
	s.pool.Close()
}
