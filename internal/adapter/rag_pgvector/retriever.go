package rag_pgvector

import (
	"context"
	"fmt"
	"log/slog"

	"programme-qa/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// Schema creates the documents table searched by Retriever.
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS documents (
	filename    TEXT PRIMARY KEY,
	filepath    TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL,
	file_size   BIGINT NOT NULL DEFAULT 0,
	source_hash TEXT NOT NULL DEFAULT '',
	embedding   vector NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const searchQuery = `
	SELECT filename, filepath, content, file_size, embedding <=> $1 AS distance
	FROM documents
	ORDER BY embedding <=> $1
	LIMIT $2
`

// faqSearchQuery matches filenames starting with domain.FAQPrefix; the
// underscore is escaped so LIKE treats it literally.
const faqSearchQuery = `
	SELECT filename, filepath, content, file_size, embedding <=> $1 AS distance
	FROM documents
	WHERE filename LIKE 'faq\_%'
	ORDER BY embedding <=> $1
	LIMIT $2
`

const fetchQuery = `
	SELECT filename, filepath, content, file_size
	FROM documents
	WHERE filename = $1
	LIMIT 1
`

type dbExecutor interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Retriever searches a pgvector table by cosine distance. Queries are
// embedded locally, so an encoder is required.
type Retriever struct {
	db      dbExecutor
	encoder domain.VectorEncoder
	logger  *slog.Logger
}

func NewRetriever(db dbExecutor, encoder domain.VectorEncoder, logger *slog.Logger) *Retriever {
	return &Retriever{db: db, encoder: encoder, logger: logger}
}

// EnsureSchema creates the extension and table when missing.
func (r *Retriever) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]domain.Document, error) {
	return r.search(ctx, searchQuery, query, limit)
}

func (r *Retriever) SearchFAQs(ctx context.Context, query string, limit int) ([]domain.Document, error) {
	return r.search(ctx, faqSearchQuery, query, limit)
}

func (r *Retriever) search(ctx context.Context, sql, query string, limit int) ([]domain.Document, error) {
	vecs, err := r.encoder.Encode(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("failed to embed query: no vector returned")
	}

	rows, err := r.db.Query(ctx, sql, pgvector.NewVector(vecs[0]), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]domain.Document, 0, limit)
	for rows.Next() {
		var (
			d        domain.Document
			distance *float64
		)
		if err := rows.Scan(&d.Filename, &d.Filepath, &d.RawContent, &d.ByteSize, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		d.Relevance = domain.RelevanceFromDistance(distance)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	r.logger.DebugContext(ctx, "pgvector_search_completed",
		slog.Int("documents", len(docs)),
		slog.String("model", r.encoder.Version()),
	)
	return docs, nil
}

func (r *Retriever) FetchByFilename(ctx context.Context, filename string) (*domain.Document, error) {
	rows, err := r.db.Query(ctx, fetchQuery, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("rows error: %w", err)
		}
		return nil, nil
	}
	var d domain.Document
	if err := rows.Scan(&d.Filename, &d.Filepath, &d.RawContent, &d.ByteSize); err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	return &d, nil
}

var _ domain.Retriever = (*Retriever)(nil)
