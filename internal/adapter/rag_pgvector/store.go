package rag_pgvector

import (
	"context"
	"fmt"

	"programme-qa/internal/domain"

	"github.com/pgvector/pgvector-go"
)

const sourceHashQuery = `
	SELECT source_hash
	FROM documents
	WHERE filename = $1
`

const upsertQuery = `
	INSERT INTO documents (filename, filepath, content, file_size, source_hash, embedding, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, now())
	ON CONFLICT (filename) DO UPDATE SET
		filepath    = EXCLUDED.filepath,
		content     = EXCLUDED.content,
		file_size   = EXCLUDED.file_size,
		source_hash = EXCLUDED.source_hash,
		embedding   = EXCLUDED.embedding,
		updated_at  = now()
`

// SourceHash returns the stored hash for filename. ok is false when the
// document has never been loaded.
func (r *Retriever) SourceHash(ctx context.Context, filename string) (hash string, ok bool, err error) {
	rows, err := r.db.Query(ctx, sourceHashQuery, filename)
	if err != nil {
		return "", false, fmt.Errorf("failed to query source hash: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", false, fmt.Errorf("rows error: %w", err)
		}
		return "", false, nil
	}
	if err := rows.Scan(&hash); err != nil {
		return "", false, fmt.Errorf("failed to scan source hash: %w", err)
	}
	return hash, true, nil
}

// Upsert stores a document and its embedding, replacing any row with the
// same filename.
func (r *Retriever) Upsert(ctx context.Context, doc domain.Document, sourceHash string, embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("document %q has no embedding", doc.Filename)
	}
	_, err := r.db.Exec(ctx, upsertQuery,
		doc.Filename, doc.Filepath, doc.RawContent, doc.ByteSize, sourceHash, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

var _ domain.DocumentStore = (*Retriever)(nil)
