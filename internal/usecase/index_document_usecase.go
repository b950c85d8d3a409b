package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"programme-qa/internal/domain"
)

// IndexOutcome reports what Index did with a document.
type IndexOutcome string

const (
	IndexOutcomeIndexed   IndexOutcome = "indexed"
	IndexOutcomeUnchanged IndexOutcome = "unchanged"
	IndexOutcomeSkipped   IndexOutcome = "skipped"
)

// IndexDocumentUsecase loads source documents into a self-hosted vector
// store. It is idempotent per filename and content.
type IndexDocumentUsecase interface {
	Index(ctx context.Context, doc domain.Document) (IndexOutcome, error)
}

type indexDocumentUsecase struct {
	store   domain.DocumentStore
	hasher  domain.SourceHashPolicy
	encoder domain.VectorEncoder
	logger  *slog.Logger
}

func NewIndexDocumentUsecase(
	store domain.DocumentStore,
	hasher domain.SourceHashPolicy,
	encoder domain.VectorEncoder,
	logger *slog.Logger,
) IndexDocumentUsecase {
	return &indexDocumentUsecase{
		store:   store,
		hasher:  hasher,
		encoder: encoder,
		logger:  logger,
	}
}

func (u *indexDocumentUsecase) Index(ctx context.Context, doc domain.Document) (IndexOutcome, error) {
	if doc.Filename == "" {
		return "", fmt.Errorf("document has no filename")
	}
	if strings.TrimSpace(doc.RawContent) == "" {
		u.logger.WarnContext(ctx, "index_document_empty", slog.String("filename", doc.Filename))
		return IndexOutcomeSkipped, nil
	}

	// 1. Idempotency check
	sourceHash := u.hasher.Compute(doc.Filename, doc.RawContent)
	stored, ok, err := u.store.SourceHash(ctx, doc.Filename)
	if err != nil {
		return "", fmt.Errorf("failed to read source hash: %w", err)
	}
	if ok && stored == sourceHash {
		return IndexOutcomeUnchanged, nil
	}

	// 2. Embed
	vecs, err := u.encoder.Encode(ctx, []string{doc.RawContent})
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", doc.Filename, err)
	}
	if len(vecs) != 1 {
		return "", fmt.Errorf("embeddings count mismatch: got %d, want 1", len(vecs))
	}

	// 3. Store
	if err := u.store.Upsert(ctx, doc, sourceHash, vecs[0]); err != nil {
		return "", err
	}
	u.logger.InfoContext(ctx, "index_document_stored",
		slog.String("filename", doc.Filename),
		slog.Bool("replaced", ok),
		slog.String("model", u.encoder.Version()))
	return IndexOutcomeIndexed, nil
}
