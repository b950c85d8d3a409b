package domain

import "context"

// DocumentStore is the write side of a vector store that this service loads
// itself.
type DocumentStore interface {
	SourceHash(ctx context.Context, filename string) (hash string, ok bool, err error)
	Upsert(ctx context.Context, doc Document, sourceHash string, embedding []float32) error
}
