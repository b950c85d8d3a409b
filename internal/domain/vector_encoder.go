package domain

import "context"

// VectorEncoder embeds query text for backends that search by raw vectors
// rather than by text.
type VectorEncoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	// Version names the embedding model, for logs.
	Version() string
}
