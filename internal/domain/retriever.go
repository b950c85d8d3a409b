package domain

import "context"

// Retriever issues similarity queries against a vector search backend.
type Retriever interface {
	// Search returns at most limit documents ordered as the backend ranked them.
	Search(ctx context.Context, query string, limit int) ([]Document, error)
	// SearchFAQs is Search restricted to FAQ documents (filenames starting with "faq_").
	SearchFAQs(ctx context.Context, query string, limit int) ([]Document, error)
	// FetchByFilename returns the document stored under filename, or nil when absent.
	FetchByFilename(ctx context.Context, filename string) (*Document, error)
}
