package domain

import "context"

// QueryRewriter asks the generation service for search keywords matching a
// question. The reply ends with a [LANG:x] tag naming the question's language.
type QueryRewriter interface {
	RewriteQuery(ctx context.Context, question string) (string, error)
}
