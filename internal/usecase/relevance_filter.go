package usecase

import (
	"fmt"

	"programme-qa/internal/domain"
)

// FilterRelevant partitions docs by threshold. usable keeps the retrieval
// order; all is docs unchanged.
func FilterRelevant(docs []domain.Document, threshold float64) (usable, all []domain.Document) {
	usable = make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		if d.Relevance > threshold {
			usable = append(usable, d)
		}
	}
	return usable, docs
}

// ContextNote tells the model how much of the retrieved material survived the
// relevance threshold. It is empty when every document passed.
func ContextNote(usable, all []domain.Document) string {
	switch {
	case len(usable) == 0:
		return "NOTE: No relevant documents found. The question may be outside the scope of the programme documentation."
	case len(usable) < len(all):
		return fmt.Sprintf("NOTE: %d of %d documents passed the relevance threshold.", len(usable), len(all))
	default:
		return ""
	}
}
