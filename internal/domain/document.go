package domain

import "strings"

// RelevanceThreshold is the minimum relevance a retrieved document needs to be
// used as context and cited.
const RelevanceThreshold = 0.3

// FAQPrefix starts the filename of every FAQ document.
const FAQPrefix = "faq_"

// Document is a single passage returned by the vector search service.
// Documents live for one request and are never mutated after retrieval.
type Document struct {
	Filename   string
	Filepath   string
	RawContent string
	ByteSize   int64
	Relevance  float64
}

// RelevanceFromDistance converts a similarity distance into a relevance score.
// A missing distance yields zero relevance.
func RelevanceFromDistance(distance *float64) float64 {
	if distance == nil {
		return 0
	}
	return 1 - *distance
}

// DisplayName is the filename without its Markdown extension.
func (d Document) DisplayName() string {
	return strings.TrimSuffix(d.Filename, ".md")
}

// Usable reports whether the document passes the relevance threshold.
func (d Document) Usable() bool {
	return d.Relevance > RelevanceThreshold
}

// CitationEvent announces a source document on the wire.
type CitationEvent struct {
	Relevance float64 `json:"relevance"`
	Name      string  `json:"name"`
	Link      string  `json:"link"`
}
