package usecase

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"programme-qa/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed query_synonyms.yaml
var defaultSynonyms []byte

// QuerySource records which path produced the search query.
type QuerySource string

const (
	QuerySourceSynonym   QuerySource = "synonym"
	QuerySourceLLM       QuerySource = "llm"
	QuerySourceOriginal  QuerySource = "original"
	QuerySourceRejected  QuerySource = "rejected"
	QuerySourceFAQDirect QuerySource = "faq_direct"
)

// RewrittenQuery is the text sent to retrieval plus the reply language.
type RewrittenQuery struct {
	Query    string
	Source   QuerySource
	Language Language
}

type synonymRule struct {
	Patterns []string `yaml:"patterns"`
	Query    string   `yaml:"query"`
}

// SynonymTable maps common question phrasings to search keywords.
type SynonymTable struct {
	rules []synonymRule
}

// ParseSynonyms reads a synonym table from YAML.
func ParseSynonyms(data []byte) (*SynonymTable, error) {
	var doc struct {
		Synonyms []synonymRule `yaml:"synonyms"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse synonyms: %w", err)
	}
	t := &SynonymTable{rules: make([]synonymRule, 0, len(doc.Synonyms))}
	for i, r := range doc.Synonyms {
		if strings.TrimSpace(r.Query) == "" || len(r.Patterns) == 0 {
			return nil, fmt.Errorf("parse synonyms: rule %d needs patterns and a query", i)
		}
		for j, p := range r.Patterns {
			r.Patterns[j] = strings.ToLower(p)
		}
		t.rules = append(t.rules, r)
	}
	return t, nil
}

// DefaultSynonyms returns the embedded synonym table.
func DefaultSynonyms() *SynonymTable {
	t, err := ParseSynonyms(defaultSynonyms)
	if err != nil {
		panic(err)
	}
	return t
}

// Match returns the keywords of the first rule with a pattern contained in
// question.
func (t *SynonymTable) Match(question string) (string, bool) {
	q := strings.ToLower(question)
	for _, r := range t.rules {
		for _, p := range r.Patterns {
			if strings.Contains(q, p) {
				return r.Query, true
			}
		}
	}
	return "", false
}

// QueryRewriter turns a sanitized question into a search query. A synonym
// hit is used directly; otherwise the LLM rewrite is tried and any failure
// falls back to the question itself.
type QueryRewriter struct {
	synonyms *SynonymTable
	llm      domain.QueryRewriter
	logger   *slog.Logger
}

// NewQueryRewriter builds a rewriter. llm may be nil to disable the LLM path.
func NewQueryRewriter(synonyms *SynonymTable, llm domain.QueryRewriter, logger *slog.Logger) *QueryRewriter {
	if synonyms == nil {
		synonyms = DefaultSynonyms()
	}
	return &QueryRewriter{synonyms: synonyms, llm: llm, logger: logger}
}

// Rewrite keeps the question at the front of the query so FAQ entries phrased
// like it still match.
func (r *QueryRewriter) Rewrite(ctx context.Context, question string) RewrittenQuery {
	if keywords, ok := r.synonyms.Match(question); ok {
		return RewrittenQuery{Query: question + " " + keywords, Source: QuerySourceSynonym, Language: LanguageEnglish}
	}

	original := RewrittenQuery{Query: question, Source: QuerySourceOriginal, Language: LanguageEnglish}
	if r.llm == nil {
		return original
	}
	raw, err := r.llm.RewriteQuery(ctx, question)
	if err != nil {
		r.logger.WarnContext(ctx, "query_rewrite_failed", slog.String("error", err.Error()))
		return original
	}
	keywords, lang := SplitLanguageTag(raw)
	if keywords == "" {
		return RewrittenQuery{Query: question, Source: QuerySourceLLM, Language: lang}
	}
	return RewrittenQuery{Query: question + " " + keywords, Source: QuerySourceLLM, Language: lang}
}
