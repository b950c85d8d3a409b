package usecase

import "programme-qa/internal/usecase/guard"

// ScopePrefilter rejects obviously out-of-domain questions before any backend
// call. A keyword inside a longer in-scope phrase still counts as a hit.
type ScopePrefilter struct {
	keywords guard.Matcher
}

func NewScopePrefilter(tables *guard.Tables) ScopePrefilter {
	return ScopePrefilter{keywords: tables.PrefilterKeywords}
}

// Rejects reports whether question should be answered with the fallback
// message without retrieval or generation.
func (p ScopePrefilter) Rejects(question string) bool {
	return p.keywords.Matches(question)
}
