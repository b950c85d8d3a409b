package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"programme-qa/internal/domain"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// FAQLookup fetches FAQ documents by filename. Hits are cached for ttl and
// concurrent misses for the same file share one backend call.
type FAQLookup struct {
	retriever domain.Retriever
	cache     *expirable.LRU[string, domain.Document]
	inflight  singleflight.Group
}

func NewFAQLookup(retriever domain.Retriever, size int, ttl time.Duration) *FAQLookup {
	if size <= 0 {
		size = 128
	}
	return &FAQLookup{
		retriever: retriever,
		cache:     expirable.NewLRU[string, domain.Document](size, nil, ttl),
	}
}

// Fetch returns the named document, or nil when the backend does not have it.
func (f *FAQLookup) Fetch(ctx context.Context, filename string) (*domain.Document, error) {
	if doc, ok := f.cache.Get(filename); ok {
		slog.DebugContext(ctx, "faq_cache_hit", slog.String("filename", filename))
		return &doc, nil
	}

	v, err, _ := f.inflight.Do(filename, func() (interface{}, error) {
		return f.retriever.FetchByFilename(ctx, filename)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch faq %s: %w", filename, err)
	}
	doc, _ := v.(*domain.Document)
	if doc == nil {
		return nil, nil
	}
	f.cache.Add(filename, *doc)
	return doc, nil
}

// faqSuggestionLimit is how many FAQ entries a rejection suggests.
const faqSuggestionLimit = 3

// Suggestions searches the FAQ documents for query and renders their first
// questions as a "Did you mean" list of [FAQ:file] links. It returns an empty
// string when nothing matches.
func (f *FAQLookup) Suggestions(ctx context.Context, query string, lang Language) (string, error) {
	docs, err := f.retriever.SearchFAQs(ctx, query, faqSuggestionLimit)
	if err != nil {
		return "", fmt.Errorf("search faqs: %w", err)
	}
	var items []string
	for _, d := range docs {
		q := FirstFAQQuestion(d.RawContent)
		if q == "" {
			continue
		}
		items = append(items, fmt.Sprintf("%d. %s [FAQ:%s]", len(items)+1, q, d.Filename))
	}
	if len(items) == 0 {
		return "", nil
	}
	header, ok := didYouMeanHeaders[lang]
	if !ok {
		header = didYouMeanHeaders[LanguageEnglish]
	}
	return "\n\n" + header + "\n\n" + strings.Join(items, "\n"), nil
}

var faqFirstQuestion = regexp.MustCompile(`(?m)^Q\d+:[ \t]*(.+)$`)

// FirstFAQQuestion returns the first Qn: question of an FAQ document,
// preferring one that ends with a question mark over a section header.
func FirstFAQQuestion(content string) string {
	first := ""
	for _, m := range faqFirstQuestion.FindAllStringSubmatch(content, -1) {
		q := strings.TrimSpace(m[1])
		if strings.HasSuffix(q, "?") {
			return q
		}
		if first == "" {
			first = q
		}
	}
	return first
}

var faqQuestionLine = regexp.MustCompile(`^Q\d+:\s*`)

// faqMatchPrefix is how many leading characters of either question are
// compared when matching a FAQ entry.
const faqMatchPrefix = 20

// FormatFAQContent extracts the Q&A block matching question from an FAQ
// document and renders it as Markdown. When nothing matches the first block
// is used; when the document has no Qn: blocks it is returned as is.
func FormatFAQContent(content, question string) string {
	if content == "" {
		return "FAQ content not available."
	}
	lines := strings.Split(content, "\n")
	q := strings.ToLower(question)

	block := extractFAQBlock(lines, func(entry string) bool {
		e := strings.ToLower(entry)
		return strings.Contains(e, prefix(q, faqMatchPrefix)) || strings.Contains(q, prefix(e, faqMatchPrefix))
	})
	if len(block) == 0 {
		block = extractFAQBlock(lines, func(string) bool { return true })
	}
	if len(block) == 0 {
		return content
	}
	return strings.Join(block, "\n\n")
}

func extractFAQBlock(lines []string, match func(entry string) bool) []string {
	var out []string
	capturing := false
	for _, line := range lines {
		if faqQuestionLine.MatchString(line) {
			if capturing {
				break
			}
			entry := strings.TrimSpace(faqQuestionLine.ReplaceAllString(line, ""))
			if match(entry) {
				capturing = true
				out = append(out, "### "+entry)
			}
			continue
		}
		if !capturing {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(trimmed, "Answer:"); ok {
			trimmed = strings.TrimSpace(rest)
		}
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
