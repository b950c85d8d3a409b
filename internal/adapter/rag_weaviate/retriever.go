package rag_weaviate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"programme-qa/internal/domain"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"github.com/weaviate/weaviate/entities/models"
)

// DefaultClassName is the collection holding the programme documents.
const DefaultClassName = "Document"

type SearchMode string

const (
	// SearchModeNearText ranks by vector distance; relevance is 1 - distance.
	SearchModeNearText SearchMode = "near_text"
	// SearchModeHybrid blends BM25 and vector scores; relevance is the score.
	SearchModeHybrid SearchMode = "hybrid"
)

type Config struct {
	ClassName string
	Mode      SearchMode
	Alpha     float64
}

// NewClient builds a Weaviate client from a base URL such as
// https://cluster.weaviate.network. headers carry vectorizer API keys.
func NewClient(rawURL, apiKey string, headers map[string]string, httpClient *http.Client) (*weaviate.Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid weaviate url %q", rawURL)
	}
	cfg := weaviate.Config{
		Host:             u.Host,
		Scheme:           u.Scheme,
		Headers:          headers,
		ConnectionClient: httpClient,
	}
	if apiKey != "" {
		cfg.AuthConfig = auth.ApiKey{Value: apiKey}
	}
	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return client, nil
}

// Retriever implements domain.Retriever with raw GraphQL Get queries.
type Retriever struct {
	client  *weaviate.Client
	encoder domain.VectorEncoder
	cfg     Config
	logger  *slog.Logger
}

// NewRetriever builds a retriever. encoder is optional; in hybrid mode it
// supplies the query vector instead of the server-side vectorizer.
func NewRetriever(client *weaviate.Client, encoder domain.VectorEncoder, cfg Config, logger *slog.Logger) *Retriever {
	if cfg.ClassName == "" {
		cfg.ClassName = DefaultClassName
	}
	if cfg.Mode == "" {
		cfg.Mode = SearchModeNearText
	}
	return &Retriever{client: client, encoder: encoder, cfg: cfg, logger: logger}
}

// EscapeLiteral makes s safe inside a double-quoted GraphQL string. Control
// characters, which GraphQL forbids in string literals, become spaces.
func EscapeLiteral(s string) string {
	return literalEscaper.Replace(strings.Map(blankControl, s))
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
)

func blankControl(r rune) rune {
	if r < 0x20 || r == 0x7f {
		return ' '
	}
	return r
}

// faqFilter restricts a search to FAQ documents.
var faqFilter = fmt.Sprintf(`where: { path: ["filename"], operator: Like, valueText: "%s*" }`, domain.FAQPrefix)

func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]domain.Document, error) {
	return r.search(ctx, query, limit, "")
}

func (r *Retriever) SearchFAQs(ctx context.Context, query string, limit int) ([]domain.Document, error) {
	return r.search(ctx, query, limit, faqFilter)
}

func (r *Retriever) search(ctx context.Context, query string, limit int, filter string) ([]domain.Document, error) {
	q, err := r.searchQuery(ctx, query, limit, filter)
	if err != nil {
		return nil, err
	}

	objects, err := r.run(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("weaviate search: %w", err)
	}

	docs := make([]domain.Document, 0, len(objects))
	for _, obj := range objects {
		docs = append(docs, r.toDocument(obj))
	}
	if len(docs) > limit {
		docs = docs[:limit]
	}
	r.logger.DebugContext(ctx, "weaviate_search_completed",
		slog.String("mode", string(r.cfg.Mode)),
		slog.Bool("faq_only", filter != ""),
		slog.Int("documents", len(docs)),
	)
	return docs, nil
}

func (r *Retriever) FetchByFilename(ctx context.Context, filename string) (*domain.Document, error) {
	q := fmt.Sprintf(`{
  Get {
    %s(
      where: { path: ["filename"], operator: Equal, valueText: "%s" }
      limit: 1
    ) {
      filename filepath content file_size
    }
  }
}`, r.cfg.ClassName, EscapeLiteral(filename))

	objects, err := r.run(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("weaviate fetch %q: %w", filename, err)
	}
	if len(objects) == 0 {
		return nil, nil
	}
	doc := r.toDocument(objects[0])
	return &doc, nil
}

// searchQuery renders the Get query. filter is an optional where clause.
func (r *Retriever) searchQuery(ctx context.Context, query string, limit int, filter string) (string, error) {
	text := EscapeLiteral(query)
	if r.cfg.Mode != SearchModeHybrid {
		if filter != "" {
			filter = " " + filter
		}
		return fmt.Sprintf(`{
  Get {
    %s(nearText: { concepts: ["%s"] }%s limit: %d) {
      filename filepath content file_size
      _additional { distance }
    }
  }
}`, r.cfg.ClassName, text, filter, limit), nil
	}

	vector := ""
	if r.encoder != nil {
		vecs, err := r.encoder.Encode(ctx, []string{query})
		if err != nil {
			return "", fmt.Errorf("embed query: %w", err)
		}
		if len(vecs) == 0 {
			return "", fmt.Errorf("embed query: no vector returned")
		}
		vector = "\n        vector: " + formatVector(vecs[0])
	}
	if filter != "" {
		filter = "\n      " + filter
	}
	return fmt.Sprintf(`{
  Get {
    %s(
      hybrid: {
        query: "%s"%s
        alpha: %s
      }%s
      limit: %d
    ) {
      filename filepath content file_size
      _additional { score }
    }
  }
}`, r.cfg.ClassName, text, vector, strconv.FormatFloat(r.cfg.Alpha, 'f', -1, 64), filter, limit), nil
}

func (r *Retriever) run(ctx context.Context, query string) ([]map[string]interface{}, error) {
	resp, err := r.client.GraphQL().Raw().WithQuery(query).Do(ctx)
	if err != nil {
		return nil, err
	}
	if err := graphQLErrors(resp); err != nil {
		return nil, err
	}
	return objectsOf(resp, r.cfg.ClassName), nil
}

func graphQLErrors(resp *models.GraphQLResponse) error {
	if len(resp.Errors) == 0 {
		return nil
	}
	messages := make([]string, 0, len(resp.Errors))
	for _, e := range resp.Errors {
		if e != nil {
			messages = append(messages, e.Message)
		}
	}
	return fmt.Errorf("weaviate error: %s", strings.Join(messages, ", "))
}

func objectsOf(resp *models.GraphQLResponse, className string) []map[string]interface{} {
	get, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := get[className].([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, obj := range raw {
		if m, ok := obj.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func (r *Retriever) toDocument(m map[string]interface{}) domain.Document {
	doc := domain.Document{
		Filename:   getString(m, "filename"),
		Filepath:   getString(m, "filepath"),
		RawContent: getString(m, "content"),
		ByteSize:   int64(getFloat64(m, "file_size")),
	}
	additional, _ := m["_additional"].(map[string]interface{})
	switch r.cfg.Mode {
	case SearchModeHybrid:
		doc.Relevance = getFloat64(additional, "score")
	default:
		var distance *float64
		if d, ok := numeric(additional["distance"]); ok {
			distance = &d
		}
		doc.Relevance = domain.RelevanceFromDistance(distance)
	}
	return doc
}

func getString(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func getFloat64(m map[string]interface{}, key string) float64 {
	f, _ := numeric(m[key])
	return f
}

// numeric accepts JSON numbers and numeric strings. Hybrid scores arrive as
// strings.
func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func formatVector(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

var _ domain.Retriever = (*Retriever)(nil)
