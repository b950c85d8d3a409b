package rag_weaviate_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"programme-qa/internal/adapter/rag_weaviate"
	"programme-qa/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// graphQLServer answers every /v1/graphql request with reply and records the
// queries it saw.
type graphQLServer struct {
	*httptest.Server
	mu      sync.Mutex
	queries []string
}

func newGraphQLServer(t *testing.T, status int, reply string) *graphQLServer {
	t.Helper()
	s := &graphQLServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/graphql" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Query string `json:"query"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.queries = append(s.queries, body.Query)
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *graphQLServer) lastQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queries) == 0 {
		return ""
	}
	return s.queries[len(s.queries)-1]
}

func newRetriever(t *testing.T, srv *graphQLServer, cfg rag_weaviate.Config, encoder domain.VectorEncoder) *rag_weaviate.Retriever {
	t.Helper()
	client, err := rag_weaviate.NewClient(srv.URL, "", nil, srv.Client())
	require.NoError(t, err)
	return rag_weaviate.NewRetriever(client, encoder, cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

type stubEncoder struct {
	vec []float32
	err error
}

func (s *stubEncoder) Encode(context.Context, []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return [][]float32{s.vec}, nil
}

func (s *stubEncoder) Version() string { return "stub" }

func TestEscapeLiteral(t *testing.T) {
	assert.Equal(t, `say \"hi\" C:\\temp a b c`, rag_weaviate.EscapeLiteral("say \"hi\" C:\\temp a\rb\nc"))
	assert.Equal(t, "tab here", rag_weaviate.EscapeLiteral("tab\there"))
	assert.Equal(t, "fees for diploma ?", rag_weaviate.EscapeLiteral("fees\x00for\x0bdiploma\x1b?"))
	assert.Equal(t, "a b c", rag_weaviate.EscapeLiteral("a\x7fb\x0cc"))
}

func TestRetriever_SearchNearText(t *testing.T) {
	srv := newGraphQLServer(t, http.StatusOK, `{"data":{"Get":{"Document":[
		{"filename":"fees.md","filepath":"src/fees.md","content":"Fee is listed.","file_size":120,"_additional":{"distance":0.38}},
		{"filename":"grading.md","filepath":"src/grading.md","content":"Grades.","file_size":80,"_additional":{"distance":0.9}},
		{"filename":"misc.md","filepath":"src/misc.md","content":"Misc.","file_size":10,"_additional":{}}
	]}}}`)
	r := newRetriever(t, srv, rag_weaviate.Config{}, nil)

	docs, err := r.Search(context.Background(), `what is the "fee"?`, 5)

	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "fees.md", docs[0].Filename)
	assert.Equal(t, "src/fees.md", docs[0].Filepath)
	assert.Equal(t, "Fee is listed.", docs[0].RawContent)
	assert.Equal(t, int64(120), docs[0].ByteSize)
	assert.InDelta(t, 0.62, docs[0].Relevance, 1e-9)
	assert.InDelta(t, 0.1, docs[1].Relevance, 1e-9)
	assert.Zero(t, docs[2].Relevance)

	q := srv.lastQuery()
	assert.Contains(t, q, `Document(nearText: { concepts: ["what is the \"fee\"?"] } limit: 5)`)
	assert.Contains(t, q, "_additional { distance }")
}

func TestRetriever_SearchTruncatesToLimit(t *testing.T) {
	srv := newGraphQLServer(t, http.StatusOK, `{"data":{"Get":{"Document":[
		{"filename":"a.md","_additional":{"distance":0.1}},
		{"filename":"b.md","_additional":{"distance":0.2}}
	]}}}`)
	r := newRetriever(t, srv, rag_weaviate.Config{}, nil)

	docs, err := r.Search(context.Background(), "q", 1)

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a.md", docs[0].Filename)
}

func TestRetriever_SearchHybrid(t *testing.T) {
	srv := newGraphQLServer(t, http.StatusOK, `{"data":{"Get":{"Document":[
		{"filename":"fees.md","content":"Fee.","_additional":{"score":"0.75"}}
	]}}}`)
	r := newRetriever(t, srv, rag_weaviate.Config{Mode: rag_weaviate.SearchModeHybrid, Alpha: 0.5}, &stubEncoder{vec: []float32{0.25, -1}})

	docs, err := r.Search(context.Background(), "fee", 3)

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.InDelta(t, 0.75, docs[0].Relevance, 1e-9)

	q := srv.lastQuery()
	assert.Contains(t, q, `query: "fee"`)
	assert.Contains(t, q, "vector: [0.25,-1]")
	assert.Contains(t, q, "alpha: 0.5")
	assert.Contains(t, q, "_additional { score }")
}

func TestRetriever_SearchFAQs(t *testing.T) {
	reply := `{"data":{"Get":{"Document":[
		{"filename":"faq_fees.md","content":"Q1: How do I pay?","_additional":{"distance":0.2,"score":"0.6"}}
	]}}}`
	filter := `where: { path: ["filename"], operator: Like, valueText: "faq_*" }`

	t.Run("near text", func(t *testing.T) {
		srv := newGraphQLServer(t, http.StatusOK, reply)
		r := newRetriever(t, srv, rag_weaviate.Config{}, nil)

		docs, err := r.SearchFAQs(context.Background(), "pay fees", 3)

		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "faq_fees.md", docs[0].Filename)
		assert.Contains(t, srv.lastQuery(), `Document(nearText: { concepts: ["pay fees"] } `+filter+` limit: 3)`)
	})

	t.Run("hybrid", func(t *testing.T) {
		srv := newGraphQLServer(t, http.StatusOK, reply)
		r := newRetriever(t, srv, rag_weaviate.Config{Mode: rag_weaviate.SearchModeHybrid, Alpha: 0.5}, nil)

		docs, err := r.SearchFAQs(context.Background(), "pay fees", 3)

		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.InDelta(t, 0.6, docs[0].Relevance, 1e-9)
		assert.Contains(t, srv.lastQuery(), "}\n      "+filter+"\n      limit: 3")
	})
}

func TestRetriever_SearchHybridEncoderFailure(t *testing.T) {
	srv := newGraphQLServer(t, http.StatusOK, `{"data":{}}`)
	r := newRetriever(t, srv, rag_weaviate.Config{Mode: rag_weaviate.SearchModeHybrid}, &stubEncoder{err: errors.New("ollama down")})

	_, err := r.Search(context.Background(), "fee", 3)

	assert.ErrorContains(t, err, "ollama down")
	assert.Empty(t, srv.lastQuery())
}

func TestRetriever_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		reply   string
		wantErr string
	}{
		{
			name:    "graphql errors",
			status:  http.StatusOK,
			reply:   `{"errors":[{"message":"no such class"},{"message":"bad arg"}]}`,
			wantErr: "weaviate error: no such class, bad arg",
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			reply:  `{"error":[{"message":"boom"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newGraphQLServer(t, tt.status, tt.reply)
			r := newRetriever(t, srv, rag_weaviate.Config{}, nil)

			docs, err := r.Search(context.Background(), "q", 5)

			require.Error(t, err)
			assert.Nil(t, docs)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestRetriever_EmptyResult(t *testing.T) {
	srv := newGraphQLServer(t, http.StatusOK, `{"data":{"Get":{"Document":[]}}}`)
	r := newRetriever(t, srv, rag_weaviate.Config{}, nil)

	docs, err := r.Search(context.Background(), "q", 5)

	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestRetriever_FetchByFilename(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		srv := newGraphQLServer(t, http.StatusOK, `{"data":{"Get":{"Document":[
			{"filename":"faq.md","content":"Q1: x"}
		]}}}`)
		r := newRetriever(t, srv, rag_weaviate.Config{}, nil)

		doc, err := r.FetchByFilename(context.Background(), `faq".md`)

		require.NoError(t, err)
		require.NotNil(t, doc)
		assert.Equal(t, "faq.md", doc.Filename)
		assert.Equal(t, "Q1: x", doc.RawContent)
		assert.Contains(t, srv.lastQuery(), `valueText: "faq\".md"`)
	})

	t.Run("missing", func(t *testing.T) {
		srv := newGraphQLServer(t, http.StatusOK, `{"data":{"Get":{"Document":[]}}}`)
		r := newRetriever(t, srv, rag_weaviate.Config{}, nil)

		doc, err := r.FetchByFilename(context.Background(), "gone.md")

		require.NoError(t, err)
		assert.Nil(t, doc)
	})
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := rag_weaviate.NewClient("not a url", "", nil, nil)

	assert.Error(t, err)
}
