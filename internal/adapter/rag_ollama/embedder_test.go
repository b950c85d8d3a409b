package rag_ollama_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"programme-qa/internal/adapter/rag_ollama"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedder_Encode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "bge-m3", body.Model)
		assert.Equal(t, []string{"exam dates"}, body.Input)
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer srv.Close()

	e := rag_ollama.NewEmbedder(srv.URL+"/", "", srv.Client(), slog.New(slog.NewJSONHandler(io.Discard, nil)))
	vecs, err := e.Encode(context.Background(), []string{"exam dates"})

	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.2, 0.3}}, vecs)
	assert.Equal(t, "bge-m3", e.Version())
}

func TestEmbedder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "bad status", status: http.StatusInternalServerError, body: "model not loaded", wantErr: "status 500: model not loaded"},
		{name: "count mismatch", status: http.StatusOK, body: `{"embeddings":[]}`, wantErr: "0 embeddings for 1 inputs"},
		{name: "bad json", status: http.StatusOK, body: `{`, wantErr: "failed to decode response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			e := rag_ollama.NewEmbedder(srv.URL, "bge-m3", srv.Client(), slog.New(slog.NewJSONHandler(io.Discard, nil)))
			_, err := e.Encode(context.Background(), []string{"q"})

			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
