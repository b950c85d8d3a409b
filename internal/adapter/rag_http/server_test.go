package rag_http_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"programme-qa/internal/adapter/rag_http"
	"programme-qa/internal/usecase"
)

func newTestRouter(t *testing.T, cfg rag_http.RouterConfig) http.Handler {
	t.Helper()
	h := newTestHandler(&stubAnswerUsecase{events: []usecase.StreamEvent{{Kind: usecase.StreamEventKindDone}}}, &recordingFeedback{}, 0)
	return rag_http.NewRouter(h, cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRouter_Probes(t *testing.T) {
	ready := errors.New("weaviate is not ready")
	router := newTestRouter(t, rag_http.RouterConfig{
		Ready: func(context.Context) error { return ready },
	})

	assert.Equal(t, http.StatusOK, get(router, "/healthz").Code)

	rec := get(router, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "weaviate")

	ready = nil
	assert.Equal(t, http.StatusOK, get(router, "/readyz").Code)
}

func TestRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "probe_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	rec := get(newTestRouter(t, rag_http.RouterConfig{Gatherer: reg}), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "probe_total 1")
}

func TestRouter_StaticAssets(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>Ask</h1>"), 0o600))
	router := newTestRouter(t, rag_http.RouterConfig{StaticDir: dir})

	rec := get(router, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<h1>Ask</h1>", rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/answer", strings.NewReader(`{"q":"fees?"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "data: [DONE]\n\n", rec.Body.String())
}

func TestRouter_RateLimited(t *testing.T) {
	rl := rag_http.NewRateLimiter(1, 1)
	defer rl.Stop()
	router := newTestRouter(t, rag_http.RouterConfig{RateLimiter: rl})

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/answer", strings.NewReader(`{"q":"fees?"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "10.0.0.9:1234"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
	assert.Equal(t, http.StatusOK, get(router, "/healthz").Code)
}
