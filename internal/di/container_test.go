package di

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"programme-qa/internal/adapter/rag_weaviate"
	"programme-qa/internal/infra/config"
	"programme-qa/internal/usecase/guard"
)

func testConfig() *config.Config {
	cfg := config.Load()
	cfg.Retrieval.Backend = "weaviate"
	cfg.Weaviate.URL = "http://127.0.0.1:1"
	cfg.Weaviate.SearchMode = "near_text"
	cfg.Weaviate.APIKey = ""
	cfg.Guard.PatternsFile = ""
	return cfg
}

func TestNewApplicationComponents_Weaviate(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	app, err := NewApplicationComponents(context.Background(), testConfig(), prometheus.NewRegistry(), log)
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.AnswerUsecase)
	assert.NotNil(t, app.FeedbackUsecase)
	assert.NotNil(t, app.Metrics)
	assert.IsType(t, &rag_weaviate.Retriever{}, app.Retriever)
}

func TestNewApplicationComponents_UnknownBackend(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig()
	cfg.Retrieval.Backend = "elastic"

	_, err := NewApplicationComponents(context.Background(), cfg, prometheus.NewRegistry(), log)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "elastic")
}

func TestGuardTables(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		tables, err := GuardTables(config.GuardConfig{})
		require.NoError(t, err)
		assert.Same(t, guard.Default(), tables)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := GuardTables(config.GuardConfig{PatternsFile: filepath.Join(t.TempDir(), "none.yaml")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load guard patterns")
	})

	t.Run("unreadable yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("contact_info: [unterminated"), 0o600))

		_, err := GuardTables(config.GuardConfig{PatternsFile: path})
		require.Error(t, err)
	})
}
