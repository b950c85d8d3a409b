package di

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"programme-qa/internal/adapter/rag_ollama"
	"programme-qa/internal/adapter/rag_openai"
	"programme-qa/internal/adapter/rag_pgvector"
	"programme-qa/internal/adapter/rag_weaviate"
	"programme-qa/internal/domain"
	"programme-qa/internal/infra"
	"programme-qa/internal/infra/config"
	"programme-qa/internal/infra/httpclient"
	"programme-qa/internal/infra/metrics"
	"programme-qa/internal/usecase"
	"programme-qa/internal/usecase/guard"
)

// ApplicationComponents holds all wired dependencies for the server.
type ApplicationComponents struct {
	AnswerUsecase   usecase.AnswerUsecase
	FeedbackUsecase usecase.FeedbackUsecase
	Retriever       domain.Retriever
	Metrics         *metrics.Collector

	ready   func(ctx context.Context) error
	closers []func()
}

// NewApplicationComponents wires the answer pipeline from config. reg
// receives the pipeline metrics.
func NewApplicationComponents(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, log *slog.Logger) (*ApplicationComponents, error) {
	app := &ApplicationComponents{}

	tables, err := GuardTables(cfg.Guard)
	if err != nil {
		return nil, err
	}

	// Shared HTTP clients with connection pooling
	embedderHTTP := httpclient.NewPooledClient(cfg.Embedder.Timeout)
	weaviateHTTP := httpclient.NewPooledClient(cfg.Retrieval.Timeout)
	chatHTTP := httpclient.NewPooledClient(0)

	embedder := rag_ollama.NewEmbedder(cfg.Embedder.OllamaURL, cfg.Embedder.Model, embedderHTTP, log)

	retriever, err := app.newRetriever(ctx, cfg, embedder, weaviateHTTP, log)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Retriever = retriever

	generator := rag_openai.NewGenerator(rag_openai.Config{
		BaseURL:     cfg.Generation.BaseURL,
		APIKey:      cfg.Generation.APIKey,
		Model:       cfg.Generation.Model,
		Temperature: float32(cfg.Generation.Temperature),
	}, chatHTTP, log)

	var llmRewriter domain.QueryRewriter
	if cfg.Answer.RewriteEnabled {
		llmRewriter = generator
	}

	app.Metrics = metrics.New(reg)
	app.AnswerUsecase = usecase.NewAnswerUsecase(
		retriever,
		generator,
		usecase.NewDocumentPromptBuilder(time.Now),
		usecase.NewQueryRewriter(usecase.DefaultSynonyms(), llmRewriter, log),
		tables,
		usecase.NewFAQLookup(retriever, cfg.FAQ.CacheSize, cfg.FAQ.CacheTTL),
		usecase.AnswerConfig{
			HistoryEnabled:   cfg.Answer.HistoryEnabled,
			RetrievalTimeout: cfg.Retrieval.Timeout,
			RewriteTimeout:   cfg.Answer.RewriteTimeout,
			DocsBaseURL:      cfg.Answer.DocsBaseURL,
		},
		app.Metrics,
		log,
	)
	app.FeedbackUsecase = usecase.NewFeedbackUsecase(log)

	log.Info("answer_pipeline_ready",
		slog.String("retrieval_backend", cfg.Retrieval.Backend),
		slog.String("chat_model", generator.Version()),
		slog.Bool("history_enabled", cfg.Answer.HistoryEnabled),
		slog.Bool("query_rewrite_enabled", cfg.Answer.RewriteEnabled))
	return app, nil
}

func (a *ApplicationComponents) newRetriever(
	ctx context.Context,
	cfg *config.Config,
	embedder *rag_ollama.Embedder,
	httpClient *http.Client,
	log *slog.Logger,
) (domain.Retriever, error) {
	switch cfg.Retrieval.Backend {
	case "pgvector":
		pool, err := infra.NewPostgresDB(ctx, cfg.DB.DSN(), infra.PoolConfig{
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("connect pgvector store: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.ready = pool.Ping

		retriever := rag_pgvector.NewRetriever(pool, embedder, log)
		if err := retriever.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return retriever, nil

	case "weaviate", "":
		client, err := rag_weaviate.NewClient(cfg.Weaviate.URL, cfg.Weaviate.APIKey, cfg.Weaviate.Headers(), httpClient)
		if err != nil {
			return nil, err
		}
		a.ready = weaviateReady(client)

		var encoder domain.VectorEncoder
		if cfg.Weaviate.ClientVectors {
			encoder = embedder
		}
		return rag_weaviate.NewRetriever(client, encoder, rag_weaviate.Config{
			ClassName: cfg.Weaviate.ClassName,
			Mode:      rag_weaviate.SearchMode(cfg.Weaviate.SearchMode),
			Alpha:     cfg.Weaviate.Alpha,
		}, log), nil
	}
	return nil, fmt.Errorf("unknown retrieval backend %q", cfg.Retrieval.Backend)
}

// Ready reports whether the retrieval backend is reachable.
func (a *ApplicationComponents) Ready(ctx context.Context) error {
	if a.ready == nil {
		return nil
	}
	return a.ready(ctx)
}

// Close releases backend connections. It is safe to call more than once.
func (a *ApplicationComponents) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// GuardTables returns the pattern tables named by cfg, or the built-in set.
func GuardTables(cfg config.GuardConfig) (*guard.Tables, error) {
	if cfg.PatternsFile == "" {
		return guard.Default(), nil
	}
	tables, err := guard.LoadFile(cfg.PatternsFile)
	if err != nil {
		return nil, fmt.Errorf("load guard patterns: %w", err)
	}
	return tables, nil
}

func weaviateReady(client *weaviate.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ok, err := client.Misc().ReadyChecker().Do(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("weaviate is not ready")
		}
		return nil
	}
}
