package cli

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"programme-qa/internal/adapter/rag_ollama"
	"programme-qa/internal/adapter/rag_pgvector"
	"programme-qa/internal/domain"
	"programme-qa/internal/infra"
	"programme-qa/internal/infra/config"
	"programme-qa/internal/infra/httpclient"
	"programme-qa/internal/infra/logger"
	"programme-qa/internal/usecase"
)

type ingestOptions struct {
	dir     string
	workers int
}

// IngestSummary counts documents by outcome.
type IngestSummary struct {
	Indexed   int
	Unchanged int
	Skipped   int
	Failed    int
}

func NewIngestCommand() *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load Markdown documents into the pgvector store",
		Long: `Embed every .md file under --dir with Ollama and upsert it into the
pgvector documents table. Unchanged files are skipped by content hash.
Connection settings come from the same environment as the server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logger.New(cfg.LogLevel)
			ctx := cmd.Context()

			pool, err := infra.NewPostgresDB(ctx, cfg.DB.DSN(), infra.PoolConfig{
				MaxConns: cfg.DB.MaxConns,
				MinConns: cfg.DB.MinConns,
			})
			if err != nil {
				return err
			}
			defer pool.Close()

			embedder := rag_ollama.NewEmbedder(cfg.Embedder.OllamaURL, cfg.Embedder.Model,
				httpclient.NewPooledClient(cfg.Embedder.Timeout), log)
			store := rag_pgvector.NewRetriever(pool, embedder, log)
			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}

			uc := usecase.NewIndexDocumentUsecase(store, domain.NewSourceHashPolicy(), embedder, log)
			sum, err := IngestDir(ctx, opts.dir, uc, opts.workers, log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed=%d unchanged=%d skipped=%d failed=%d\n",
				sum.Indexed, sum.Unchanged, sum.Skipped, sum.Failed)
			if sum.Failed > 0 {
				return fmt.Errorf("%d documents failed to load", sum.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.dir, "dir", "d", "src", "directory of Markdown documents")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 4, "concurrent embeddings")

	return cmd
}

// IngestDir indexes every Markdown file under dir. A failing document is
// logged and counted; it does not stop the others.
func IngestDir(ctx context.Context, dir string, uc usecase.IndexDocumentUsecase, workers int, log *slog.Logger) (IngestSummary, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return IngestSummary{}, fmt.Errorf("walk %s: %w", dir, err)
	}

	var (
		mu  sync.Mutex
		sum IngestSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, path := range paths {
		g.Go(func() error {
			outcome, err := indexFile(gctx, dir, path, uc)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				sum.Failed++
				log.ErrorContext(gctx, "ingest_document_failed", slog.String("path", path), slog.String("error", err.Error()))
				return nil
			}
			switch outcome {
			case usecase.IndexOutcomeIndexed:
				sum.Indexed++
			case usecase.IndexOutcomeUnchanged:
				sum.Unchanged++
			default:
				sum.Skipped++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}
	return sum, ctx.Err()
}

func indexFile(ctx context.Context, root, path string, uc usecase.IndexDocumentUsecase) (usecase.IndexOutcome, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return uc.Index(ctx, domain.Document{
		Filename:   filepath.Base(path),
		Filepath:   filepath.ToSlash(rel),
		RawContent: string(content),
		ByteSize:   int64(len(content)),
	})
}
