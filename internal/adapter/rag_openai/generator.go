package rag_openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"programme-qa/internal/domain"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"

	// DefaultTemperature keeps answers stable across identical requests.
	DefaultTemperature = 0.3
)

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
}

// Generator streams chat completions from an OpenAI-compatible endpoint.
type Generator struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

func NewGenerator(cfg Config, httpClient *http.Client, logger *slog.Logger) *Generator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}
	return &Generator{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger,
	}
}

func (g *Generator) Version() string {
	return g.cfg.Model
}

// ChatStream opens one streaming completion. A non-2xx response is returned
// as an error before any fragment is read.
func (g *Generator) ChatStream(ctx context.Context, messages []domain.Message) (domain.FragmentStream, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Messages:    toChatMessages(messages),
		Temperature: g.cfg.Temperature,
		Stream:      true,
	}
	stream, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			g.logger.ErrorContext(ctx, "chat_stream_rejected",
				slog.Int("status", apiErr.HTTPStatusCode),
				slog.String("model", g.cfg.Model),
			)
		}
		return nil, fmt.Errorf("open chat stream: %w", err)
	}
	return &fragmentStream{stream: stream}, nil
}

func toChatMessages(messages []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// fragmentStream adapts a completion stream to domain.FragmentStream. Each
// Next pulls exactly one upstream chunk.
type fragmentStream struct {
	stream    *openai.ChatCompletionStream
	closeOnce sync.Once
	closeErr  error
}

func (s *fragmentStream) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		return "", io.EOF
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("read chat stream: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Delta.Content, nil
}

func (s *fragmentStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.stream.Close()
	})
	return s.closeErr
}

var _ domain.Generator = (*Generator)(nil)
