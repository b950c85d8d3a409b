package rag_openai

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"programme-qa/internal/domain"

	openai "github.com/sashabaranov/go-openai"
)

//go:embed rewrite_prompt.txt
var rewritePrompt string

// rewriteMaxTokens bounds the keyword line returned by RewriteQuery.
const rewriteMaxTokens = 100

// RewriteQuery asks the model for search keywords ending with a [LANG:x] tag.
func (g *Generator) RewriteQuery(ctx context.Context, question string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: rewritePrompt},
			{Role: openai.ChatMessageRoleUser, Content: question},
		},
		// A zero temperature is dropped from the request body by omitempty.
		Temperature: math.SmallestNonzeroFloat32,
		MaxTokens:   rewriteMaxTokens,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			g.logger.WarnContext(ctx, "query_rewrite_rejected",
				slog.Int("status", apiErr.HTTPStatusCode),
				slog.String("model", g.cfg.Model),
			)
		}
		return "", fmt.Errorf("rewrite query: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("rewrite query: no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

var _ domain.QueryRewriter = (*Generator)(nil)
