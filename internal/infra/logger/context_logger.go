package logger

import (
	"context"
	"log/slog"
)

type ContextKey string

// Business context keys. They follow OpenTelemetry attribute naming with a
// 'qa.' prefix.
const (
	SessionIDKey      ContextKey = "qa.session.id"
	MessageIDKey      ContextKey = "qa.message.id"
	ConversationIDKey ContextKey = "qa.conversation.id"
	PipelineStageKey  ContextKey = "qa.pipeline.stage"
)

var contextKeys = []ContextKey{SessionIDKey, MessageIDKey, ConversationIDKey, PipelineStageKey}

// WithSessionID adds the caller's session id to context for observability.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return withValue(ctx, SessionIDKey, sessionID)
}

// WithMessageID adds the caller's message id to context for observability.
func WithMessageID(ctx context.Context, messageID string) context.Context {
	return withValue(ctx, MessageIDKey, messageID)
}

// WithConversationID adds the server-assigned conversation id to context.
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	return withValue(ctx, ConversationIDKey, conversationID)
}

// WithPipelineStage adds the current answer pipeline stage to context.
func WithPipelineStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, PipelineStageKey, stage)
}

func withValue(ctx context.Context, key ContextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	for _, key := range contextKeys {
		if v, ok := ctx.Value(key).(string); ok {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	return attrs
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug", "DEBUG":
		return slog.LevelDebug
	case "warn", "WARN", "warning", "WARNING":
		return slog.LevelWarn
	case "error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
