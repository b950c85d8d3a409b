package usecase

import (
	"context"
	"log/slog"
	"strings"
)

// MaxFeedbackTextLength caps free-text feedback, in characters.
const MaxFeedbackTextLength = 1000

// Feedback is a user rating of one answer.
type Feedback struct {
	SessionID string
	MessageID string
	Question  string
	Response  string
	Text      string

	// Type is one of up, down or report.
	Type string

	// Category is optional: wrong_info, outdated, unhelpful or other.
	Category string
}

// FeedbackUsecase records feedback. Records are emitted as structured log
// lines for downstream ingestion; nothing is stored by this service.
type FeedbackUsecase interface {
	Record(ctx context.Context, fb Feedback)
}

type feedbackUsecase struct {
	logger *slog.Logger
}

func NewFeedbackUsecase(logger *slog.Logger) FeedbackUsecase {
	return &feedbackUsecase{logger: logger}
}

func (u *feedbackUsecase) Record(ctx context.Context, fb Feedback) {
	text := strings.TrimSpace(fb.Text)
	if r := []rune(text); len(r) > MaxFeedbackTextLength {
		text = string(r[:MaxFeedbackTextLength])
	}
	u.logger.InfoContext(ctx, "user_feedback",
		slog.String("session_id", fb.SessionID),
		slog.String("message_id", fb.MessageID),
		slog.String("question", fb.Question),
		slog.String("response", fb.Response),
		slog.String("feedback_type", fb.Type),
		slog.String("feedback_category", fb.Category),
		slog.String("feedback_text", text),
	)
}
