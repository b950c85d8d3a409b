package rag_http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"programme-qa/internal/domain"
	"programme-qa/internal/infra/logger"
	"programme-qa/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	answerUsecase   usecase.AnswerUsecase
	feedbackUsecase usecase.FeedbackUsecase
	answerTimeout   time.Duration
	logger          *slog.Logger
}

// NewHandler builds the HTTP handlers. answerTimeout bounds each /answer
// request; zero disables the deadline.
func NewHandler(
	answerUsecase usecase.AnswerUsecase,
	feedbackUsecase usecase.FeedbackUsecase,
	answerTimeout time.Duration,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		answerUsecase:   answerUsecase,
		feedbackUsecase: feedbackUsecase,
		answerTimeout:   answerTimeout,
		logger:          logger,
	}
}

// Register mounts the API routes. mws apply to every route.
func (h *Handler) Register(e *echo.Echo, mws ...echo.MiddlewareFunc) {
	e.POST("/answer", h.Answer, mws...)
	e.POST("/feedback", h.Feedback, mws...)
}

type errorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// Answer streams an answer as Server-Sent Events
// (POST /answer)
func (h *Handler) Answer(c echo.Context) error {
	var req AnswerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return h.badRequest(c, err)
	}

	input := usecase.AnswerInput{
		Question:       req.Q,
		MaxDocuments:   req.documents(),
		History:        decodeHistory(req.History),
		SessionID:      req.SessionID,
		MessageID:      req.MessageID,
		ConversationID: uuid.NewString(),
		Seq:            req.Seq,
		FAQFile:        req.FAQFile,
	}

	clientCtx := c.Request().Context()
	ctx := logger.WithSessionID(clientCtx, input.SessionID)
	ctx = logger.WithMessageID(ctx, input.MessageID)
	ctx = logger.WithConversationID(ctx, input.ConversationID)
	if h.answerTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, h.answerTimeout)
		defer cancelTimeout()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.logger.InfoContext(ctx, "answer_stream_started",
		slog.Int("ndocs", input.MaxDocuments),
		slog.Int("history_length", len(input.History)),
		slog.Bool("faq_direct", input.FAQFile != ""),
	)

	setStreamingHeaders(c)
	enc := NewSSEEncoder(c.Response())

	var writeErr error
	for event := range h.answerUsecase.Stream(ctx, input) {
		if writeErr != nil {
			// Drain so the pipeline goroutine can exit.
			continue
		}
		if err := writeEvent(enc, event); err != nil {
			writeErr = err
			cancel()
			h.logger.WarnContext(ctx, "answer_stream_write_failed", slog.String("error", err.Error()))
		}
	}

	// The pipeline stops without a terminator only when ctx ended first. If
	// that was our deadline and the caller is still there, close the stream
	// properly.
	if writeErr == nil && !enc.Done() && clientCtx.Err() == nil {
		h.logger.WarnContext(ctx, "answer_stream_deadline_exceeded", slog.Duration("timeout", h.answerTimeout))
		if err := enc.WriteError(usecase.PublicMessage(ctx.Err())); err == nil {
			_ = enc.WriteDone()
		}
	}
	return nil
}

func writeEvent(enc *SSEEncoder, event usecase.StreamEvent) error {
	switch event.Kind {
	case usecase.StreamEventKindCitations:
		citations, _ := event.Payload.([]domain.CitationEvent)
		return enc.WriteCitations(citations)
	case usecase.StreamEventKindDelta:
		text, _ := event.Payload.(string)
		return enc.WriteContent(text)
	case usecase.StreamEventKindFallback:
		fb, _ := event.Payload.(usecase.Fallback)
		return enc.WriteContent(fb.Text)
	case usecase.StreamEventKindError:
		err, _ := event.Payload.(error)
		return enc.WriteError(usecase.PublicMessage(err))
	case usecase.StreamEventKindDone:
		return enc.WriteDone()
	}
	return nil
}

// Feedback records a rating of a previous answer
// (POST /feedback)
func (h *Handler) Feedback(c echo.Context) error {
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return h.badRequest(c, err)
	}

	h.feedbackUsecase.Record(c.Request().Context(), usecase.Feedback{
		SessionID: req.SessionID,
		MessageID: req.MessageID,
		Type:      req.FeedbackType,
		Category:  req.FeedbackCategory,
		Question:  req.Question,
		Response:  req.Response,
		Text:      req.FeedbackText,
	})
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) badRequest(c echo.Context, err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request", Details: verr.Errors})
	}
	if errors.Is(err, usecase.ErrInvalidRequest) {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	h.logger.ErrorContext(c.Request().Context(), "request_validation_failed", slog.String("error", err.Error()))
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func setStreamingHeaders(c echo.Context) {
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream; charset=utf-8")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set(echo.HeaderAccessControlAllowOrigin, "*")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
}
