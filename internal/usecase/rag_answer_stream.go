package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"programme-qa/internal/domain"
	applog "programme-qa/internal/infra/logger"
	"programme-qa/internal/usecase/guard"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AnswerConfig tunes the answer pipeline.
type AnswerConfig struct {
	HistoryEnabled   bool
	RetrievalTimeout time.Duration
	RewriteTimeout   time.Duration

	// DocsBaseURL is joined with a document filename to build citation links.
	DocsBaseURL string
}

type answerUsecase struct {
	retriever     domain.Retriever
	generator     domain.Generator
	promptBuilder PromptBuilder
	prefilter     ScopePrefilter
	rewriter      *QueryRewriter
	tables        *guard.Tables
	faq           *FAQLookup
	cfg           AnswerConfig
	metrics       Metrics
	logger        *slog.Logger
	tracer        trace.Tracer
}

// NewAnswerUsecase wires together the components needed to stream an answer.
// rewriter, faq and metrics may be nil.
func NewAnswerUsecase(
	retriever domain.Retriever,
	generator domain.Generator,
	promptBuilder PromptBuilder,
	rewriter *QueryRewriter,
	tables *guard.Tables,
	faq *FAQLookup,
	cfg AnswerConfig,
	metrics Metrics,
	logger *slog.Logger,
) AnswerUsecase {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if faq == nil {
		faq = NewFAQLookup(retriever, 0, 10*time.Minute)
	}
	if rewriter == nil {
		rewriter = NewQueryRewriter(nil, nil, logger)
	}
	return &answerUsecase{
		retriever:     retriever,
		generator:     generator,
		promptBuilder: promptBuilder,
		prefilter:     NewScopePrefilter(tables),
		rewriter:      rewriter,
		tables:        tables,
		faq:           faq,
		cfg:           cfg,
		metrics:       metrics,
		logger:        logger,
		tracer:        otel.Tracer("programme-qa/usecase"),
	}
}

// turnRecord collects what the conversation_turn log line reports.
type turnRecord struct {
	start       time.Time
	querySource QuerySource
	sanitized   string
	rewritten   string
	language    Language
	documents   []domain.Document
	usable      int
	response    string
	guardReason string
	err         error
}

// Stream runs the pipeline for one question. Events are sent in this order:
// at most one citations batch, then either deltas or one fallback or one
// error, then done. Nothing follows a fallback or an error except done. When
// ctx ends first the channel closes without a done event.
func (u *answerUsecase) Stream(ctx context.Context, input AnswerInput) <-chan StreamEvent {
	events := make(chan StreamEvent)
	go func() {
		defer close(events)

		rec := &turnRecord{start: time.Now(), querySource: QuerySourceOriginal, language: LanguageEnglish}
		outcome := u.run(ctx, input, events, rec)
		stopped := outcome == OutcomeCanceled
		if stopped && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			outcome = OutcomeFailed
			rec.err = ctx.Err()
		}

		u.metrics.ObserveOutcome(outcome)
		u.logTurn(ctx, input, outcome, rec)

		// A stream stopped by ctx gets no done event, so the caller can tell
		// it apart from a completed one and close it with an error frame.
		if stopped {
			return
		}
		// The caller drains until close, so this send does not race ctx.
		events <- StreamEvent{
			Kind: StreamEventKindDone,
			Payload: AnswerSummary{
				ConversationID: input.ConversationID,
				Outcome:        outcome,
				Latency:        time.Since(rec.start),
			},
		}
	}()
	return events
}

func (u *answerUsecase) run(ctx context.Context, input AnswerInput, events chan<- StreamEvent, rec *turnRecord) Outcome {
	if input.FAQFile != "" {
		rec.querySource = QuerySourceFAQDirect
		return u.answerFromFAQ(ctx, input, events, rec)
	}

	if u.prefilter.Rejects(input.Question) {
		u.metrics.ObservePrefilterRejection()
		u.logger.InfoContext(ctx, "question_prefiltered", slog.String("question", input.Question))
		rec.response = guard.FallbackMessage
		return u.sendFallback(ctx, events, Fallback{Text: guard.FallbackMessage, Category: FallbackOutOfScope}, OutcomePrefiltered)
	}

	question := SanitizeQuery(input.Question)
	rec.sanitized = question
	if question == "" {
		u.logger.WarnContext(ctx, "question_rejected_after_sanitization", slog.String("question", input.Question))
		rec.querySource = QuerySourceRejected
		return u.sendCannotAnswer(ctx, events, rec, input.Question, LanguageEnglish)
	}

	rewritten := u.rewrite(ctx, question)
	rec.querySource = rewritten.Source
	rec.rewritten = rewritten.Query
	rec.language = rewritten.Language

	docs, err := u.retrieve(ctx, rewritten.Query, input.MaxDocuments)
	if err != nil {
		return u.sendError(ctx, events, rec, &RetrievalError{Err: err})
	}
	usable, all := FilterRelevant(docs, domain.RelevanceThreshold)
	rec.documents = all
	rec.usable = len(usable)

	if len(usable) > 0 {
		if !u.sendStreamEvent(ctx, events, StreamEvent{Kind: StreamEventKindCitations, Payload: u.citations(usable)}) {
			return OutcomeCanceled
		}
	}

	history := input.History
	if !u.cfg.HistoryEnabled {
		history = nil
	}
	messages := u.promptBuilder.Build(PromptInput{
		Question:    question,
		Documents:   usable,
		ContextNote: ContextNote(usable, all),
		History:     history,
		Language:    rewritten.Language,
	})

	return u.generate(ctx, messages, question, len(usable) > 0, events, rec)
}

func (u *answerUsecase) rewrite(ctx context.Context, question string) RewrittenQuery {
	ctx = applog.WithPipelineStage(ctx, "rewrite")
	ctx, span := u.tracer.Start(ctx, "answer.rewrite")
	defer span.End()

	if u.cfg.RewriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.cfg.RewriteTimeout)
		defer cancel()
	}

	rewritten := u.rewriter.Rewrite(ctx, question)
	span.SetAttributes(
		attribute.String("qa.rewrite.source", string(rewritten.Source)),
		attribute.String("qa.rewrite.language", string(rewritten.Language)),
	)
	u.logger.DebugContext(ctx, "query_rewritten",
		slog.String("source", string(rewritten.Source)),
		slog.String("query", rewritten.Query),
		slog.String("language", string(rewritten.Language)),
	)
	return rewritten
}

func (u *answerUsecase) retrieve(ctx context.Context, question string, limit int) ([]domain.Document, error) {
	ctx = applog.WithPipelineStage(ctx, "retrieve")
	ctx, span := u.tracer.Start(ctx, "answer.retrieve", trace.WithAttributes(attribute.Int("qa.retrieval.limit", limit)))
	defer span.End()

	if u.cfg.RetrievalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.cfg.RetrievalTimeout)
		defer cancel()
	}

	start := time.Now()
	docs, err := u.retriever.Search(ctx, question, limit)
	usable, _ := FilterRelevant(docs, domain.RelevanceThreshold)
	u.metrics.ObserveRetrieval(time.Since(start), len(docs), len(usable), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("qa.retrieval.documents", len(docs)), attribute.Int("qa.retrieval.usable", len(usable)))
	u.logger.InfoContext(ctx, "retrieval_completed",
		slog.Int("documents", len(docs)),
		slog.Int("usable", len(usable)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return docs, nil
}

func (u *answerUsecase) generate(
	ctx context.Context,
	messages []domain.Message,
	question string,
	hasUsableDocs bool,
	events chan<- StreamEvent,
	rec *turnRecord,
) Outcome {
	ctx = applog.WithPipelineStage(ctx, "generate")
	ctx, span := u.tracer.Start(ctx, "answer.generate", trace.WithAttributes(
		attribute.String("qa.generation.model", u.generator.Version()),
		attribute.Int("qa.generation.messages", len(messages)),
	))
	defer span.End()

	src, err := u.generator.ChatStream(ctx, messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat stream setup failed")
		return u.sendError(ctx, events, rec, &GenerationError{Err: err})
	}

	g := guard.New(u.tables, question, hasUsableDocs)
	stream := guard.Wrap(src, g)
	defer stream.Close()

	ctx, streamSpan := u.tracer.Start(ctx, "answer.stream")
	defer streamSpan.End()

	var answer strings.Builder
	fragments := 0
	for {
		fragment, err := stream.Next(ctx)
		switch {
		case err == nil:
			if fragment == "" {
				continue
			}
			answer.WriteString(fragment)
			fragments++
			if !u.sendStreamEvent(ctx, events, StreamEvent{Kind: StreamEventKindDelta, Payload: fragment}) {
				rec.response = answer.String()
				return OutcomeCanceled
			}

		case errors.Is(err, io.EOF):
			streamSpan.SetAttributes(attribute.Int("qa.stream.fragments", fragments))
			rec.response = answer.String()
			return OutcomeAnswered

		case errors.Is(err, guard.ErrTripped):
			reason := g.Reason()
			streamSpan.SetAttributes(
				attribute.String("qa.guard.reason", reason.String()),
				attribute.Int("qa.guard.at", reason.At),
			)
			u.metrics.ObserveGuardTrip(reason.String())
			u.logger.WarnContext(ctx, "guard_tripped",
				slog.String("reason", reason.String()),
				slog.Int("accumulated_length", reason.At),
				slog.Int("forwarded_fragments", fragments),
			)
			rec.guardReason = reason.String()
			rec.response = guard.FallbackMessage
			return u.sendFallback(ctx, events, Fallback{Text: guard.FallbackMessage, Category: FallbackGuardTrip}, OutcomeGuardTripped)

		case ctx.Err() != nil:
			rec.response = answer.String()
			return OutcomeCanceled

		default:
			streamSpan.RecordError(err)
			streamSpan.SetStatus(codes.Error, "stream read failed")
			rec.response = answer.String()
			return u.sendError(ctx, events, rec, &StreamReadError{Err: err})
		}
	}
}

func (u *answerUsecase) answerFromFAQ(ctx context.Context, input AnswerInput, events chan<- StreamEvent, rec *turnRecord) Outcome {
	doc, err := u.faq.Fetch(ctx, input.FAQFile)
	if err != nil {
		u.logger.ErrorContext(ctx, "faq_lookup_failed", slog.String("faq_file", input.FAQFile), slog.String("error", err.Error()))
		rec.err = err
	}
	if doc == nil {
		rec.response = CannotAnswerMessage(LanguageEnglish)
		return u.sendFallback(ctx, events, Fallback{Text: rec.response, Category: FallbackUnanswerable}, OutcomeRejected)
	}

	faqDoc := *doc
	faqDoc.Relevance = 1
	rec.documents = []domain.Document{faqDoc}
	rec.usable = 1

	if !u.sendStreamEvent(ctx, events, StreamEvent{Kind: StreamEventKindCitations, Payload: u.citations(rec.documents)}) {
		return OutcomeCanceled
	}
	content := FormatFAQContent(faqDoc.RawContent, input.Question)
	rec.response = content
	if !u.sendStreamEvent(ctx, events, StreamEvent{Kind: StreamEventKindDelta, Payload: content}) {
		return OutcomeCanceled
	}
	return OutcomeFAQ
}

func (u *answerUsecase) citations(docs []domain.Document) []domain.CitationEvent {
	out := make([]domain.CitationEvent, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.CitationEvent{
			Relevance: d.Relevance,
			Name:      d.DisplayName(),
			Link:      u.docLink(d.Filename),
		})
	}
	return out
}

func (u *answerUsecase) docLink(filename string) string {
	link, err := url.JoinPath(u.cfg.DocsBaseURL, filename)
	if err != nil {
		return strings.TrimRight(u.cfg.DocsBaseURL, "/") + "/" + filename
	}
	return link
}

// sendCannotAnswer rejects the question in lang and appends FAQ suggestions
// for it when the backend has any.
func (u *answerUsecase) sendCannotAnswer(ctx context.Context, events chan<- StreamEvent, rec *turnRecord, question string, lang Language) Outcome {
	text := CannotAnswerMessage(lang)
	suggestions, err := u.faq.Suggestions(ctx, question, lang)
	if err != nil {
		u.logger.WarnContext(ctx, "faq_suggestions_failed", slog.String("error", err.Error()))
	}
	text += suggestions
	rec.response = text
	return u.sendFallback(ctx, events, Fallback{Text: text, Category: FallbackUnanswerable}, OutcomeRejected)
}

func (u *answerUsecase) sendFallback(ctx context.Context, events chan<- StreamEvent, fb Fallback, outcome Outcome) Outcome {
	if !u.sendStreamEvent(ctx, events, StreamEvent{Kind: StreamEventKindFallback, Payload: fb}) {
		return OutcomeCanceled
	}
	return outcome
}

func (u *answerUsecase) sendError(ctx context.Context, events chan<- StreamEvent, rec *turnRecord, err error) Outcome {
	rec.err = err
	if ctx.Err() != nil {
		return OutcomeCanceled
	}
	u.logger.ErrorContext(ctx, "answer_stream_failed", slog.String("error", err.Error()))
	if !u.sendStreamEvent(ctx, events, StreamEvent{Kind: StreamEventKindError, Payload: err}) {
		return OutcomeCanceled
	}
	return OutcomeFailed
}

func (u *answerUsecase) logTurn(ctx context.Context, input AnswerInput, outcome Outcome, rec *turnRecord) {
	docs := make([]any, 0, len(rec.documents))
	for _, d := range rec.documents {
		docs = append(docs, map[string]any{"filename": d.Filename, "relevance": d.Relevance})
	}
	attrs := []slog.Attr{
		slog.String("session_id", orDefault(input.SessionID, "anonymous")),
		slog.String("message_id", input.MessageID),
		slog.Int("seq", input.Seq),
		slog.String("conversation_id", input.ConversationID),
		slog.String("question", input.Question),
		slog.String("sanitized_query", rec.sanitized),
		slog.String("rewritten_query", rec.rewritten),
		slog.String("query_source", string(rec.querySource)),
		slog.String("detected_language", string(rec.language)),
		slog.Any("documents", docs),
		slog.Int("usable_documents", rec.usable),
		slog.Int("history_length", len(input.History)),
		slog.String("outcome", string(outcome)),
		slog.String("guard_reason", rec.guardReason),
		slog.String("response", rec.response),
		slog.Int64("latency_ms", time.Since(rec.start).Milliseconds()),
	}
	level := slog.LevelInfo
	if rec.err != nil {
		level = slog.LevelError
		attrs = append(attrs, slog.String("error", rec.err.Error()))
	}
	// The request context may already be done; the record must still be written.
	u.logger.LogAttrs(context.WithoutCancel(ctx), level, "conversation_turn", attrs...)
}

func (u *answerUsecase) sendStreamEvent(ctx context.Context, events chan<- StreamEvent, event StreamEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case events <- event:
		return true
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
