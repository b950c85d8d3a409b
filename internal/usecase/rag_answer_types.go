package usecase

import (
	"context"
	"time"

	"programme-qa/internal/domain"
)

// AnswerInput encapsulates the parameters that drive one answer request.
// It is validated by the transport before the pipeline runs.
type AnswerInput struct {
	Question       string
	MaxDocuments   int
	History        []domain.HistoryTurn
	SessionID      string
	MessageID      string
	ConversationID string

	// Seq is the caller's per-session sequence number, carried into logs.
	Seq int

	// FAQFile short-circuits retrieval and answers from one FAQ document.
	FAQFile string
}

// AnswerUsecase streams answers. The returned channel is unbuffered so the
// pipeline only pulls the next fragment once the previous event was taken.
// It is closed after the last event and callers must receive until then.
type AnswerUsecase interface {
	Stream(ctx context.Context, input AnswerInput) <-chan StreamEvent
}

type StreamEventKind string

const (
	// StreamEventKindCitations carries []domain.CitationEvent, sent once before content.
	StreamEventKindCitations StreamEventKind = "citations"
	// StreamEventKindDelta carries a forwarded text fragment.
	StreamEventKindDelta StreamEventKind = "delta"
	// StreamEventKindFallback carries a Fallback that replaces the answer.
	StreamEventKindFallback StreamEventKind = "fallback"
	// StreamEventKindError carries the error that ended the request.
	StreamEventKindError StreamEventKind = "error"
	// StreamEventKindDone carries an AnswerSummary. It is last when the
	// request ran to completion and absent when ctx ended the stream.
	StreamEventKindDone StreamEventKind = "done"
)

type StreamEvent struct {
	Kind    StreamEventKind
	Payload interface{}
}

// Fallback is canned content sent in place of a generated answer.
type Fallback struct {
	Text     string
	Category FallbackCategory
}

// FallbackCategory classifies why a fallback was sent, aiding observability.
type FallbackCategory string

const (
	FallbackOutOfScope   FallbackCategory = "out_of_scope"
	FallbackGuardTrip    FallbackCategory = "guard_trip"
	FallbackUnanswerable FallbackCategory = "unanswerable"
)

// Outcome is the terminal result of one request, used for logs and metrics.
type Outcome string

const (
	OutcomeAnswered     Outcome = "answered"
	OutcomeFAQ          Outcome = "faq"
	OutcomePrefiltered  Outcome = "prefiltered"
	OutcomeRejected     Outcome = "rejected"
	OutcomeGuardTripped Outcome = "guard_tripped"
	OutcomeFailed       Outcome = "failed"
	OutcomeCanceled     Outcome = "canceled"
)

// AnswerSummary is the payload of the done event.
type AnswerSummary struct {
	ConversationID string
	Outcome        Outcome
	Latency        time.Duration
}

// Metrics receives pipeline measurements. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObserveOutcome(outcome Outcome)
	ObservePrefilterRejection()
	ObserveGuardTrip(reason string)
	ObserveRetrieval(elapsed time.Duration, retrieved, usable int, err error)
}

type nopMetrics struct{}

func (nopMetrics) ObserveOutcome(Outcome)                          {}
func (nopMetrics) ObservePrefilterRejection()                      {}
func (nopMetrics) ObserveGuardTrip(string)                         {}
func (nopMetrics) ObserveRetrieval(time.Duration, int, int, error) {}
