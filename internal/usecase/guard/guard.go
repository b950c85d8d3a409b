package guard

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"programme-qa/internal/domain"
)

// ErrTripped is returned by Stream.Next once the guard has replaced the answer.
// It is a deliberate substitution, not a failure.
var ErrTripped = errors.New("guard tripped")

// State of an inline guard.
type State int

const (
	StateStreaming State = iota
	StatePass
	StateTripped
)

func (s State) String() string {
	switch s {
	case StatePass:
		return "pass"
	case StateTripped:
		return "tripped"
	default:
		return "streaming"
	}
}

// Decision is the verdict for a single observed fragment.
type Decision int

const (
	Forward Decision = iota
	Trip
)

// TripReason records which heuristic fired.
type TripReason struct {
	Kind IssueKind
	// Rule is set for hallucination patterns.
	Rule string

	// At is the accumulated length, in characters, when the guard tripped.
	At int
}

// String renders the reason as a metric/log label.
func (r TripReason) String() string {
	if r.Rule != "" {
		return string(r.Kind) + ":" + r.Rule
	}
	return string(r.Kind)
}

// Guard screens one streamed answer. It is not safe for concurrent use and is
// never shared between requests.
type Guard struct {
	tables        *Tables
	hasUsableDocs bool
	outOfScope    bool

	acc    strings.Builder
	length int
	state  State
	reason TripReason
}

// New builds a guard for one request. The out-of-scope check keys off the
// question through the answer-scope keyword set.
func New(tables *Tables, question string, hasUsableDocs bool) *Guard {
	return &Guard{
		tables:        tables,
		hasUsableDocs: hasUsableDocs,
		outOfScope:    tables.AnswerScopeKeywords.Matches(question),
	}
}

// Observe appends fragment and decides whether it may be forwarded.
// After a trip every call returns Trip without evaluating anything.
func (g *Guard) Observe(fragment string) Decision {
	switch g.state {
	case StateTripped:
		return Trip
	case StatePass:
		return Forward
	}

	g.acc.WriteString(fragment)
	g.length += utf8.RuneCountInString(fragment)

	th := g.tables.Thresholds
	if g.length < th.MinJudgeLength {
		return Forward
	}

	text := g.acc.String()
	for _, rule := range g.tables.Hallucination {
		if rule.Severity != SeverityHigh {
			continue
		}
		if rule.Matches(text) {
			return g.trip(TripReason{Kind: KindHallucinationPattern, Rule: rule.Name})
		}
	}

	if !g.hasUsableDocs && g.length > th.NoSourceMinLength &&
		!g.tables.StreamNoSourceAdmissions.Matches(text) {
		return g.trip(TripReason{Kind: KindNoSource})
	}

	if g.outOfScope && g.length > th.OutOfScopeMinLength &&
		!g.tables.StreamOutOfScopeAdmissions.Matches(text) {
		return g.trip(TripReason{Kind: KindOutOfScope})
	}

	return Forward
}

func (g *Guard) trip(reason TripReason) Decision {
	reason.At = g.length
	g.state = StateTripped
	g.reason = reason
	return Trip
}

// Finish marks a normal end of stream. It has no effect once tripped.
func (g *Guard) Finish() State {
	if g.state == StateStreaming {
		g.state = StatePass
	}
	return g.state
}

func (g *Guard) State() State { return g.state }

// Reason is only meaningful once State is StateTripped.
func (g *Guard) Reason() TripReason { return g.reason }

// Accumulated returns the text observed so far, including the fragment that
// caused a trip.
func (g *Guard) Accumulated() string { return g.acc.String() }

// Stream is a FragmentStream transform that stops the sequence at the first
// trip and closes the upstream generation call.
type Stream struct {
	src   domain.FragmentStream
	guard *Guard
}

// Wrap returns src guarded by g.
func Wrap(src domain.FragmentStream, g *Guard) *Stream {
	return &Stream{src: src, guard: g}
}

// Next returns the next forwarded fragment, io.EOF on a normal end, or
// ErrTripped when the answer has to be replaced. The in-flight fragment of a
// trip is discarded.
func (s *Stream) Next(ctx context.Context) (string, error) {
	if s.guard.State() == StateTripped {
		return "", ErrTripped
	}

	fragment, err := s.src.Next(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.guard.Finish()
		}
		return "", err
	}

	if s.guard.Observe(fragment) == Trip {
		_ = s.src.Close()
		return "", ErrTripped
	}
	return fragment, nil
}

// Close releases the upstream. Safe to call after a trip.
func (s *Stream) Close() error {
	return s.src.Close()
}

// Guard exposes the underlying state machine.
func (s *Stream) Guard() *Guard { return s.guard }
