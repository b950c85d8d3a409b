package usecase_test

import (
	"context"
	"io"
	"sync"
	"time"

	"programme-qa/internal/domain"
	"programme-qa/internal/usecase"

	"github.com/stretchr/testify/mock"
)

type mockRetriever struct {
	mock.Mock
}

func (m *mockRetriever) Search(ctx context.Context, query string, limit int) ([]domain.Document, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Document), args.Error(1)
}

func (m *mockRetriever) SearchFAQs(ctx context.Context, query string, limit int) ([]domain.Document, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Document), args.Error(1)
}

func (m *mockRetriever) FetchByFilename(ctx context.Context, filename string) (*domain.Document, error) {
	args := m.Called(ctx, filename)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

type mockQueryRewriter struct {
	mock.Mock
}

func (m *mockQueryRewriter) RewriteQuery(ctx context.Context, question string) (string, error) {
	args := m.Called(ctx, question)
	return args.String(0), args.Error(1)
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) ChatStream(ctx context.Context, messages []domain.Message) (domain.FragmentStream, error) {
	args := m.Called(ctx, messages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.FragmentStream), args.Error(1)
}

func (m *mockGenerator) Version() string {
	return "mock"
}

// fakeStream replays fragments, then returns err (io.EOF when nil).
type fakeStream struct {
	mu        sync.Mutex
	fragments []string
	err       error
	pos       int
	closed    bool
}

func newFakeStream(fragments ...string) *fakeStream {
	return &fakeStream{fragments: fragments}
}

func (s *fakeStream) Next(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.pos < len(s.fragments) {
		f := s.fragments[s.pos]
		s.pos++
		return f, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// blockingStream never yields until ctx is done.
type blockingStream struct {
	closed chan struct{}
	once   sync.Once
}

func newBlockingStream() *blockingStream {
	return &blockingStream{closed: make(chan struct{})}
}

func (s *blockingStream) Next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.closed:
		return "", io.ErrClosedPipe
	}
}

func (s *blockingStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type recordingMetrics struct {
	mu         sync.Mutex
	outcomes   []usecase.Outcome
	prefilter  int
	guardTrips []string
	retrievals int
}

func (m *recordingMetrics) ObserveOutcome(o usecase.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
}

func (m *recordingMetrics) ObservePrefilterRejection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefilter++
}

func (m *recordingMetrics) ObserveGuardTrip(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guardTrips = append(m.guardTrips, reason)
}

func (m *recordingMetrics) ObserveRetrieval(time.Duration, int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retrievals++
}
