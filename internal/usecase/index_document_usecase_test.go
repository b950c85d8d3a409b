package usecase_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"programme-qa/internal/domain"
	"programme-qa/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDocumentStore struct {
	mock.Mock
}

func (m *mockDocumentStore) SourceHash(ctx context.Context, filename string) (string, bool, error) {
	args := m.Called(ctx, filename)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockDocumentStore) Upsert(ctx context.Context, doc domain.Document, sourceHash string, embedding []float32) error {
	args := m.Called(ctx, doc, sourceHash, embedding)
	return args.Error(0)
}

type mockEncoder struct {
	mock.Mock
}

func (m *mockEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *mockEncoder) Version() string { return "bge-m3" }

func newIndexUsecase(store *mockDocumentStore, enc *mockEncoder) usecase.IndexDocumentUsecase {
	return usecase.NewIndexDocumentUsecase(store, domain.NewSourceHashPolicy(), enc, slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func TestIndexDocumentUsecase_Index(t *testing.T) {
	ctx := context.Background()
	doc := domain.Document{Filename: "fees.md", Filepath: "src/fees.md", RawContent: "# Fees\nFoundation: ₹32000", ByteSize: 27}
	hash := domain.NewSourceHashPolicy().Compute(doc.Filename, doc.RawContent)

	t.Run("new document is embedded and stored", func(t *testing.T) {
		store := new(mockDocumentStore)
		enc := new(mockEncoder)
		store.On("SourceHash", ctx, "fees.md").Return("", false, nil)
		enc.On("Encode", ctx, []string{doc.RawContent}).Return([][]float32{{0.1, 0.2}}, nil)
		store.On("Upsert", ctx, doc, hash, []float32{0.1, 0.2}).Return(nil)

		outcome, err := newIndexUsecase(store, enc).Index(ctx, doc)

		require.NoError(t, err)
		assert.Equal(t, usecase.IndexOutcomeIndexed, outcome)
		store.AssertExpectations(t)
		enc.AssertExpectations(t)
	})

	t.Run("unchanged document is not re-embedded", func(t *testing.T) {
		store := new(mockDocumentStore)
		enc := new(mockEncoder)
		store.On("SourceHash", ctx, "fees.md").Return(hash, true, nil)

		outcome, err := newIndexUsecase(store, enc).Index(ctx, doc)

		require.NoError(t, err)
		assert.Equal(t, usecase.IndexOutcomeUnchanged, outcome)
		enc.AssertNotCalled(t, "Encode", mock.Anything, mock.Anything)
		store.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("edited document replaces the row", func(t *testing.T) {
		store := new(mockDocumentStore)
		enc := new(mockEncoder)
		store.On("SourceHash", ctx, "fees.md").Return("stale", true, nil)
		enc.On("Encode", ctx, mock.Anything).Return([][]float32{{1}}, nil)
		store.On("Upsert", ctx, doc, hash, []float32{1}).Return(nil)

		outcome, err := newIndexUsecase(store, enc).Index(ctx, doc)

		require.NoError(t, err)
		assert.Equal(t, usecase.IndexOutcomeIndexed, outcome)
	})

	t.Run("blank document is skipped", func(t *testing.T) {
		store := new(mockDocumentStore)
		enc := new(mockEncoder)

		outcome, err := newIndexUsecase(store, enc).Index(ctx, domain.Document{Filename: "empty.md", RawContent: " \n"})

		require.NoError(t, err)
		assert.Equal(t, usecase.IndexOutcomeSkipped, outcome)
		store.AssertNotCalled(t, "SourceHash", mock.Anything, mock.Anything)
	})

	t.Run("encoder failure", func(t *testing.T) {
		store := new(mockDocumentStore)
		enc := new(mockEncoder)
		store.On("SourceHash", ctx, "fees.md").Return("", false, nil)
		enc.On("Encode", ctx, mock.Anything).Return(nil, errors.New("ollama down"))

		_, err := newIndexUsecase(store, enc).Index(ctx, doc)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "ollama down")
		store.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("embedding count mismatch", func(t *testing.T) {
		store := new(mockDocumentStore)
		enc := new(mockEncoder)
		store.On("SourceHash", ctx, "fees.md").Return("", false, nil)
		enc.On("Encode", ctx, mock.Anything).Return([][]float32{}, nil)

		_, err := newIndexUsecase(store, enc).Index(ctx, doc)

		assert.ErrorContains(t, err, "count mismatch")
	})
}
