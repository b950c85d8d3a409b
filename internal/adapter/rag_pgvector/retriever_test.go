package rag_pgvector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRows struct {
	rows   [][]any
	pos    int
	err    error
	closed bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.pos-1], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *int64:
			*p = row[i].(int64)
		case **float64:
			if row[i] == nil {
				*p = nil
				continue
			}
			v := row[i].(float64)
			*p = &v
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

type fakeDB struct {
	rows     *fakeRows
	queryErr error
	execErr  error
	sql      []string
	args     [][]any
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	db.sql = append(db.sql, sql)
	db.args = append(db.args, args)
	return pgconn.CommandTag{}, db.execErr
}

func (db *fakeDB) Query(_ context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	db.sql = append(db.sql, sql)
	db.args = append(db.args, args)
	if db.queryErr != nil {
		return nil, db.queryErr
	}
	return db.rows, nil
}

type fixedEncoder struct {
	err error
}

func (e fixedEncoder) Encode(context.Context, []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return [][]float32{{1, 0, 0}}, nil
}

func (fixedEncoder) Version() string { return "bge-m3" }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestRetriever_Search(t *testing.T) {
	rows := &fakeRows{rows: [][]any{
		{"fees.md", "src/fees.md", "Fee is listed.", int64(120), 0.38},
		{"misc.md", "src/misc.md", "Misc.", int64(10), nil},
	}}
	db := &fakeDB{rows: rows}
	r := NewRetriever(db, fixedEncoder{}, discardLogger())

	docs, err := r.Search(context.Background(), "fee?", 5)

	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "fees.md", docs[0].Filename)
	assert.Equal(t, int64(120), docs[0].ByteSize)
	assert.InDelta(t, 0.62, docs[0].Relevance, 1e-9)
	assert.Zero(t, docs[1].Relevance)
	assert.True(t, rows.closed)

	require.Len(t, db.args, 1)
	assert.Equal(t, pgvector.NewVector([]float32{1, 0, 0}), db.args[0][0])
	assert.Equal(t, 5, db.args[0][1])
	assert.Contains(t, db.sql[0], "embedding <=> $1")
}

func TestRetriever_SearchFAQs(t *testing.T) {
	db := &fakeDB{rows: &fakeRows{rows: [][]any{
		{"faq_fees.md", "src/faq_fees.md", "Q1: How do I pay?", int64(20), 0.25},
	}}}
	r := NewRetriever(db, fixedEncoder{}, discardLogger())

	docs, err := r.SearchFAQs(context.Background(), "pay fees", 3)

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "faq_fees.md", docs[0].Filename)
	assert.InDelta(t, 0.75, docs[0].Relevance, 1e-9)
	assert.Contains(t, db.sql[0], `WHERE filename LIKE 'faq\_%'`)
	assert.Equal(t, 3, db.args[0][1])
}

func TestRetriever_SearchErrors(t *testing.T) {
	tests := []struct {
		name    string
		enc     fixedEncoder
		db      *fakeDB
		wantErr string
	}{
		{name: "embedding", enc: fixedEncoder{err: errors.New("ollama down")}, db: &fakeDB{}, wantErr: "failed to embed query"},
		{name: "query", db: &fakeDB{queryErr: errors.New("conn refused")}, wantErr: "failed to query documents"},
		{name: "rows", db: &fakeDB{rows: &fakeRows{err: errors.New("reset")}}, wantErr: "rows error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRetriever(tt.db, tt.enc, discardLogger())

			_, err := r.Search(context.Background(), "q", 5)

			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestRetriever_FetchByFilename(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		db := &fakeDB{rows: &fakeRows{rows: [][]any{{"faq.md", "src/faq.md", "Q1: x", int64(5)}}}}
		r := NewRetriever(db, fixedEncoder{}, discardLogger())

		doc, err := r.FetchByFilename(context.Background(), "faq.md")

		require.NoError(t, err)
		require.NotNil(t, doc)
		assert.Equal(t, "Q1: x", doc.RawContent)
		assert.Equal(t, []any{"faq.md"}, db.args[0])
	})

	t.Run("missing", func(t *testing.T) {
		r := NewRetriever(&fakeDB{rows: &fakeRows{}}, fixedEncoder{}, discardLogger())

		doc, err := r.FetchByFilename(context.Background(), "gone.md")

		require.NoError(t, err)
		assert.Nil(t, doc)
	})
}

func TestRetriever_EnsureSchema(t *testing.T) {
	db := &fakeDB{}
	r := NewRetriever(db, fixedEncoder{}, discardLogger())

	require.NoError(t, r.EnsureSchema(context.Background()))

	require.Len(t, db.sql, 1)
	assert.Contains(t, db.sql[0], "CREATE EXTENSION IF NOT EXISTS vector")
}
