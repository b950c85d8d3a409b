package rag_http

import (
	"bytes"
	"errors"
	"testing"

	"programme-qa/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingWriter struct {
	bytes.Buffer
	writes  int
	flushes int
	fail    bool
}

func (w *countingWriter) Write(p []byte) (int, error) {
	if w.fail {
		return 0, errors.New("broken pipe")
	}
	w.writes++
	return w.Buffer.Write(p)
}

func (w *countingWriter) Flush() { w.flushes++ }

func TestSSEEncoder_CitationsAreOneWrite(t *testing.T) {
	w := &countingWriter{}
	enc := NewSSEEncoder(w)

	err := enc.WriteCitations([]domain.CitationEvent{
		{Relevance: 0.9, Name: "a", Link: "https://x/a.md"},
		{Relevance: 0.5, Name: "b", Link: "https://x/b.md"},
		{Relevance: 0.31, Name: "c", Link: "https://x/c.md"},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, w.writes)
	assert.Equal(t, 1, w.flushes)
	assert.Equal(t, 3, bytes.Count(w.Bytes(), []byte("data: ")))
	assert.Equal(t, 3, bytes.Count(w.Bytes(), []byte(`"name":"document"`)))
}

func TestSSEEncoder_NoCitationsWritesNothing(t *testing.T) {
	w := &countingWriter{}

	require.NoError(t, NewSSEEncoder(w).WriteCitations(nil))

	assert.Zero(t, w.writes)
}

func TestSSEEncoder_ContentFrame(t *testing.T) {
	w := &countingWriter{}
	enc := NewSSEEncoder(w)

	require.NoError(t, enc.WriteContent("a < b & \"c\"\n"))

	assert.Equal(t, "data: {\"choices\":[{\"delta\":{\"content\":\"a < b & \\\"c\\\"\\n\"}}]}\n\n", w.String())
}

func TestSSEEncoder_EmptyContentKeepsField(t *testing.T) {
	w := &countingWriter{}

	require.NoError(t, NewSSEEncoder(w).WriteContent(""))

	assert.Equal(t, "data: {\"choices\":[{\"delta\":{\"content\":\"\"}}]}\n\n", w.String())
}

func TestSSEEncoder_ErrorFrame(t *testing.T) {
	w := &countingWriter{}

	require.NoError(t, NewSSEEncoder(w).WriteError("try again"))

	assert.Equal(t, "data: {\"error\":{\"message\":\"try again\",\"type\":\"server_error\"}}\n\n", w.String())
}

func TestSSEEncoder_DoneOnce(t *testing.T) {
	w := &countingWriter{}
	enc := NewSSEEncoder(w)

	require.NoError(t, enc.WriteDone())
	require.NoError(t, enc.WriteDone())

	assert.True(t, enc.Done())
	assert.Equal(t, "data: [DONE]\n\n", w.String())
}

func TestSSEEncoder_WriteFailure(t *testing.T) {
	w := &countingWriter{fail: true}
	enc := NewSSEEncoder(w)

	assert.Error(t, enc.WriteContent("x"))
	assert.Zero(t, w.flushes)
}
