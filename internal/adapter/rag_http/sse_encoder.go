package rag_http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"programme-qa/internal/domain"
)

var (
	framePrefix     = []byte("data: ")
	frameSuffix     = []byte("\n\n")
	doneFrame       = []byte("data: [DONE]\n\n")
	toolCallName    = "document"
	errorTypeServer = "server_error"
)

type toolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type toolCall struct {
	Function toolFunction `json:"function"`
}

type frameDelta struct {
	Content   *string    `json:"content,omitempty"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

type frameChoice struct {
	Delta frameDelta `json:"delta"`
}

type chunkFrame struct {
	Role    string        `json:"role,omitempty"`
	Choices []frameChoice `json:"choices"`
}

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type errorFrame struct {
	Error errorBody `json:"error"`
}

// SSEEncoder writes answer events as OpenAI-style chat completion chunks.
// It is owned by a single request and is not safe for concurrent use.
type SSEEncoder struct {
	w       io.Writer
	flusher http.Flusher
	done    bool
}

func NewSSEEncoder(w io.Writer) *SSEEncoder {
	enc := &SSEEncoder{w: w}
	if f, ok := w.(http.Flusher); ok {
		enc.flusher = f
	}
	return enc
}

// WriteCitations emits one frame per citation in a single write so that
// clients see every source before the first content frame.
func (e *SSEEncoder) WriteCitations(citations []domain.CitationEvent) error {
	if len(citations) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, c := range citations {
		args, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal citation: %w", err)
		}
		frame := chunkFrame{
			Role: domain.RoleAssistant,
			Choices: []frameChoice{{Delta: frameDelta{
				ToolCalls: []toolCall{{Function: toolFunction{Name: toolCallName, Arguments: string(args)}}},
			}}},
		}
		if err := appendFrame(&buf, frame); err != nil {
			return err
		}
	}
	return e.write(buf.Bytes())
}

func (e *SSEEncoder) WriteContent(text string) error {
	var buf bytes.Buffer
	frame := chunkFrame{Choices: []frameChoice{{Delta: frameDelta{Content: &text}}}}
	if err := appendFrame(&buf, frame); err != nil {
		return err
	}
	return e.write(buf.Bytes())
}

func (e *SSEEncoder) WriteError(message string) error {
	var buf bytes.Buffer
	if err := appendFrame(&buf, errorFrame{Error: errorBody{Message: message, Type: errorTypeServer}}); err != nil {
		return err
	}
	return e.write(buf.Bytes())
}

// WriteDone writes the terminator. Later calls are no-ops.
func (e *SSEEncoder) WriteDone() error {
	if e.done {
		return nil
	}
	e.done = true
	return e.write(doneFrame)
}

// Done reports whether the terminator has been written.
func (e *SSEEncoder) Done() bool {
	return e.done
}

func (e *SSEEncoder) write(p []byte) error {
	if _, err := e.w.Write(p); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

func appendFrame(buf *bytes.Buffer, v any) error {
	buf.Write(framePrefix)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	// Encode terminates with a newline; one more completes the frame.
	buf.Truncate(buf.Len() - 1)
	buf.Write(frameSuffix)
	return nil
}
