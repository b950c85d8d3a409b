package usecase

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidRequest marks request validation failures. They are reported
// before any streaming starts.
var ErrInvalidRequest = errors.New("invalid request")

// InvalidRequestf wraps ErrInvalidRequest with a caller-facing reason.
func InvalidRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// RetrievalError is a vector search failure. It ends the request.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string { return "retrieval failed: " + e.Err.Error() }
func (e *RetrievalError) Unwrap() error { return e.Err }

// GenerationError is a failure to open the generation stream, including
// non-2xx responses.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return "generation failed: " + e.Err.Error() }
func (e *GenerationError) Unwrap() error { return e.Err }

// StreamReadError is a transport failure while draining generation output.
type StreamReadError struct {
	Err error
}

func (e *StreamReadError) Error() string { return "generation stream read failed: " + e.Err.Error() }
func (e *StreamReadError) Unwrap() error { return e.Err }

// PublicMessage is the text shown to clients for an in-stream failure.
// Upstream details stay in the logs.
func PublicMessage(err error) string {
	var (
		re *RetrievalError
		ge *GenerationError
		se *StreamReadError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "the request took too long, please try again"
	case errors.As(err, &re):
		return "document search is unavailable, please try again later"
	case errors.As(err, &ge):
		return "the answer service is unavailable, please try again later"
	case errors.As(err, &se):
		return "the answer stream was interrupted, please try again"
	default:
		return "an error occurred while processing your request"
	}
}
