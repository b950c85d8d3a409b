package domain

import "context"

// FragmentStream is a lazy, finite, non-restartable sequence of generated text
// fragments. Next returns io.EOF once the upstream stream has ended.
type FragmentStream interface {
	Next(ctx context.Context) (string, error)
	// Close releases the upstream connection. It is safe to call more than once.
	Close() error
}

// Generator opens streaming chat completions against the generation service.
type Generator interface {
	ChatStream(ctx context.Context, messages []Message) (FragmentStream, error)
	Version() string
}
