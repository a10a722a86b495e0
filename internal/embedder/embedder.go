// Package embedder converts rule text and questions into dense vector
// embeddings. Three backends are provided: a deterministic local hashing
// embedder (the default — no external service, identical vectors for
// identical text), Ollama over plain HTTP, and OpenAI via its SDK.
//
// Embedding for a fixed backend configuration is a pure function of the
// input text; the retrieval stack relies on this for reproducible ranking.
package embedder

import (
	"context"
	"errors"
	"fmt"
)

// Embedder converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice. Implementations must be
// safe to call from multiple goroutines.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ErrEmptyText is returned (wrapped in *Error) when a text to embed is empty
// after trimming whitespace.
var ErrEmptyText = errors.New("text is empty")

// Error is the failure type for all embedding backends. The retrieval engine
// matches on *Error to fall back to keyword-only ranking instead of failing
// the question outright, so backends must wrap every failure in it.
type Error struct {
	// Backend identifies the embedder that failed (e.g. "ollama").
	Backend string
	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("embedder: %s: %v", e.Backend, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// wrapErr wraps err in an *Error for the given backend.
func wrapErr(backend string, err error) error {
	return &Error{Backend: backend, Err: err}
}
