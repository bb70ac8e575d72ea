package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Provider name tags reported back to callers alongside a summary. Each tag
// must name the adapter whose call actually produced the text.
const (
	NameOpenAI      = "openai"
	NameGemini      = "gemini"
	NameHuggingFace = "huggingface"
)

// CompletionRequest is a single text-generation call.
type CompletionRequest struct {
	System string
	Prompt string
}

// CompletionProvider is the contract every text-generation adapter satisfies.
// Adapters perform exactly one network call per invocation; retry and
// fallback policy belong to the orchestrator.
type CompletionProvider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// EmbeddingProvider turns text into a fixed-length vector.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Error is the normalized failure shape for any provider call. StatusCode is
// zero when the failure happened before an HTTP response was received.
// Timeout is set when the underlying transport call timed out.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
	Timeout    bool
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// WrapTransport normalizes a transport-level failure (connection refused,
// DNS, client timeout) into an Error for the named provider.
func WrapTransport(name string, err error) *Error {
	e := &Error{Provider: name, Message: err.Error()}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		e.Timeout = true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		e.Timeout = true
	}
	return e
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
