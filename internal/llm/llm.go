// Package llm turns unreliable text-generation backends into a bounded,
// retryable operation. A Router holds an ordered list of backends (one
// primary plus fallbacks); each call walks the chain within a retry round,
// classifies failures as retryable or fatal, backs off exponentially between
// rounds, and strips reasoning markup from whatever the model returns.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Request is a single generation request routed to a backend.
type Request struct {
	// Prompt is the user-level instruction.
	Prompt string
	// Context is an optional system-level preamble.
	Context string
	// Temperature overrides the backend default when non-nil.
	Temperature *float64
	// MaxTokens overrides the backend default when non-nil.
	MaxTokens *int
}

// Response is a cleaned generation result.
type Response struct {
	// Content is the generated text with reasoning markup removed.
	Content string
	// Provider identifies the backend that produced the response.
	Provider string
	// Model is the concrete model used.
	Model string
	// TokensUsed is the total token count when the backend reports it.
	TokensUsed int
	// Latency is the wall-clock duration of the successful attempt.
	Latency time.Duration
}

// Backend is a single text-generation target.
//
// Implementations must honor ctx for cancellation and per-attempt deadlines
// and should return *Error so the router can classify the failure.
type Backend interface {
	// Name identifies the backend in logs, errors, and health reports.
	Name() string
	// Generate performs one generation attempt.
	Generate(ctx context.Context, req Request) (*Response, error)
	// Health performs a lightweight synthetic round-trip.
	Health(ctx context.Context) error
}

// Error is a classified backend failure. Retryable failures (timeouts,
// connection errors, rate limits, 5xx) allow another round; fatal ones
// (auth, bad request, content policy, context window) abort routing.
type Error struct {
	Provider  string
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }
