package openaicompat

import (
	"log/slog"
	"net/http"
)

// Option configures an Embedding.
type Option func(*Embedding)

// WithName sets the provider name reported by Name() and in errors
// (default "openai").
func WithName(name string) Option {
	return func(e *Embedding) { e.name = name }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Embedding) { e.httpClient = c }
}

// WithMaxBatch caps how many texts go into one request. Larger inputs are
// sent as consecutive requests. DashScope accepts at most 10; 0 means no cap.
func WithMaxBatch(n int) Option {
	return func(e *Embedding) { e.maxBatch = n }
}

// WithLogger sets a structured logger for request timing.
func WithLogger(l *slog.Logger) Option {
	return func(e *Embedding) { e.logger = l }
}
