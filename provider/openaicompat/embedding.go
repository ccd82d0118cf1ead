// Package openaicompat provides an embedding provider for any API that
// speaks the OpenAI /embeddings protocol: OpenAI, OpenRouter, DashScope in
// compatible mode, Ollama's /v1 endpoint, vLLM and LM Studio.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nevindra/strata"
)

// Embedding implements strata.EmbeddingProvider on top of go-openai.
type Embedding struct {
	name       string
	model      string
	dims       int
	maxBatch   int
	httpClient *http.Client
	client     *openai.Client
	logger     *slog.Logger
}

var _ strata.EmbeddingProvider = (*Embedding)(nil)

// NewEmbedding creates an embedding provider.
//
// baseURL is the API base (e.g. "https://api.openai.com/v1",
// "http://localhost:11434/v1"); empty means OpenAI. dims is sent as the
// requested output dimensionality when positive and checked against every
// returned vector.
func NewEmbedding(apiKey, model, baseURL string, dims int, opts ...Option) *Embedding {
	e := &Embedding{
		name:       "openai",
		model:      model,
		dims:       dims,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(e)
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = e.httpClient
	e.client = openai.NewClientWithConfig(cfg)
	return e
}

// Name returns the provider name.
func (e *Embedding) Name() string { return e.name }

// Dimensions returns the configured embedding dimensionality.
func (e *Embedding) Dimensions() int { return e.dims }

// Embed returns one vector per text, in input order.
func (e *Embedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	step := len(texts)
	if e.maxBatch > 0 && e.maxBatch < step {
		step = e.maxBatch
	}
	out := make([][]float32, 0, len(texts))
	for lo := 0; lo < len(texts); lo += step {
		hi := min(lo+step, len(texts))
		vecs, err := e.embedOnce(ctx, texts[lo:hi])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *Embedding) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	req := openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	}
	if e.dims > 0 && e.name != "ollama" {
		req.Dimensions = e.dims
	}
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		e.logger.Debug("openaicompat: embed failed", "provider", e.name, "texts", len(texts), "error", err, "duration", time.Since(start))
		return nil, e.mapErr(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, &strata.EmbeddingError{
			Provider: e.name,
			Kind:     strata.EmbedInvalidInput,
			Message:  fmt.Sprintf("got %d embeddings for %d texts", len(resp.Data), len(texts)),
		}
	}

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) || vecs[d.Index] != nil {
			return nil, &strata.EmbeddingError{
				Provider: e.name,
				Kind:     strata.EmbedInvalidInput,
				Message:  fmt.Sprintf("bad embedding index %d", d.Index),
			}
		}
		if e.dims > 0 && len(d.Embedding) != e.dims {
			return nil, &strata.EmbeddingError{
				Provider: e.name,
				Kind:     strata.EmbedInvalidInput,
				Message:  fmt.Sprintf("embedding has %d dimensions, want %d", len(d.Embedding), e.dims),
			}
		}
		vecs[d.Index] = d.Embedding
	}
	e.logger.Debug("openaicompat: embed ok", "provider", e.name, "texts", len(texts), "duration", time.Since(start))
	return vecs, nil
}

// mapErr converts go-openai and transport errors into EmbeddingError. HTTP
// failures keep an *strata.ErrHTTP in the chain so IsTransient can read the status.
func (e *Embedding) mapErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return e.httpFailure(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return e.httpFailure(reqErr.HTTPStatusCode, string(reqErr.Body))
	}
	kind := strata.EmbedUnavailable
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		kind = strata.EmbedTimeout
	}
	return &strata.EmbeddingError{Provider: e.name, Kind: kind, Message: "request failed", Err: err}
}

func (e *Embedding) httpFailure(status int, body string) error {
	kind := strata.EmbedInvalidInput
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = strata.EmbedTimeout
	case status == http.StatusTooManyRequests || status >= 500:
		kind = strata.EmbedUnavailable
	}
	return &strata.EmbeddingError{
		Provider: e.name,
		Kind:     kind,
		Message:  fmt.Sprintf("http %d", status),
		Err:      &strata.ErrHTTP{Status: status, Body: body},
	}
}
