// Package gemini implements the Google Gemini embedding provider.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/nevindra/strata"
)

var baseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiEmbedding implements strata.EmbeddingProvider for Gemini embedding models.
type GeminiEmbedding struct {
	apiKey     string
	model      string
	dims       int
	taskType   string
	httpClient *http.Client
}

var _ strata.EmbeddingProvider = (*GeminiEmbedding)(nil)

// NewEmbedding creates a new Gemini embedding provider.
func NewEmbedding(apiKey, model string, dims int, opts ...Option) *GeminiEmbedding {
	e := &GeminiEmbedding{
		apiKey:     apiKey,
		model:      model,
		dims:       dims,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Name returns "gemini".
func (e *GeminiEmbedding) Name() string { return "gemini" }

// Dimensions returns the configured embedding dimensionality.
func (e *GeminiEmbedding) Dimensions() int { return e.dims }

type embedValues struct {
	Values []float64 `json:"values"`
}

type batchEmbedResponse struct {
	Embeddings []embedValues `json:"embeddings"`
}

// Embed sends texts through batchEmbedContents, at most 100 per request,
// and returns the vectors in input order.
func (e *GeminiEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for lo := 0; lo < len(texts); lo += maxBatch {
		hi := min(lo+maxBatch, len(texts))
		vecs, err := e.embedBatch(ctx, texts[lo:hi])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *GeminiEmbedding) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	model := "models/" + e.model
	requests := make([]map[string]any, len(texts))
	for i, text := range texts {
		req := map[string]any{
			"model": model,
			"content": map[string]any{
				"parts": []map[string]any{{"text": text}},
			},
		}
		if e.dims > 0 {
			req["outputDimensionality"] = e.dims
		}
		if e.taskType != "" {
			req["taskType"] = e.taskType
		}
		requests[i] = req
	}
	payload, err := json.Marshal(map[string]any{"requests": requests})
	if err != nil {
		return nil, e.fail(strata.EmbedInvalidInput, "marshal embed body", err)
	}

	url := fmt.Sprintf("%s/%s:batchEmbedContents?key=%s", baseURL, model, e.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, e.fail(strata.EmbedInvalidInput, "create embed request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		kind := strata.EmbedUnavailable
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			kind = strata.EmbedTimeout
		}
		return nil, e.fail(kind, "embed request failed", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, e.fail(strata.EmbedUnavailable, "read embed response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		he := httpErr(resp, string(body))
		kind := strata.EmbedInvalidInput
		if strata.IsTransient(he) {
			kind = strata.EmbedUnavailable
		}
		return nil, e.fail(kind, fmt.Sprintf("http %d", resp.StatusCode), he)
	}

	var parsed batchEmbedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, e.fail(strata.EmbedInvalidInput, "parse embed response", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, e.fail(strata.EmbedInvalidInput,
			fmt.Sprintf("got %d embeddings for %d texts", len(parsed.Embeddings), len(texts)), nil)
	}

	vecs := make([][]float32, len(texts))
	for i, emb := range parsed.Embeddings {
		if e.dims > 0 && len(emb.Values) != e.dims {
			return nil, e.fail(strata.EmbedInvalidInput,
				fmt.Sprintf("embedding has %d dimensions, want %d", len(emb.Values), e.dims), nil)
		}
		vec := make([]float32, len(emb.Values))
		for j, v := range emb.Values {
			vec[j] = float32(v)
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func (e *GeminiEmbedding) fail(kind strata.EmbeddingErrorKind, msg string, err error) error {
	return &strata.EmbeddingError{Provider: "gemini", Kind: kind, Message: msg, Err: err}
}

// httpErr builds an ErrHTTP, taking the retry delay from the Retry-After
// header or, failing that, from the RetryInfo detail in the error body.
func httpErr(resp *http.Response, body string) *strata.ErrHTTP {
	ra := strata.ParseRetryAfter(resp.Header.Get("Retry-After"))
	if ra == 0 {
		ra = parseRetryInfo(body)
	}
	return &strata.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       body,
		RetryAfter: ra,
	}
}

// parseRetryInfo extracts google.rpc.RetryInfo.retryDelay from an error body.
func parseRetryInfo(body string) time.Duration {
	var envelope struct {
		Error struct {
			Details []json.RawMessage `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(body), &envelope) != nil {
		return 0
	}
	for _, raw := range envelope.Error.Details {
		var detail struct {
			Type       string `json:"@type"`
			RetryDelay string `json:"retryDelay"`
		}
		if json.Unmarshal(raw, &detail) != nil {
			continue
		}
		if detail.Type == "type.googleapis.com/google.rpc.RetryInfo" && detail.RetryDelay != "" {
			if d, err := time.ParseDuration(detail.RetryDelay); err == nil {
				return d
			}
		}
	}
	return 0
}
