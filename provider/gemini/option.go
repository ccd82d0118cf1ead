package gemini

import "net/http"

// Task types understood by the embedding API.
const (
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// maxBatch is the largest request batchEmbedContents accepts.
const maxBatch = 100

// Option configures a GeminiEmbedding.
type Option func(*GeminiEmbedding)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *GeminiEmbedding) { e.httpClient = c }
}

// WithTaskType sets the taskType sent with every text. Unset means the
// API default.
func WithTaskType(task string) Option {
	return func(e *GeminiEmbedding) { e.taskType = task }
}
