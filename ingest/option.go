package ingest

import (
	"log/slog"
	"time"

	"github.com/nevindra/strata"
	"github.com/nevindra/strata/chunk"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithParentSplitter replaces the default parent splitter ("\n\n", 1024).
func WithParentSplitter(s *chunk.ParentSplitter) Option {
	return func(p *Pipeline) { p.parentSplitter = s }
}

// WithChildSplitter replaces the default child splitter ("\n", 512).
func WithChildSplitter(s *chunk.ChildSplitter) Option {
	return func(p *Pipeline) { p.childSplitter = s }
}

// WithBatchSize sets the number of child records per embed + AddBatch call (default 50).
func WithBatchSize(n int) Option {
	return func(p *Pipeline) { p.batchSize = n }
}

// WithWorkers sets how many documents IndexDocuments indexes at once (default 4).
func WithWorkers(n int) Option {
	return func(p *Pipeline) { p.workers = n }
}

// WithMaxInFlight bounds the child batches being sent at once across all
// workers (default 2).
func WithMaxInFlight(n int) Option {
	return func(p *Pipeline) { p.maxInFlight = n }
}

// WithRetryPolicy sets the retry policy applied to each child batch.
func WithRetryPolicy(r strata.RetryPolicy) Option {
	return func(p *Pipeline) { p.retry = r }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithTracer emits a "strata.index_document" span per document.
func WithTracer(t strata.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// WithIDGenerator replaces strata.NewID for parent ids.
func WithIDGenerator(fn func() string) Option {
	return func(p *Pipeline) { p.newID = fn }
}

// WithClock replaces time.Now for parent creation times.
func WithClock(fn func() time.Time) Option {
	return func(p *Pipeline) { p.now = fn }
}
