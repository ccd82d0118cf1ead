package ingest

import "time"

// Document is one source handed to the pipeline. SourceID must be stable
// across re-indexing so that DeleteSource and source aggregation can find
// every chunk written for it. Metadata values may be of any type; they are
// reduced to scalars before they reach the child index.
type Document struct {
	SourceID string
	Text     string
	Metadata map[string]any
}

// IndexResult reports what IndexDocument wrote for one document.
type IndexResult struct {
	SourceID  string
	ParentIDs []string
	Children  int
	Batches   int
	Duration  time.Duration
}
