package strata

import "context"

// ParentStore persists parent records. Implementations serialize writers and
// let readers proceed concurrently.
type ParentStore interface {
	// UpsertParent inserts or overwrites a parent in a single atomic write.
	// An overwrite keeps the original CreatedAt.
	UpsertParent(ctx context.Context, p ParentRecord) error
	// GetParent returns the parent or an error wrapping ErrNotFound.
	GetParent(ctx context.Context, id string) (ParentRecord, error)
	// DeleteParent removes a parent. Deleting a missing id is not an error.
	DeleteParent(ctx context.Context, id string) error
	// DeleteParentsBySource removes every parent of a source and returns their ids.
	DeleteParentsBySource(ctx context.Context, sourceID string) ([]string, error)
	// ListParents returns one page of parents, newest first, and the total match count.
	// Every backend applies the ParentFilter rules: exact source id, and a
	// text substring that ignores ASCII letter case.
	ListParents(ctx context.Context, filter ParentFilter, limit, offset int) ([]ParentRecord, int, error)
	// AggregateBySource summarizes parents per source, largest first.
	AggregateBySource(ctx context.Context) ([]SourceSummary, error)
	// ListSources pages through source summaries with search and sorting.
	ListSources(ctx context.Context, q SourceQuery) ([]SourceSummary, int, error)
	Init(ctx context.Context) error
	Close() error
}

// ChildIndex stores embedded child records and answers similarity queries.
type ChildIndex interface {
	// AddBatch upserts records by id, so retrying a batch never duplicates it.
	AddBatch(ctx context.Context, records []ChildRecord) error
	// SimilaritySearch returns up to k children ranked by score, descending.
	SimilaritySearch(ctx context.Context, embedding []float32, k int) ([]ScoredChild, error)
	// Delete removes children by id. Missing ids are ignored.
	Delete(ctx context.Context, ids []string) error
	// DeleteByParent removes every child of a parent.
	DeleteByParent(ctx context.Context, parentID string) error
	// GetChild returns a child or an error wrapping ErrNotFound.
	GetChild(ctx context.Context, id string) (ChildRecord, error)
	// ListByParent returns a parent's children ordered by ChildIndex.
	ListByParent(ctx context.Context, parentID string) ([]ChildRecord, error)
	Init(ctx context.Context) error
	Close() error
}

// EmbeddingProvider abstracts text embedding. Embed preserves input order
// and returns vectors of Dimensions() length.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}
