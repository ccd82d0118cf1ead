package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nevindra/strata"
	"github.com/nevindra/strata/chunk"
)

// Pipeline defaults.
const (
	DefaultBatchSize   = 50
	DefaultWorkers     = 4
	DefaultMaxInFlight = 2
)

// Pipeline writes documents as parents and embedded children:
// split parents → store parents → split children → embed → add children.
// A Pipeline is safe for concurrent use.
type Pipeline struct {
	parents   strata.ParentStore
	children  strata.ChildIndex
	embedding strata.EmbeddingProvider

	parentSplitter *chunk.ParentSplitter
	childSplitter  *chunk.ChildSplitter

	batchSize   int
	workers     int
	maxInFlight int
	retry       strata.RetryPolicy
	logger      *slog.Logger
	tracer      strata.Tracer
	newID       func() string
	now         func() time.Time

	inFlight chan struct{}
}

// NewPipeline creates a Pipeline. Stores and embedding provider are shared,
// never copied; construct them once and pass them in.
func NewPipeline(parents strata.ParentStore, children strata.ChildIndex, emb strata.EmbeddingProvider, opts ...Option) (*Pipeline, error) {
	if parents == nil || children == nil || emb == nil {
		return nil, &strata.ValidationError{Field: "pipeline", Reason: "parent store, child index and embedding provider are required"}
	}
	p := &Pipeline{
		parents:     parents,
		children:    children,
		embedding:   emb,
		batchSize:   DefaultBatchSize,
		workers:     DefaultWorkers,
		maxInFlight: DefaultMaxInFlight,
		retry:       strata.NewRetryPolicy(),
		newID:       strata.NewID,
		now:         time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}

	var err error
	if p.parentSplitter == nil {
		if p.parentSplitter, err = chunk.NewParentSplitter("\n\n", 1024); err != nil {
			return nil, err
		}
	}
	if p.childSplitter == nil {
		if p.childSplitter, err = chunk.NewChildSplitter("\n", 512); err != nil {
			return nil, err
		}
	}
	switch {
	case p.batchSize <= 0:
		return nil, &strata.ValidationError{Field: "batch size", Reason: "must be positive"}
	case p.workers <= 0:
		return nil, &strata.ValidationError{Field: "workers", Reason: "must be positive"}
	case p.maxInFlight <= 0:
		return nil, &strata.ValidationError{Field: "max in flight", Reason: "must be positive"}
	}
	if err := p.retry.Validate(); err != nil {
		return nil, err
	}
	p.inFlight = make(chan struct{}, p.maxInFlight)
	return p, nil
}

// IndexDocument splits doc, writes every parent, then embeds and adds the
// children in batches. Each parent is committed before any child of the
// document is embedded or sent, so parents survive a later child failure.
// A parent's children are split before its upsert only to derive its
// content type; splitting has no side effects. Batches that already
// succeeded are never rolled back.
//
// Cancellation is checked between batches; a batch that has started runs
// to completion. A batch that still fails after the retry policy is
// reported as *strata.IndexBackendError naming its id range.
func (p *Pipeline) IndexDocument(ctx context.Context, doc Document) (res IndexResult, err error) {
	start := time.Now()
	res.SourceID = doc.SourceID
	if doc.SourceID == "" {
		return res, &strata.ValidationError{Field: "source id", Reason: "must not be empty"}
	}
	if strings.ContainsRune(doc.SourceID, 0) {
		return res, &strata.ValidationError{Field: "source id", Reason: "must not contain NUL"}
	}
	meta, err := strata.ToMetadata(doc.Metadata)
	if err != nil {
		return res, err
	}

	ctx, span := strata.StartSpan(ctx, p.tracer, "strata.index_document",
		strata.StringAttr("source.id", doc.SourceID))
	defer func() {
		span.SetAttr(
			strata.IntAttr("index.parents", len(res.ParentIDs)),
			strata.IntAttr("index.children", res.Children),
			strata.IntAttr("index.batches", res.Batches))
		if err != nil {
			span.Error(err)
		}
		span.End()
	}()

	var pending []strata.ChildRecord
	for i, text := range p.parentSplitter.Split(doc.Text) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		kids := p.childSplitter.Split(text)
		parent := strata.ParentRecord{
			ID:          p.newID(),
			Text:        text,
			Metadata:    meta,
			SourceID:    doc.SourceID,
			ContentType: chunk.ContentTypeOf(kids),
			Ordinal:     i,
			CreatedAt:   p.now().UTC(),
		}
		if err := p.parents.UpsertParent(ctx, parent); err != nil {
			return res, &strata.StorageError{Op: "upsert parent " + parent.ID, Err: err}
		}
		res.ParentIDs = append(res.ParentIDs, parent.ID)
		pending = append(pending, childRecords(parent, meta, kids)...)
	}

	for lo := 0; lo < len(pending); lo += p.batchSize {
		hi := min(lo+p.batchSize, len(pending))
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := p.addBatch(ctx, pending[lo:hi]); err != nil {
			return res, err
		}
		res.Children += hi - lo
		res.Batches++
	}

	res.Duration = time.Since(start)
	p.logger.Info("indexed document",
		"source_id", doc.SourceID,
		"parents", len(res.ParentIDs),
		"children", res.Children,
		"batches", res.Batches,
		"duration", res.Duration)
	return res, nil
}

// IndexDocuments indexes docs on a bounded pool of workers. Results are
// returned in input order. The first failure cancels documents that have
// not started their next batch yet; documents already written stay written.
func (p *Pipeline) IndexDocuments(ctx context.Context, docs []Document) ([]IndexResult, error) {
	results := make([]IndexResult, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, doc := range docs {
		g.Go(func() error {
			res, err := p.IndexDocument(gctx, doc)
			results[i] = res
			if err != nil {
				return fmt.Errorf("index %s: %w", doc.SourceID, err)
			}
			return nil
		})
	}
	return results, g.Wait()
}

// addBatch embeds and writes one batch under the retry policy. Each attempt
// runs detached from ctx cancellation so it is never cut off half-sent;
// waits between attempts still honor ctx.
func (p *Pipeline) addBatch(ctx context.Context, batch []strata.ChildRecord) error {
	select {
	case p.inFlight <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.inFlight }()

	start := time.Now()
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}
	attempts, err := p.retry.Do(ctx, "child_index.add_batch", func(ctx context.Context) error {
		ctx = context.WithoutCancel(ctx)
		vecs, err := p.embedding.Embed(ctx, texts)
		if err != nil {
			return err
		}
		if len(vecs) != len(batch) {
			return &strata.EmbeddingError{
				Provider: p.embedding.Name(),
				Kind:     strata.EmbedInvalidInput,
				Message:  fmt.Sprintf("got %d vectors for %d texts", len(vecs), len(batch)),
			}
		}
		for i := range batch {
			batch[i].Embedding = vecs[i]
		}
		return p.children.AddBatch(ctx, batch)
	})
	if err != nil {
		return &strata.IndexBackendError{
			Op:       "add_batch",
			FirstID:  batch[0].ID,
			LastID:   batch[len(batch)-1].ID,
			Attempts: attempts,
			Err:      err,
		}
	}
	p.logger.Debug("child batch added",
		"first_id", batch[0].ID,
		"last_id", batch[len(batch)-1].ID,
		"size", len(batch),
		"attempts", attempts,
		"duration", time.Since(start))
	return nil
}

// childRecords builds the children of parent with inherited metadata.
func childRecords(parent strata.ParentRecord, meta strata.Metadata, kids []chunk.ChildChunk) []strata.ChildRecord {
	out := make([]strata.ChildRecord, len(kids))
	for j, k := range kids {
		m := meta.Clone()
		m[strata.MetaSourceID] = strata.String(parent.SourceID)
		m[strata.MetaParentID] = strata.String(parent.ID)
		m[strata.MetaChildIndex] = strata.Int(j)
		m[strata.MetaOrdinal] = strata.Int(parent.Ordinal)
		m[strata.MetaContentType] = strata.String(string(k.ContentType))
		if k.ContentType == strata.ContentTable {
			m[strata.MetaTableTitle] = strata.String(k.Title)
			m[strata.MetaTableRows] = strata.Int(k.Rows)
		}
		out[j] = strata.ChildRecord{
			ID:          strata.ChildID(parent.ID, j),
			ParentID:    parent.ID,
			ChildIndex:  j,
			Text:        k.Text,
			ContentType: k.ContentType,
			Metadata:    m,
		}
	}
	return out
}
