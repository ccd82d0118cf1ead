package strata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Retrieval defaults.
const (
	DefaultFanout       = 4
	DefaultPreviewChars = 200
	DefaultMaxPreviews  = 3
)

// Querier answers parent-level queries. Retriever implements it; observer
// wraps it.
type Querier interface {
	Query(ctx context.Context, text string, topK int) ([]QueryResult, error)
	SearchChildren(ctx context.Context, text string, k int) ([]ScoredChild, error)
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithFanout sets the over-fetch multiplier applied to topK when searching
// children (default 4).
func WithFanout(n int) RetrieverOption {
	return func(r *Retriever) { r.fanout = n }
}

// WithPreviewChars sets the length in characters of matched-child previews (default 200).
func WithPreviewChars(n int) RetrieverOption {
	return func(r *Retriever) { r.previewChars = n }
}

// WithMaxPreviews sets how many matched children are kept per parent (default 3).
func WithMaxPreviews(n int) RetrieverOption {
	return func(r *Retriever) { r.maxPreviews = n }
}

// WithMinScore drops child candidates scoring below s before grouping.
// Default is 0 (no filtering).
func WithMinScore(s float32) RetrieverOption {
	return func(r *Retriever) { r.minScore = s; r.hasMinScore = true }
}

// WithRetrieverLogger sets the structured logger. Orphan references are
// logged at WARN.
func WithRetrieverLogger(l *slog.Logger) RetrieverOption {
	return func(r *Retriever) { r.logger = l }
}

// WithRetrieverTracer emits a "strata.query" span per Query.
func WithRetrieverTracer(t Tracer) RetrieverOption {
	return func(r *Retriever) { r.tracer = t }
}

// Retriever reconciles child-level similarity hits into parent-level results.
type Retriever struct {
	parents   ParentStore
	children  ChildIndex
	embedding EmbeddingProvider

	fanout       int
	previewChars int
	maxPreviews  int
	minScore     float32
	hasMinScore  bool
	logger       *slog.Logger
	tracer       Tracer
}

var _ Querier = (*Retriever)(nil)

// NewRetriever creates a Retriever over the given stores.
func NewRetriever(parents ParentStore, children ChildIndex, emb EmbeddingProvider, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		parents:      parents,
		children:     children,
		embedding:    emb,
		fanout:       DefaultFanout,
		previewChars: DefaultPreviewChars,
		maxPreviews:  DefaultMaxPreviews,
	}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = nopLogger
	}
	return r
}

// parentGroup accumulates the candidates of one parent.
type parentGroup struct {
	parentID string
	best     float32
	matched  []MatchedChild
}

// Query returns up to topK parents ranked by the best score of their
// matching children. Zero candidates yields an empty result, not an error.
func (r *Retriever) Query(ctx context.Context, text string, topK int) (_ []QueryResult, err error) {
	start := time.Now()
	if err := r.validate(text, topK); err != nil {
		return nil, err
	}
	ctx, span := StartSpan(ctx, r.tracer, "strata.query",
		IntAttr("query.top_k", topK),
		IntAttr("query.fanout", r.fanout))
	defer func() {
		if err != nil {
			span.Error(err)
		}
		span.End()
	}()

	candidates, err := r.search(ctx, text, topK*r.fanout)
	if err != nil {
		return nil, err
	}
	groups := r.group(candidates)
	if len(groups) > topK {
		groups = groups[:topK]
	}

	results := make([]QueryResult, 0, len(groups))
	for _, g := range groups {
		parent, err := r.parents.GetParent(ctx, g.parentID)
		if errors.Is(err, ErrNotFound) {
			ids := make([]string, len(g.matched))
			for i, m := range g.matched {
				ids[i] = m.ChildID
			}
			r.logger.Warn("orphan child reference", "orphan", OrphanReferenceWarning{ParentID: g.parentID, ChildIDs: ids})
			span.Event("orphan", StringAttr("parent_id", g.parentID))
			continue
		}
		if err != nil {
			return nil, &StorageError{Op: "get parent " + g.parentID, Err: err}
		}

		text, reassembled := r.reassemble(ctx, parent)
		results = append(results, QueryResult{
			ParentID:    parent.ID,
			Text:        text,
			Metadata:    parentMetadata(parent),
			Score:       g.best,
			Matched:     g.matched,
			Reassembled: reassembled,
		})
	}

	span.SetAttr(IntAttr("query.candidates", len(candidates)), IntAttr("query.results", len(results)))
	r.logger.Debug("retriever: query ok",
		"top_k", topK,
		"candidates", len(candidates),
		"returned", len(results),
		"duration", time.Since(start))
	return results, nil
}

// SearchChildren returns the raw child hits for text without grouping.
func (r *Retriever) SearchChildren(ctx context.Context, text string, k int) ([]ScoredChild, error) {
	if err := r.validate(text, k); err != nil {
		return nil, err
	}
	return r.search(ctx, text, k)
}

func (r *Retriever) validate(text string, topK int) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if topK <= 0 {
		return &ValidationError{Field: "top_k", Reason: "must be positive"}
	}
	if r.fanout <= 0 {
		return &ValidationError{Field: "fanout", Reason: "must be positive"}
	}
	return nil
}

func (r *Retriever) search(ctx context.Context, text string, k int) ([]ScoredChild, error) {
	vecs, err := r.embedding.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors, want 1", len(vecs))
	}
	hits, err := r.children.SimilaritySearch(ctx, vecs[0], k)
	if err != nil {
		return nil, fmt.Errorf("search children: %w", err)
	}
	if !r.hasMinScore {
		return hits, nil
	}
	kept := hits[:0]
	for _, h := range hits {
		if h.Score >= r.minScore {
			kept = append(kept, h)
		}
	}
	return kept, nil
}

// group collapses candidates by parent, keeping the best score per parent,
// and orders parents by that score. Ties keep first-seen order.
func (r *Retriever) group(candidates []ScoredChild) []*parentGroup {
	byParent := make(map[string]*parentGroup)
	var order []*parentGroup
	for _, c := range candidates {
		pid := c.Child.ParentID
		if pid == "" {
			if p, _, err := ParseChildID(c.Child.ID); err == nil {
				pid = p
			}
		}
		if pid == "" {
			r.logger.Warn("child without parent reference", "child_id", c.Child.ID)
			continue
		}
		g, ok := byParent[pid]
		if !ok {
			g = &parentGroup{parentID: pid, best: c.Score}
			byParent[pid] = g
			order = append(order, g)
		}
		if c.Score > g.best {
			g.best = c.Score
		}
		if len(g.matched) < r.maxPreviews {
			g.matched = append(g.matched, MatchedChild{
				ChildID: c.Child.ID,
				Preview: truncateRunes(c.Child.Text, r.previewChars),
				Score:   c.Score,
			})
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].best > order[j].best
	})
	return order
}

// reassemble rebuilds display text from the parent's live children in
// child_index order, falling back to the stored parent text.
func (r *Retriever) reassemble(ctx context.Context, parent ParentRecord) (string, bool) {
	kids, err := r.children.ListByParent(ctx, parent.ID)
	if err != nil {
		r.logger.Warn("list children failed, using stored parent text", "parent_id", parent.ID, "error", err)
		return parent.Text, false
	}
	if len(kids) == 0 {
		return parent.Text, false
	}
	sort.SliceStable(kids, func(i, j int) bool { return kids[i].ChildIndex < kids[j].ChildIndex })
	parts := make([]string, len(kids))
	for i, k := range kids {
		parts[i] = k.Text
	}
	return strings.Join(parts, "\n"), true
}

// parentMetadata returns the parent's metadata with the record-level fields folded in.
func parentMetadata(p ParentRecord) Metadata {
	m := p.Metadata.Clone()
	m[MetaSourceID] = String(p.SourceID)
	m[MetaContentType] = String(string(p.ContentType))
	m[MetaOrdinal] = Int(p.Ordinal)
	if !p.CreatedAt.IsZero() {
		m[MetaCreatedAt] = String(p.CreatedAt.UTC().Format(time.RFC3339))
	}
	return m
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
