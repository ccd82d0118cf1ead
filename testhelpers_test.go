package strata

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// stubEmbedding returns one fixed vector per text and records every call.
type stubEmbedding struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (s *stubEmbedding) Name() string    { return "stub" }
func (s *stubEmbedding) Dimensions() int { return 2 }
func (s *stubEmbedding) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, texts)
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

// memParents is an in-memory ParentStore.
type memParents struct {
	mu      sync.RWMutex
	records map[string]ParentRecord
	getErr  error
}

func newMemParents() *memParents { return &memParents{records: map[string]ParentRecord{}} }

func (m *memParents) UpsertParent(_ context.Context, p ParentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.records[p.ID]; ok {
		p.CreatedAt = old.CreatedAt
	}
	m.records[p.ID] = p
	return nil
}

func (m *memParents) GetParent(_ context.Context, id string) (ParentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.getErr != nil {
		return ParentRecord{}, m.getErr
	}
	p, ok := m.records[id]
	if !ok {
		return ParentRecord{}, fmt.Errorf("parent %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (m *memParents) DeleteParent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *memParents) DeleteParentsBySource(_ context.Context, sourceID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, p := range m.records {
		if p.SourceID == sourceID {
			ids = append(ids, id)
			delete(m.records, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memParents) ListParents(_ context.Context, f ParentFilter, limit, offset int) ([]ParentRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ParentRecord
	for _, p := range m.records {
		if f.SourceID != "" && p.SourceID != f.SourceID {
			continue
		}
		if !f.MatchesText(p.Text) {
			continue
		}
		out = append(out, p)
	}
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *memParents) AggregateBySource(context.Context) ([]SourceSummary, error) { return nil, nil }
func (m *memParents) ListSources(context.Context, SourceQuery) ([]SourceSummary, int, error) {
	return nil, 0, nil
}
func (m *memParents) Init(context.Context) error { return nil }
func (m *memParents) Close() error               { return nil }

// fakeIndex returns preset hits for every search and serves children by parent.
type fakeIndex struct {
	mu       sync.Mutex
	hits     []ScoredChild
	byParent map[string][]ChildRecord
	listErr  error
	lastK    int
}

func (f *fakeIndex) AddBatch(_ context.Context, recs []ChildRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byParent == nil {
		f.byParent = map[string][]ChildRecord{}
	}
	for _, r := range recs {
		f.byParent[r.ParentID] = append(f.byParent[r.ParentID], r)
	}
	return nil
}

func (f *fakeIndex) SimilaritySearch(_ context.Context, _ []float32, k int) ([]ScoredChild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastK = k
	out := append([]ScoredChild(nil), f.hits...)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (f *fakeIndex) Delete(context.Context, []string) error      { return nil }
func (f *fakeIndex) DeleteByParent(context.Context, string) error { return nil }
func (f *fakeIndex) GetChild(_ context.Context, id string) (ChildRecord, error) {
	return ChildRecord{}, fmt.Errorf("child %s: %w", id, ErrNotFound)
}

func (f *fakeIndex) ListByParent(_ context.Context, parentID string) ([]ChildRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]ChildRecord(nil), f.byParent[parentID]...), nil
}

func (f *fakeIndex) Init(context.Context) error { return nil }
func (f *fakeIndex) Close() error               { return nil }

// hit builds a scored child of parent pid at index j.
func hit(pid string, j int, score float32, text string) ScoredChild {
	return ScoredChild{
		Child: ChildRecord{ID: ChildID(pid, j), ParentID: pid, ChildIndex: j, Text: text, ContentType: ContentText},
		Score: score,
	}
}

var (
	_ ParentStore       = (*memParents)(nil)
	_ ChildIndex        = (*fakeIndex)(nil)
	_ EmbeddingProvider = (*stubEmbedding)(nil)
)
