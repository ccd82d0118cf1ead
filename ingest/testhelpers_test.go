package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nevindra/strata"
)

// stubEmbedding returns one fixed vector per text.
type stubEmbedding struct {
	mu     sync.Mutex
	calls  int
	err    error
	onCall func(n int)
}

func (s *stubEmbedding) Name() string    { return "stub" }
func (s *stubEmbedding) Dimensions() int { return 2 }
func (s *stubEmbedding) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.calls++
	n, err, hook := s.calls, s.err, s.onCall
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	if err != nil {
		return nil, err
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
	records map[string]strata.ParentRecord
	order   []string
}

func newMemParents() *memParents { return &memParents{records: map[string]strata.ParentRecord{}} }

func (m *memParents) UpsertParent(_ context.Context, p strata.ParentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[p.ID]; !ok {
		m.order = append(m.order, p.ID)
	}
	m.records[p.ID] = p
	return nil
}

func (m *memParents) GetParent(_ context.Context, id string) (strata.ParentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.records[id]
	if !ok {
		return strata.ParentRecord{}, fmt.Errorf("parent %s: %w", id, strata.ErrNotFound)
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

func (m *memParents) ListParents(_ context.Context, f strata.ParentFilter, limit, offset int) ([]strata.ParentRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []strata.ParentRecord
	for _, id := range m.order {
		p, ok := m.records[id]
		if !ok || (f.SourceID != "" && p.SourceID != f.SourceID) {
			continue
		}
		if !f.MatchesText(p.Text) {
			continue
		}
		out = append(out, p)
	}
	total := len(out)
	out = out[min(offset, len(out)):]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *memParents) AggregateBySource(context.Context) ([]strata.SourceSummary, error) {
	return nil, nil
}

func (m *memParents) ListSources(context.Context, strata.SourceQuery) ([]strata.SourceSummary, int, error) {
	return nil, 0, nil
}

func (m *memParents) Init(context.Context) error { return nil }
func (m *memParents) Close() error               { return nil }

func (m *memParents) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// memIndex is an in-memory ChildIndex that can fail a number of AddBatch calls.
type memIndex struct {
	mu          sync.Mutex
	records     map[string]strata.ChildRecord
	batches     []int
	failures    int
	failErr     error
	delay       time.Duration
	inFlight    int
	maxInFlight int
}

func newMemIndex() *memIndex { return &memIndex{records: map[string]strata.ChildRecord{}} }

func (m *memIndex) AddBatch(ctx context.Context, recs []strata.ChildRecord) error {
	m.mu.Lock()
	m.inFlight++
	m.maxInFlight = max(m.maxInFlight, m.inFlight)
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return m.failErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, r := range recs {
		m.records[r.ID] = r
	}
	m.batches = append(m.batches, len(recs))
	return nil
}

func (m *memIndex) SimilaritySearch(_ context.Context, q []float32, k int) ([]strata.ScoredChild, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []strata.ScoredChild
	for _, r := range m.records {
		var dot float32
		for i := range q {
			if i < len(r.Embedding) {
				dot += q[i] * r.Embedding[i]
			}
		}
		out = append(out, strata.ScoredChild{Child: r, Score: dot})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Child.ID < out[j].Child.ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *memIndex) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.records, id)
	}
	return nil
}

func (m *memIndex) DeleteByParent(_ context.Context, parentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.records {
		if r.ParentID == parentID {
			delete(m.records, id)
		}
	}
	return nil
}

func (m *memIndex) GetChild(_ context.Context, id string) (strata.ChildRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return strata.ChildRecord{}, fmt.Errorf("child %s: %w", id, strata.ErrNotFound)
	}
	return r, nil
}

func (m *memIndex) ListByParent(_ context.Context, parentID string) ([]strata.ChildRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []strata.ChildRecord
	for _, r := range m.records {
		if r.ParentID == parentID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChildIndex < out[j].ChildIndex })
	return out, nil
}

func (m *memIndex) Init(context.Context) error { return nil }
func (m *memIndex) Close() error               { return nil }

func (m *memIndex) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

var (
	_ strata.ParentStore       = (*memParents)(nil)
	_ strata.ChildIndex        = (*memIndex)(nil)
	_ strata.EmbeddingProvider = (*stubEmbedding)(nil)
)
