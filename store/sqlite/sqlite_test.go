package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nevindra/strata"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "test.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func parent(id, source string, ordinal int, text string) strata.ParentRecord {
	return strata.ParentRecord{
		ID:          id,
		Text:        text,
		SourceID:    source,
		ContentType: strata.ContentText,
		Ordinal:     ordinal,
		Metadata:    strata.Metadata{"lang": strata.String("en")},
	}
}

func TestInitIdempotent(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "init.db"))
	defer s.Close()
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}

func TestUpsertAndGetParent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	p := parent("p1", "handbook.md", 0, "Hello world")
	p.CreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.UpsertParent(ctx, p); err != nil {
		t.Fatalf("UpsertParent: %v", err)
	}

	got, err := s.GetParent(ctx, "p1")
	if err != nil {
		t.Fatalf("GetParent: %v", err)
	}
	if got.Text != "Hello world" || got.SourceID != "handbook.md" || got.ContentType != strata.ContentText {
		t.Errorf("got %+v", got)
	}
	if !got.CreatedAt.Equal(p.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, p.CreatedAt)
	}
	if got.Metadata.GetString("lang") != "en" {
		t.Errorf("metadata lang = %q, want en", got.Metadata.GetString("lang"))
	}
}

func TestUpsertKeepsCreatedAt(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first := parent("p1", "a.md", 0, "v1")
	first.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.UpsertParent(ctx, first); err != nil {
		t.Fatalf("UpsertParent: %v", err)
	}
	second := parent("p1", "a.md", 0, "v2")
	second.CreatedAt = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	second.ContentType = strata.ContentTable
	if err := s.UpsertParent(ctx, second); err != nil {
		t.Fatalf("UpsertParent: %v", err)
	}

	got, err := s.GetParent(ctx, "p1")
	if err != nil {
		t.Fatalf("GetParent: %v", err)
	}
	if got.Text != "v2" || got.ContentType != strata.ContentTable {
		t.Errorf("overwrite not applied: %+v", got)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt = %v, want original %v", got.CreatedAt, first.CreatedAt)
	}
}

func TestUpsertStampsCreatedAt(t *testing.T) {
	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	s := New(filepath.Join(t.TempDir(), "clock.db"), WithClock(func() time.Time { return now }))
	defer s.Close()
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := s.UpsertParent(ctx, parent("p1", "a", 0, "x")); err != nil {
		t.Fatalf("UpsertParent: %v", err)
	}
	got, _ := s.GetParent(ctx, "p1")
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}
}

func TestGetParentNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetParent(context.Background(), "missing")
	if !errors.Is(err, strata.ErrNotFound) {
		t.Fatalf("GetParent() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteParentIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	s.UpsertParent(ctx, parent("p1", "a", 0, "x"))

	for i := 0; i < 2; i++ {
		if err := s.DeleteParent(ctx, "p1"); err != nil {
			t.Fatalf("DeleteParent #%d: %v", i+1, err)
		}
	}
	if _, err := s.GetParent(ctx, "p1"); !errors.Is(err, strata.ErrNotFound) {
		t.Errorf("GetParent after delete = %v, want ErrNotFound", err)
	}
}

func TestDeleteParentsBySource(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	s.UpsertParent(ctx, parent("a1", "a.md", 1, "x"))
	s.UpsertParent(ctx, parent("a0", "a.md", 0, "x"))
	s.UpsertParent(ctx, parent("b0", "b.md", 0, "x"))

	ids, err := s.DeleteParentsBySource(ctx, "a.md")
	if err != nil {
		t.Fatalf("DeleteParentsBySource: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a0" || ids[1] != "a1" {
		t.Errorf("ids = %v, want [a0 a1]", ids)
	}
	if _, err := s.GetParent(ctx, "b0"); err != nil {
		t.Errorf("other source touched: %v", err)
	}

	ids, err = s.DeleteParentsBySource(ctx, "a.md")
	if err != nil || len(ids) != 0 {
		t.Errorf("second delete = %v, %v; want empty", ids, err)
	}
}

func TestListParents(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		p := parent(fmt.Sprintf("p%d", i), "a.md", i, fmt.Sprintf("row %d", i))
		p.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		s.UpsertParent(ctx, p)
	}
	other := parent("q0", "b.md", 0, "50%_off sale")
	other.CreatedAt = base
	s.UpsertParent(ctx, other)

	got, total, err := s.ListParents(ctx, strata.ParentFilter{SourceID: "a.md"}, 2, 1)
	if err != nil {
		t.Fatalf("ListParents: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(got) != 2 || got[0].ID != "p3" || got[1].ID != "p2" {
		t.Errorf("page = %v, want [p3 p2]", ids(got))
	}

	got, total, err = s.ListParents(ctx, strata.ParentFilter{TextContains: "%_"}, 0, 0)
	if err != nil {
		t.Fatalf("ListParents: %v", err)
	}
	if total != 1 || len(got) != 1 || got[0].ID != "q0" {
		t.Errorf("LIKE escaping: got %v (total %d), want [q0]", ids(got), total)
	}

	_, total, _ = s.ListParents(ctx, strata.ParentFilter{}, 0, 0)
	if total != 6 {
		t.Errorf("unfiltered total = %d, want 6", total)
	}
}

func TestAggregateAndListSources(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	add := func(id, src string, ct strata.ContentType, at time.Time) {
		p := parent(id, src, 0, "x")
		p.ContentType = ct
		p.CreatedAt = at
		if err := s.UpsertParent(ctx, p); err != nil {
			t.Fatalf("UpsertParent: %v", err)
		}
	}
	add("a0", "a.md", strata.ContentText, base)
	add("b0", "b.csv", strata.ContentTable, base)
	add("b1", "b.csv", strata.ContentTable, base.Add(time.Hour))
	add("b2", "b.csv", "", base)

	agg, err := s.AggregateBySource(ctx)
	if err != nil {
		t.Fatalf("AggregateBySource: %v", err)
	}
	if len(agg) != 2 || agg[0].SourceID != "b.csv" || agg[0].Count != 3 {
		t.Fatalf("aggregate = %+v", agg)
	}
	if agg[0].ContentTypes[strata.ContentTable] != 2 || agg[0].ContentTypes[strata.ContentUnknown] != 1 {
		t.Errorf("content types = %v", agg[0].ContentTypes)
	}
	if !agg[0].LatestAt.Equal(base.Add(time.Hour)) {
		t.Errorf("latest = %v", agg[0].LatestAt)
	}

	page, total, err := s.ListSources(ctx, strata.SourceQuery{SortBy: strata.SortByName, Limit: 1})
	if err != nil {
		t.Fatalf("ListSources: %v", err)
	}
	if total != 2 || len(page) != 1 || page[0].SourceID != "a.md" {
		t.Errorf("page = %+v total = %d", page, total)
	}

	if _, _, err := s.ListSources(ctx, strata.SourceQuery{SortBy: "size"}); err == nil {
		t.Error("ListSources with bad sort: want error")
	}
}

func TestConcurrentUpserts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.UpsertParent(ctx, parent(fmt.Sprintf("p%02d", i), "a.md", i, "x")); err != nil {
				errs <- err
				return
			}
			if _, err := s.GetParent(ctx, fmt.Sprintf("p%02d", i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent op: %v", err)
	}
	_, total, _ := s.ListParents(ctx, strata.ParentFilter{}, 0, 0)
	if total != 40 {
		t.Errorf("total = %d, want 40", total)
	}
}

func ids(ps []strata.ParentRecord) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}
