package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/strata"
)

// testPool connects to STRATA_TEST_POSTGRES_DSN, skipping when unset. Every
// test gets its own collection and source ids so runs do not interfere.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("STRATA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STRATA_TEST_POSTGRES_DSN not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestSerializeEmbedding(t *testing.T) {
	got := serializeEmbedding([]float32{0.5, -1, 2.25})
	if got != "[0.5,-1,2.25]" {
		t.Errorf("serializeEmbedding = %q", got)
	}
	if got := serializeEmbedding(nil); got != "[]" {
		t.Errorf("empty = %q", got)
	}
}

func TestBuildParentFilter(t *testing.T) {
	where, args := buildParentFilter(strata.ParentFilter{SourceID: "a.md", TextContains: "50%"})
	want := " WHERE source_id = $1 AND translate(text, 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz')" +
		" LIKE translate($2, 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz')"
	if where != want {
		t.Errorf("where = %q", where)
	}
	if len(args) != 2 || args[1] != `%50\%%` {
		t.Errorf("args = %v", args)
	}
	if where, args := buildParentFilter(strata.ParentFilter{}); where != "" || args != nil {
		t.Errorf("empty filter = %q %v", where, args)
	}
}

func TestHNSWWithClause(t *testing.T) {
	c := NewChildIndex(nil, WithHNSWM(32), WithEFConstruction(128))
	if got := c.hnswWithClause(); got != " WITH (m = 32, ef_construction = 128)" {
		t.Errorf("hnswWithClause = %q", got)
	}
	if got := NewChildIndex(nil).hnswWithClause(); got != "" {
		t.Errorf("default clause = %q", got)
	}
	if got := NewChildIndex(nil, WithEmbeddingDimension(768)).vectorType(); got != "vector(768)" {
		t.Errorf("vectorType = %q", got)
	}
	if got := NewChildIndex(nil, WithCollection("")).Collection(); got != DefaultCollection {
		t.Errorf("collection = %q", got)
	}
}

func TestParentStoreRoundTrip(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	s := New(pool)
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	src := "pg-test-" + strata.NewID()
	t.Cleanup(func() { s.DeleteParentsBySource(context.Background(), src) })

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := strata.ParentRecord{ID: strata.NewID(), Text: "v1", SourceID: src, ContentType: strata.ContentText, CreatedAt: created}
	if err := s.UpsertParent(ctx, p); err != nil {
		t.Fatalf("UpsertParent: %v", err)
	}
	p.Text = "v2"
	p.CreatedAt = created.Add(time.Hour)
	if err := s.UpsertParent(ctx, p); err != nil {
		t.Fatalf("UpsertParent: %v", err)
	}
	got, err := s.GetParent(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetParent: %v", err)
	}
	if got.Text != "v2" || !got.CreatedAt.Equal(created) {
		t.Errorf("got %+v", got)
	}

	ids, err := s.DeleteParentsBySource(ctx, src)
	if err != nil || len(ids) != 1 || ids[0] != p.ID {
		t.Fatalf("DeleteParentsBySource = %v, %v", ids, err)
	}
	if _, err := s.GetParent(ctx, p.ID); !errors.Is(err, strata.ErrNotFound) {
		t.Errorf("GetParent after delete = %v, want ErrNotFound", err)
	}
}

func TestListParentsTextFilterFoldsASCII(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	s := New(pool)
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	src := "pg-test-" + strata.NewID()
	t.Cleanup(func() { s.DeleteParentsBySource(context.Background(), src) })

	for _, text := range []string{"Sensory REQUIREMENTS", "sensory requirements for tea", "ÄPFEL und Birnen"} {
		p := strata.ParentRecord{ID: strata.NewID(), Text: text, SourceID: src, ContentType: strata.ContentText}
		if err := s.UpsertParent(ctx, p); err != nil {
			t.Fatalf("UpsertParent: %v", err)
		}
	}
	tests := []struct {
		needle string
		want   int
	}{
		{"requirements", 2},
		{"  SENSORY ", 2},
		{"äpfel", 0},
		{"ÄPFEL", 1},
		{"%", 0},
	}
	for _, tt := range tests {
		_, total, err := s.ListParents(ctx, strata.ParentFilter{SourceID: src, TextContains: tt.needle}, 0, 0)
		if err != nil {
			t.Fatalf("ListParents: %v", err)
		}
		if total != tt.want {
			t.Errorf("TextContains %q: total = %d, want %d", tt.needle, total, tt.want)
		}
	}
}

func TestChildIndexRoundTrip(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	c := NewChildIndex(pool, WithCollection("test-"+strata.NewID()), WithEmbeddingDimension(3))
	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { c.DeleteByParent(context.Background(), "p1") })

	recs := []strata.ChildRecord{
		{ID: "p1:0", ParentID: "p1", ChildIndex: 0, Text: "x", Embedding: []float32{1, 0, 0}},
		{ID: "p1:1", ParentID: "p1", ChildIndex: 1, Text: "y", Embedding: []float32{0, 1, 0}},
	}
	for i := 0; i < 2; i++ {
		if err := c.AddBatch(ctx, recs); err != nil {
			t.Fatalf("AddBatch: %v", err)
		}
	}
	hits, err := c.SimilaritySearch(ctx, []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("SimilaritySearch: %v", err)
	}
	if len(hits) != 2 || hits[0].Child.ID != "p1:0" {
		t.Errorf("hits = %+v", hits)
	}
	kids, err := c.ListByParent(ctx, "p1")
	if err != nil || len(kids) != 2 || kids[0].ChildIndex != 0 {
		t.Errorf("ListByParent = %+v, %v", kids, err)
	}
}
