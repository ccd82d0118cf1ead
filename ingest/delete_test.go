package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/nevindra/strata"
)

func TestDeleteParentCascades(t *testing.T) {
	ctx := context.Background()
	ps, idx := newMemParents(), newMemIndex()
	p := testPipeline(t, ps, idx, &stubEmbedding{})

	res, err := p.IndexDocument(ctx, Document{SourceID: "s", Text: "one\ntwo\n\nthree"})
	if err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}
	pid := res.ParentIDs[0]
	if err := p.DeleteParent(ctx, pid); err != nil {
		t.Fatalf("DeleteParent() error = %v", err)
	}
	if _, err := ps.GetParent(ctx, pid); !errors.Is(err, strata.ErrNotFound) {
		t.Errorf("GetParent() after delete error = %v, want ErrNotFound", err)
	}
	if kids, _ := idx.ListByParent(ctx, pid); len(kids) != 0 {
		t.Errorf("children left after delete: %d", len(kids))
	}

	r := strata.NewRetriever(ps, idx, &stubEmbedding{})
	got, err := r.Query(ctx, "one", 5)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	for _, q := range got {
		if q.ParentID == pid {
			t.Errorf("deleted parent %s returned by Query", pid)
		}
	}

	if err := p.DeleteParent(ctx, pid); err != nil {
		t.Errorf("second DeleteParent() error = %v, want nil", err)
	}
}

func TestDeleteSource(t *testing.T) {
	ctx := context.Background()
	ps, idx := newMemParents(), newMemIndex()
	p := testPipeline(t, ps, idx, &stubEmbedding{})

	gone, err := p.IndexDocument(ctx, Document{SourceID: "gone.pdf", Text: "a\n\nb\n\nc"})
	if err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}
	kept, err := p.IndexDocument(ctx, Document{SourceID: "kept.pdf", Text: "d"})
	if err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}

	ids, err := p.DeleteSource(ctx, "gone.pdf")
	if err != nil {
		t.Fatalf("DeleteSource() error = %v", err)
	}
	if len(ids) != len(gone.ParentIDs) {
		t.Errorf("deleted %d parents, want %d", len(ids), len(gone.ParentIDs))
	}
	if ps.count() != 1 || idx.count() != kept.Children {
		t.Errorf("left %d parents / %d children, want 1 / %d", ps.count(), idx.count(), kept.Children)
	}

	ids, err = p.DeleteSource(ctx, "gone.pdf")
	if err != nil || len(ids) != 0 {
		t.Errorf("repeat DeleteSource() = %v, %v; want no ids", ids, err)
	}
	if _, err := p.DeleteSource(ctx, ""); err == nil {
		t.Error("DeleteSource(\"\") should fail")
	}
}
