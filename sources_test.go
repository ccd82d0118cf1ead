package strata

import (
	"errors"
	"testing"
	"time"
)

func TestSourceAccumulator(t *testing.T) {
	t1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	a := NewSourceAccumulator()
	a.Add("b.md", ContentText, 2, t1)
	a.Add("a.md", ContentText, 1, t1)
	a.Add("a.md", "", 1, t2)
	a.Add("", ContentTable, 1, t1)

	got := a.Summaries()
	if len(got) != 3 {
		t.Fatalf("got %d summaries, want 3", len(got))
	}
	// a.md and b.md both have 2; ties break by id.
	if got[0].SourceID != "a.md" || got[1].SourceID != "b.md" || got[2].SourceID != "unknown" {
		t.Errorf("order = %s,%s,%s", got[0].SourceID, got[1].SourceID, got[2].SourceID)
	}
	if got[0].ContentTypes[ContentUnknown] != 1 || got[0].ContentTypes[ContentText] != 1 {
		t.Errorf("a.md content types = %v", got[0].ContentTypes)
	}
	if !got[0].LatestAt.Equal(t2) {
		t.Errorf("a.md latest = %v, want %v", got[0].LatestAt, t2)
	}
}

func TestPageSources(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	all := []SourceSummary{
		{SourceID: "Report.pdf", Count: 5, LatestAt: base},
		{SourceID: "notes.md", Count: 1, LatestAt: base.Add(2 * time.Hour)},
		{SourceID: "report-2.pdf", Count: 3, LatestAt: base.Add(time.Hour)},
	}

	tests := []struct {
		name  string
		q     SourceQuery
		want  []string
		total int
	}{
		{"default order", SourceQuery{}, []string{"Report.pdf", "report-2.pdf", "notes.md"}, 3},
		{"name asc", SourceQuery{SortBy: SortByName}, []string{"Report.pdf", "notes.md", "report-2.pdf"}, 3},
		{"updated desc", SourceQuery{SortBy: SortByUpdated, Desc: true}, []string{"notes.md", "report-2.pdf", "Report.pdf"}, 3},
		{"count asc", SourceQuery{SortBy: SortByCount}, []string{"notes.md", "report-2.pdf", "Report.pdf"}, 3},
		{"search is case-insensitive", SourceQuery{Search: "REPORT", SortBy: SortByName}, []string{"Report.pdf", "report-2.pdf"}, 2},
		{"paged", SourceQuery{SortBy: SortByName, Limit: 1, Offset: 1}, []string{"notes.md"}, 3},
		{"offset past end", SourceQuery{Offset: 10}, nil, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total := PageSources(all, tt.q)
			if total != tt.total {
				t.Errorf("total = %d, want %d", total, tt.total)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d items, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].SourceID != id {
					t.Errorf("item[%d] = %s, want %s", i, got[i].SourceID, id)
				}
			}
		})
	}
}

func TestSourceQueryValidate(t *testing.T) {
	if err := (SourceQuery{SortBy: SortByUpdated, Limit: 10}).Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	var ve *ValidationError
	if err := (SourceQuery{SortBy: "size"}).Validate(); !errors.As(err, &ve) {
		t.Errorf("bad sort: error = %v, want *ValidationError", err)
	}
	if err := (SourceQuery{Offset: -1}).Validate(); !errors.As(err, &ve) {
		t.Errorf("negative offset: error = %v, want *ValidationError", err)
	}
}
