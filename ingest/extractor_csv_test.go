package ingest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/nevindra/strata"
	"github.com/nevindra/strata/chunk"
)

func TestCSVExtractor(t *testing.T) {
	out, err := NewCSVExtractor().Extract([]byte("\xef\xbb\xbfname,limit\nlead,0.5\n,\ntin,250\n"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := "| name | limit |\n| --- | --- |\n| lead | 0.5 |\n| tin | 250 |"
	if out != want {
		t.Errorf("Extract() = %q, want %q", out, want)
	}
}

func TestCSVExtractorBlocks(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,value\n")
	for i := 0; i < csvRowsPerBlock*2+1; i++ {
		fmt.Fprintf(&b, "%d,v%d\n", i, i)
	}
	out, err := NewCSVExtractor().Extract([]byte(b.String()))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	blocks := strings.Split(out, "\n\n")
	if len(blocks) != 3 {
		t.Fatalf("blocks = %d, want 3", len(blocks))
	}
	for _, blk := range blocks {
		if !strings.HasPrefix(blk, "| id | value |\n") {
			t.Errorf("block without header: %q", blk)
		}
	}
}

func TestCSVExtractorEmpty(t *testing.T) {
	for _, in := range []string{"", "   \n", "only,header\n"} {
		out, err := NewCSVExtractor().Extract([]byte(in))
		if err != nil || out != "" {
			t.Errorf("Extract(%q) = %q, %v; want empty", in, out, err)
		}
	}
}

func TestCSVBlocksSplitIntoSeparateTables(t *testing.T) {
	var b strings.Builder
	b.WriteString("k,v\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, "k%d,v%d\n", i, i)
	}
	b.WriteString("short,row,with,extra\nlast\n")
	text, err := NewCSVExtractor().Extract([]byte(b.String()))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	ps, err := chunk.NewParentSplitter("\n\n", 1024)
	if err != nil {
		t.Fatalf("NewParentSplitter() error = %v", err)
	}
	cs, err := chunk.NewChildSplitter("\n", 512)
	if err != nil {
		t.Fatalf("NewChildSplitter() error = %v", err)
	}
	parents := ps.Split(text)
	if len(parents) != 1 {
		t.Fatalf("parents = %d, want 1", len(parents))
	}

	var rows []int
	for _, c := range cs.Split(parents[0]) {
		if c.ContentType != strata.ContentTable {
			t.Fatalf("non-table child %q", c.Text)
		}
		if strings.Contains(c.Text, "k: k;") {
			t.Errorf("repeated header rendered as a record:\n%s", c.Text)
		}
		rows = append(rows, c.Rows)
	}
	if fmt.Sprint(rows) != "[20 7]" {
		t.Errorf("table rows = %v, want [20 7]", rows)
	}
}
