package chunk

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/nevindra/strata"
)

func testParentSplitter(t *testing.T, sep string, max int) *ParentSplitter {
	t.Helper()
	s, err := NewParentSplitter(sep, max)
	if err != nil {
		t.Fatalf("NewParentSplitter() error = %v", err)
	}
	return s
}

func TestParentSplitterScenario(t *testing.T) {
	s := testParentSplitter(t, "\n\n", 1024)
	got := s.Split("A1 paragraph.\n\nA2 paragraph.")
	if len(got) != 1 || got[0] != "A1 paragraph.\n\nA2 paragraph." {
		t.Fatalf("Split() = %q, want one chunk with both paragraphs", got)
	}
}

func TestParentSplitterFlushesAtLimit(t *testing.T) {
	s := testParentSplitter(t, "\n\n", 10)
	got := s.Split("aaaa\n\nbbbb\n\ncccc")
	want := []string{"aaaa\n\nbbbb", "cccc"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Split() = %q, want %q", got, want)
	}
}

func TestParentSplitterForcedSplit(t *testing.T) {
	s := testParentSplitter(t, "\n", 6)
	got := s.Split("ab\n0123456789\nc")
	want := []string{"ab", "012345", "6789\nc"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Split() = %q, want %q", got, want)
	}
}

func TestParentSplitterRuneLengths(t *testing.T) {
	s := testParentSplitter(t, "\n\n", 3)
	got := s.Split("食品安全国家标准")
	want := []string{"食品安", "全国家", "标准"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Split() = %q, want %q", got, want)
	}
	for _, c := range got {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %q is not valid UTF-8", c)
		}
	}
}

func TestParentSplitterDropsEmptyParagraphs(t *testing.T) {
	s := testParentSplitter(t, "\n\n", 100)
	got := s.Split("\n\n  \n\n\t\n\nx\n\n\n\n")
	if len(got) != 1 || got[0] != "x" {
		t.Errorf("Split() = %q, want [x]", got)
	}
	if got := s.Split(""); len(got) != 0 {
		t.Errorf("Split(\"\") = %q, want none", got)
	}
}

func TestParentSplitterProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	words := []string{"alpha", "beta", "表格", "检验方法", "x", "  ", "\t", "\n", "\n\n", "ω"}
	for i := 0; i < 300; i++ {
		var b strings.Builder
		for j := 0; j < rng.Intn(200); j++ {
			b.WriteString(words[rng.Intn(len(words))])
			if rng.Intn(3) == 0 {
				b.WriteByte(' ')
			}
		}
		text := b.String()
		max := 1 + rng.Intn(40)
		s := testParentSplitter(t, "\n\n", max)
		chunks := s.Split(text)

		for _, c := range chunks {
			if n := utf8.RuneCountInString(c); n > max {
				t.Fatalf("chunk %q has %d runes, limit %d", c, n, max)
			}
			if c == "" {
				t.Fatalf("empty chunk for input %q", text)
			}
		}
		if got, want := stripSpace(strings.Join(chunks, "\n\n")), stripSpace(Normalize(text)); got != want {
			t.Fatalf("content changed for %q:\n got %q\nwant %q", text, got, want)
		}
	}
}

func TestParentSplitterValidation(t *testing.T) {
	tests := []struct {
		name string
		sep  string
		max  int
	}{
		{"empty separator", "", 10},
		{"zero size", "\n\n", 0},
		{"negative size", "\n\n", -5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParentSplitter(tt.sep, tt.max)
			var ve *strata.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("NewParentSplitter() error = %v, want *ValidationError", err)
			}
		})
	}
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
