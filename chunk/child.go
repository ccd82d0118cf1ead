package chunk

import (
	"strings"
	"unicode/utf8"

	"github.com/nevindra/strata"
)

// ChildChunk is one child-level piece of a parent.
type ChildChunk struct {
	Text        string
	ContentType strata.ContentType
	// Title and Rows describe table chunks; both are empty for text.
	Title string
	Rows  int
}

// ChildSplitter splits a parent into lines and detects tables among them.
type ChildSplitter struct {
	sep    string
	max    int
	norm   *Normalizer
	locale *tableLocale
}

// NewChildSplitter returns a splitter that cuts a parent on sep and bounds
// text chunks at max characters. Table chunks are exempt from the bound.
func NewChildSplitter(sep string, max int, opts ...Option) (*ChildSplitter, error) {
	if sep == "" {
		return nil, &strata.ValidationError{Field: "child separator", Reason: "must not be empty"}
	}
	if max <= 0 {
		return nil, &strata.ValidationError{Field: "child chunk size", Reason: "must be positive"}
	}
	o := buildOptions(opts)
	loc, err := lookupLocale(o.locale)
	if err != nil {
		return nil, &strata.ValidationError{Field: "table locale", Reason: err.Error()}
	}
	return &ChildSplitter{
		sep:    sep,
		max:    max,
		norm:   &Normalizer{nfkc: o.nfkc},
		locale: loc,
	}, nil
}

// Split returns the child chunks of a parent in order. Every table run
// becomes exactly one table chunk; every other non-empty line becomes a text
// chunk, force-split when longer than the limit.
func (s *ChildSplitter) Split(text string) []ChildChunk {
	var lines []string
	for _, raw := range strings.Split(text, s.sep) {
		for _, line := range strings.Split(s.norm.Normalize(raw), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
	}

	var out []ChildChunk
	for i := 0; i < len(lines); {
		if tb, ok := detectTable(lines, i); ok {
			title := findTitle(lines, i)
			out = append(out, ChildChunk{
				Text:        s.locale.render(title, tb),
				ContentType: strata.ContentTable,
				Title:       title,
				Rows:        len(tb.rows),
			})
			i = tb.end
			continue
		}
		line := lines[i]
		if utf8.RuneCountInString(line) > s.max {
			for _, piece := range splitRunes(line, s.max) {
				out = append(out, ChildChunk{Text: piece, ContentType: strata.ContentText})
			}
		} else {
			out = append(out, ChildChunk{Text: line, ContentType: strata.ContentText})
		}
		i++
	}
	return out
}

// ContentTypeOf summarizes the chunks of one parent: table when all are
// tables, mixed when tables and text both occur, text otherwise.
func ContentTypeOf(chunks []ChildChunk) strata.ContentType {
	var tables int
	for _, c := range chunks {
		if c.ContentType == strata.ContentTable {
			tables++
		}
	}
	switch {
	case tables == 0:
		return strata.ContentText
	case tables == len(chunks):
		return strata.ContentTable
	default:
		return strata.ContentMixed
	}
}
