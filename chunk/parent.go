package chunk

import (
	"strings"
	"unicode/utf8"

	"github.com/nevindra/strata"
)

// ParentSplitter groups paragraphs into chunks of at most max characters.
type ParentSplitter struct {
	sep    string
	sepLen int
	max    int
	norm   *Normalizer
}

// NewParentSplitter returns a splitter that cuts text on sep and packs the
// resulting paragraphs greedily into chunks of at most max characters.
func NewParentSplitter(sep string, max int, opts ...Option) (*ParentSplitter, error) {
	if sep == "" {
		return nil, &strata.ValidationError{Field: "parent separator", Reason: "must not be empty"}
	}
	if max <= 0 {
		return nil, &strata.ValidationError{Field: "parent chunk size", Reason: "must be positive"}
	}
	return &ParentSplitter{
		sep:    sep,
		sepLen: utf8.RuneCountInString(sep),
		max:    max,
		norm:   NewNormalizer(opts...),
	}, nil
}

// Separator returns the paragraph separator.
func (s *ParentSplitter) Separator() string { return s.sep }

// Split returns the parent chunks of text in order. Each paragraph is
// normalized and empty paragraphs are dropped. A paragraph longer than the
// limit flushes the pending chunk and is cut into limit-sized pieces; the
// last, shorter piece keeps accumulating with the paragraphs that follow.
func (s *ParentSplitter) Split(text string) []string {
	var (
		chunks  []string
		cur     strings.Builder
		curLen  int
		started bool
	)
	flush := func() {
		if started {
			chunks = append(chunks, cur.String())
		}
		cur.Reset()
		curLen = 0
		started = false
	}
	start := func(p string, n int) {
		cur.WriteString(p)
		curLen = n
		started = true
	}

	for _, raw := range strings.Split(text, s.sep) {
		p := s.norm.Normalize(raw)
		if p == "" {
			continue
		}
		n := utf8.RuneCountInString(p)

		if n > s.max {
			flush()
			pieces := splitRunes(p, s.max)
			chunks = append(chunks, pieces[:len(pieces)-1]...)
			last := pieces[len(pieces)-1]
			start(last, utf8.RuneCountInString(last))
			continue
		}

		if !started {
			start(p, n)
			continue
		}
		if curLen+s.sepLen+n <= s.max {
			cur.WriteString(s.sep)
			cur.WriteString(p)
			curLen += s.sepLen + n
			continue
		}
		flush()
		start(p, n)
	}
	flush()
	return chunks
}

// splitRunes cuts s into consecutive pieces of max characters; the last
// piece may be shorter. s must be non-empty and max positive.
func splitRunes(s string, max int) []string {
	var pieces []string
	count := 0
	begin := 0
	for i := range s {
		if count == max {
			pieces = append(pieces, s[begin:i])
			begin = i
			count = 0
		}
		count++
	}
	return append(pieces, s[begin:])
}
