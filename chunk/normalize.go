package chunk

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalizer collapses whitespace and optionally applies NFKC.
type Normalizer struct {
	nfkc bool
}

// NewNormalizer returns a Normalizer. Only WithUnicodeNormalization affects it.
func NewNormalizer(opts ...Option) *Normalizer {
	o := buildOptions(opts)
	return &Normalizer{nfkc: o.nfkc}
}

// Normalize applies NFKC when enabled, then collapses whitespace like the
// package-level Normalize.
func (n *Normalizer) Normalize(text string) string {
	if n != nil && n.nfkc {
		text = norm.NFKC.String(text)
	}
	return Normalize(text)
}

// Normalize collapses runs of tabs and spaces to one space and runs of line
// breaks to one newline, then trims surrounding whitespace. Carriage returns
// count as line breaks. Normalize is idempotent.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	var prev byte
	for _, r := range text {
		switch r {
		case ' ', '\t':
			if prev != ' ' {
				b.WriteByte(' ')
			}
			prev = ' '
		case '\n', '\r':
			if prev != '\n' {
				b.WriteByte('\n')
			}
			prev = '\n'
		default:
			b.WriteRune(r)
			prev = 0
		}
	}
	return strings.TrimSpace(b.String())
}
