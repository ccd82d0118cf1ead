package ingest

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var _ Extractor = (*MarkdownExtractor)(nil)

// MarkdownExtractor parses Markdown (with GFM tables) and writes each block
// as a paragraph with formatting removed. Tables are kept as pipe rows.
type MarkdownExtractor struct {
	md goldmark.Markdown
}

// NewMarkdownExtractor creates a Markdown extractor.
func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{md: goldmark.New(goldmark.WithExtensions(extension.Table))}
}

// Extract returns the plain text of a Markdown document.
func (e *MarkdownExtractor) Extract(content []byte) (string, error) {
	src := trimBOM(content)
	doc := e.md.Parser().Parse(text.NewReader(src))
	var blocks []string
	markdownBlocks(doc, src, &blocks)
	return strings.Join(blocks, "\n\n"), nil
}

func markdownBlocks(n ast.Node, src []byte, out *[]string) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Heading, *ast.Paragraph, *ast.TextBlock:
			if t := strings.TrimSpace(inlineText(c, src)); t != "" {
				*out = append(*out, t)
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if t := strings.TrimSpace(codeText(c, src)); t != "" {
				*out = append(*out, t)
			}
		case *extast.Table:
			if t := markdownTable(c, src); t != "" {
				*out = append(*out, t)
			}
		case *ast.ThematicBreak, *ast.HTMLBlock:
		default:
			markdownBlocks(c, src, out)
		}
	}
}

// inlineText flattens the inline content of n. Soft breaks become spaces and
// hard breaks newlines.
func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch c := c.(type) {
			case *ast.Text:
				b.Write(c.Segment.Value(src))
				if c.HardLineBreak() {
					b.WriteByte('\n')
				} else if c.SoftLineBreak() {
					b.WriteByte(' ')
				}
			case *ast.String:
				b.Write(c.Value)
			case *ast.AutoLink:
				b.Write(c.Label(src))
			case *ast.RawHTML:
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return b.String()
}

func codeText(n ast.Node, src []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return b.String()
}

func markdownTable(t *extast.Table, src []byte) string {
	var header []string
	var rows [][]string
	for c := t.FirstChild(); c != nil; c = c.NextSibling() {
		var cells []string
		for cell := c.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, strings.TrimSpace(inlineText(cell, src)))
		}
		switch c.(type) {
		case *extast.TableHeader:
			header = cells
		case *extast.TableRow:
			rows = append(rows, cells)
		}
	}
	if len(header) == 0 {
		return ""
	}
	return pipeTable(header, rows)
}
