package ingest

import (
	"bytes"
	"strings"
)

// Extractor converts raw file content to text. Paragraphs are separated by
// blank lines and tables are written as pipe-delimited rows, the layout the
// chunk splitters expect.
type Extractor interface {
	Extract(content []byte) (string, error)
}

// ExtractResult holds extracted text and document-level metadata.
type ExtractResult struct {
	Text string
	Meta map[string]any
}

// MetadataExtractor is an optional capability for extractors that also
// report metadata such as a title or page count. The reader prefers
// ExtractWithMeta when an Extractor implements it.
type MetadataExtractor interface {
	ExtractWithMeta(content []byte) (ExtractResult, error)
}

// MIMEType identifies the format of a file for extraction.
type MIMEType string

const (
	TypePlainText MIMEType = "text/plain"
	TypeHTML      MIMEType = "text/html"
	TypeMarkdown  MIMEType = "text/markdown"
	TypeCSV       MIMEType = "text/csv"
	TypePDF       MIMEType = "application/pdf"
	TypeJSON      MIMEType = "application/json"
	TypeDOCX      MIMEType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// MIMETypeFromExtension maps file extensions (without the dot) to formats.
// Unknown extensions are read as plain text.
func MIMETypeFromExtension(ext string) MIMEType {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "md", "markdown":
		return TypeMarkdown
	case "html", "htm":
		return TypeHTML
	case "csv":
		return TypeCSV
	case "pdf":
		return TypePDF
	case "json":
		return TypeJSON
	case "docx":
		return TypeDOCX
	default:
		return TypePlainText
	}
}

// indexable lists the extensions directory walks pick up.
var indexable = map[string]bool{
	"txt": true, "text": true, "md": true, "markdown": true,
	"html": true, "htm": true, "csv": true, "pdf": true,
	"json": true, "docx": true,
}

// IsIndexable reports whether files with extension ext have a built-in extractor.
func IsIndexable(ext string) bool {
	return indexable[strings.ToLower(strings.TrimPrefix(ext, "."))]
}

// PlainTextExtractor returns content as-is, minus a UTF-8 byte order mark.
type PlainTextExtractor struct{}

func (PlainTextExtractor) Extract(content []byte) (string, error) {
	return string(trimBOM(content)), nil
}

func trimBOM(b []byte) []byte {
	return bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
}

// pipeTable writes header and rows as a pipe table with an alignment line.
// Pipes inside cells are replaced so they cannot split a cell, and every row
// is fitted to the header's width.
func pipeTable(header []string, rows [][]string) string {
	var b strings.Builder
	writePipeRow(&b, header)
	b.WriteString("\n|")
	for range header {
		b.WriteString(" --- |")
	}
	for _, r := range rows {
		b.WriteByte('\n')
		writePipeRow(&b, fitRow(r, len(header)))
	}
	return b.String()
}

// fitRow pads a short row with empty cells and folds the overflow of a long
// row into its last cell.
func fitRow(r []string, width int) []string {
	if len(r) == width || width == 0 {
		return r
	}
	out := make([]string, width)
	copy(out, r)
	if len(r) > width {
		out[width-1] = strings.Join(r[width-1:], " ")
	}
	return out
}

func writePipeRow(b *strings.Builder, cells []string) {
	b.WriteByte('|')
	for _, c := range cells {
		b.WriteByte(' ')
		b.WriteString(strings.ReplaceAll(strings.Join(strings.Fields(c), " "), "|", "/"))
		b.WriteString(" |")
	}
}
