package ingest

import (
	"fmt"
	"os"
	"path/filepath"
)

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithExtractor registers an Extractor for a format, replacing the built-in one.
func WithExtractor(mt MIMEType, e Extractor) ReaderOption {
	return func(r *Reader) { r.extractors[mt] = e }
}

// Reader turns files into Documents using a per-format Extractor.
type Reader struct {
	extractors map[MIMEType]Extractor
}

// NewReader creates a Reader with extractors for plain text, Markdown,
// HTML, CSV, PDF, JSON and DOCX.
func NewReader(opts ...ReaderOption) *Reader {
	r := &Reader{extractors: map[MIMEType]Extractor{
		TypePlainText: PlainTextExtractor{},
		TypeMarkdown:  NewMarkdownExtractor(),
		TypeHTML:      NewHTMLExtractor(),
		TypeCSV:       NewCSVExtractor(),
		TypePDF:       NewPDFExtractor(),
		TypeJSON:      NewJSONExtractor(),
		TypeDOCX:      NewDOCXExtractor(),
	}}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ReadFile reads the file at path. The source id is the file's base name.
func (r *Reader) ReadFile(path string) (Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := r.Read(filepath.Base(path), content)
	if err != nil {
		return Document{}, err
	}
	doc.Metadata["path"] = path
	return doc, nil
}

// Read extracts content named name, detecting the format from its extension.
func (r *Reader) Read(name string, content []byte) (Document, error) {
	mt := MIMETypeFromExtension(filepath.Ext(name))
	ex, ok := r.extractors[mt]
	if !ok {
		ex = PlainTextExtractor{}
	}

	meta := map[string]any{
		"file_name": name,
		"mime_type": string(mt),
		"size":      len(content),
	}
	var text string
	if me, ok := ex.(MetadataExtractor); ok {
		res, err := me.ExtractWithMeta(content)
		if err != nil {
			return Document{}, fmt.Errorf("extract %s: %w", mt, err)
		}
		for k, v := range res.Meta {
			meta[k] = v
		}
		text = res.Text
	} else {
		t, err := ex.Extract(content)
		if err != nil {
			return Document{}, fmt.Errorf("extract %s: %w", mt, err)
		}
		text = t
	}
	return Document{SourceID: name, Text: text, Metadata: meta}, nil
}

// ReadFile reads path with the default Reader.
func ReadFile(path string) (Document, error) {
	return NewReader().ReadFile(path)
}
