package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Compile-time interface checks.
var _ Extractor = (*DOCXExtractor)(nil)
var _ MetadataExtractor = (*DOCXExtractor)(nil)

// maxZipEntrySize limits decompressed size of individual zip entries
// to prevent zip bomb attacks (100 MB).
const maxZipEntrySize = 100 << 20

// DOCXExtractor implements Extractor and MetadataExtractor for DOCX documents.
// It streams OOXML tokens: paragraphs become blank-line separated blocks and
// tables become pipe tables whose first row is the header.
type DOCXExtractor struct{}

// NewDOCXExtractor creates a DOCX extractor.
func NewDOCXExtractor() *DOCXExtractor { return &DOCXExtractor{} }

// Extract extracts text from a DOCX document.
func (e *DOCXExtractor) Extract(content []byte) (string, error) {
	res, err := e.ExtractWithMeta(content)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// ExtractWithMeta extracts text plus the first heading ("title") and the
// number of tables ("tables").
func (e *DOCXExtractor) ExtractWithMeta(content []byte) (ExtractResult, error) {
	if len(content) == 0 {
		return ExtractResult{}, fmt.Errorf("empty docx content")
	}
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return ExtractResult{}, fmt.Errorf("open zip: %w", err)
	}
	docData, err := docxFindAndRead(zr)
	if err != nil {
		return ExtractResult{}, err
	}
	return docxParseDocument(docData)
}

// docxFindAndRead locates and reads word/document.xml from a zip reader.
func docxFindAndRead(zr *zip.Reader) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			data, err := docxReadZipFile(f)
			if err != nil {
				return nil, fmt.Errorf("read document.xml: %w", err)
			}
			return data, nil
		}
	}
	return nil, fmt.Errorf("missing word/document.xml")
}

func docxReadZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	lr := io.LimitReader(rc, maxZipEntrySize+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if len(data) > maxZipEntrySize {
		return nil, fmt.Errorf("zip entry %s exceeds %d byte limit", f.Name, maxZipEntrySize)
	}
	return data, nil
}

// docxParseState tracks the streaming XML decoder state.
type docxParseState struct {
	blocks []string
	title  string
	tables int

	inRun          bool
	currentStyle   string
	paragraphTexts []string

	// tableDepth > 1 means a table nested in a cell; its text joins the cell.
	tableDepth  int
	rows        [][]string
	cellTexts   []string
	currentCell strings.Builder
}

func docxParseDocument(data []byte) (ExtractResult, error) {
	s := &docxParseState{}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ExtractResult{}, fmt.Errorf("parse xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			s.handleStart(t)
		case xml.EndElement:
			s.handleEnd(t)
		case xml.CharData:
			s.handleCharData(t)
		}
	}

	meta := map[string]any{"tables": s.tables}
	if s.title != "" {
		meta["title"] = s.title
	}
	return ExtractResult{Text: strings.Join(s.blocks, "\n\n"), Meta: meta}, nil
}

func (s *docxParseState) handleStart(t xml.StartElement) {
	switch t.Name.Local {
	case "p":
		if s.tableDepth == 0 {
			s.currentStyle = ""
			s.paragraphTexts = nil
		}
	case "pStyle":
		for _, attr := range t.Attr {
			if attr.Name.Local == "val" {
				s.currentStyle = attr.Value
			}
		}
	case "r":
		s.inRun = true
	case "tab":
		if s.inRun && s.tableDepth == 0 {
			s.paragraphTexts = append(s.paragraphTexts, " ")
		}
	case "tbl":
		s.tableDepth++
		if s.tableDepth == 1 {
			s.rows = nil
		}
	case "tr":
		if s.tableDepth == 1 {
			s.cellTexts = nil
		}
	case "tc":
		if s.tableDepth == 1 {
			s.currentCell.Reset()
		}
	}
}

func (s *docxParseState) handleEnd(t xml.EndElement) {
	switch t.Name.Local {
	case "r":
		s.inRun = false
	case "p":
		if s.tableDepth > 0 {
			s.currentCell.WriteByte(' ')
			return
		}
		s.endParagraph()
	case "tc":
		if s.tableDepth == 1 {
			s.cellTexts = append(s.cellTexts, strings.TrimSpace(s.currentCell.String()))
		}
	case "tr":
		if s.tableDepth == 1 && len(s.cellTexts) > 0 {
			s.rows = append(s.rows, s.cellTexts)
		}
	case "tbl":
		s.tableDepth--
		if s.tableDepth == 0 {
			s.endTable()
		}
	}
}

func (s *docxParseState) handleCharData(data xml.CharData) {
	if !s.inRun {
		return
	}
	if s.tableDepth > 0 {
		s.currentCell.Write(data)
		return
	}
	s.paragraphTexts = append(s.paragraphTexts, string(data))
}

// endTable writes the collected rows as one pipe table block. A table with
// only a header row carries no records and is written as a plain line.
func (s *docxParseState) endTable() {
	rows := s.rows
	s.rows = nil
	if len(rows) == 0 {
		return
	}
	s.tables++
	if len(rows) == 1 {
		s.blocks = append(s.blocks, strings.Join(nonEmptyStrings(rows[0]...), " "))
		return
	}
	s.blocks = append(s.blocks, pipeTable(rows[0], rows[1:]))
}

func (s *docxParseState) endParagraph() {
	text := strings.TrimSpace(strings.Join(s.paragraphTexts, ""))
	s.paragraphTexts = nil
	if text == "" {
		return
	}
	if s.title == "" && (strings.HasPrefix(s.currentStyle, "Heading") || s.currentStyle == "Title") {
		s.title = text
	}
	s.blocks = append(s.blocks, text)
}
