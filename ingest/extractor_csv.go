package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var _ Extractor = (*CSVExtractor)(nil)

// csvRowsPerBlock bounds the rows written under one repeated header, so a
// large sheet becomes several tables that each fit a parent chunk.
const csvRowsPerBlock = 20

// CSVExtractor turns a CSV file into pipe tables. The first record is the
// header and is repeated above every block of rows.
type CSVExtractor struct{}

// NewCSVExtractor creates a CSV extractor.
func NewCSVExtractor() *CSVExtractor { return &CSVExtractor{} }

// Extract converts CSV content to pipe tables separated by blank lines.
func (e *CSVExtractor) Extract(content []byte) (string, error) {
	content = trimBOM(content)
	if len(bytes.TrimSpace(content)) == 0 {
		return "", nil
	}
	r := csv.NewReader(bytes.NewReader(content))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", fmt.Errorf("read headers: %w", err)
	}

	var blocks []string
	var rows [][]string
	flush := func() {
		if len(rows) > 0 {
			blocks = append(blocks, pipeTable(header, rows))
			rows = nil
		}
	}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read row: %w", err)
		}
		if strings.TrimSpace(strings.Join(record, "")) == "" {
			continue
		}
		rows = append(rows, record)
		if len(rows) == csvRowsPerBlock {
			flush()
		}
	}
	flush()
	return strings.Join(blocks, "\n\n"), nil
}
