package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Compile-time interface check.
var _ Extractor = (*JSONExtractor)(nil)

// JSONExtractor implements Extractor for JSON documents. An array of flat
// objects becomes a pipe table; anything else becomes "path: value" lines
// with object keys in sorted order, one blank-line separated block per
// top-level array element.
type JSONExtractor struct{}

// NewJSONExtractor creates a JSON extractor.
func NewJSONExtractor() *JSONExtractor { return &JSONExtractor{} }

// maxJSONDepth limits recursion in flatten to prevent stack overflow
// from deeply nested JSON input.
const maxJSONDepth = 100

// Extract converts JSON content to text.
func (e *JSONExtractor) Extract(content []byte) (string, error) {
	content = bytes.TrimSpace(trimBOM(content))
	if len(content) == 0 {
		return "", nil
	}
	var data any
	if err := json.Unmarshal(content, &data); err != nil {
		return "", fmt.Errorf("parse json: %w", err)
	}

	arr, ok := data.([]any)
	if !ok {
		var lines []string
		flatten("", data, &lines, 0)
		return strings.Join(lines, "\n"), nil
	}
	if header, rows, ok := flatRecords(arr); ok {
		return pipeTable(header, rows), nil
	}
	var blocks []string
	for _, item := range arr {
		var lines []string
		flatten("", item, &lines, 0)
		if len(lines) > 0 {
			blocks = append(blocks, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(blocks, "\n\n"), nil
}

// flatRecords reports whether arr is a non-empty list of objects whose values
// are all primitives, and returns them as a header (sorted key union) and rows.
func flatRecords(arr []any) ([]string, [][]string, bool) {
	if len(arr) == 0 {
		return nil, nil, false
	}
	keys := make(map[string]bool)
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok || len(obj) == 0 {
			return nil, nil, false
		}
		for k, v := range obj {
			switch v.(type) {
			case map[string]any, []any:
				return nil, nil, false
			}
			keys[k] = true
		}
	}
	header := make([]string, 0, len(keys))
	for k := range keys {
		header = append(header, k)
	}
	sort.Strings(header)

	rows := make([][]string, len(arr))
	for i, item := range arr {
		obj := item.(map[string]any)
		row := make([]string, len(header))
		for j, k := range header {
			if v, ok := obj[k]; ok && v != nil {
				row[j] = formatJSONValue(v)
			}
		}
		rows[i] = row
	}
	return header, rows, true
}

func flatten(prefix string, v any, lines *[]string, depth int) {
	if depth >= maxJSONDepth {
		*lines = append(*lines, fmt.Sprintf("%s: <truncated>", labelOr(prefix)))
		return
	}
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, val[k], lines, depth+1)
		}
	case []any:
		if allPrimitive(val) {
			strs := make([]string, 0, len(val))
			for _, item := range val {
				if item != nil {
					strs = append(strs, formatJSONValue(item))
				}
			}
			*lines = append(*lines, fmt.Sprintf("%s: %s", labelOr(prefix), strings.Join(strs, ", ")))
		} else {
			for _, item := range val {
				flatten(prefix, item, lines, depth+1)
			}
		}
	case nil:
		// skip null values
	default:
		*lines = append(*lines, fmt.Sprintf("%s: %s", labelOr(prefix), formatJSONValue(val)))
	}
}

func labelOr(prefix string) string {
	if prefix == "" {
		return "value"
	}
	return prefix
}

func allPrimitive(arr []any) bool {
	for _, v := range arr {
		switch v.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

// formatJSONValue formats a primitive JSON value as a string.
func formatJSONValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", val)
	}
}
