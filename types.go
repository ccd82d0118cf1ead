package strata

import (
	"strings"
	"time"
)

// ContentType classifies chunk content.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentTable ContentType = "table"
	// ContentMixed marks a parent whose children include both text and tables.
	ContentMixed ContentType = "mixed"
	// ContentUnknown buckets records stored without a content type.
	ContentUnknown ContentType = "unknown"
)

// Metadata keys written by the indexing pipeline.
const (
	MetaSourceID    = "source_id"
	MetaParentID    = "parent_id"
	MetaChildIndex  = "child_index"
	MetaOrdinal     = "ordinal"
	MetaContentType = "content_type"
	MetaCreatedAt   = "created_at"
	MetaTableTitle  = "table_title"
	MetaTableRows   = "table_rows"
)

// --- Domain types (store records) ---

// ParentRecord is a coarse chunk of source text. ID is immutable once written.
type ParentRecord struct {
	ID          string      `json:"parent_id"`
	Text        string      `json:"text"`
	Metadata    Metadata    `json:"metadata"`
	SourceID    string      `json:"source_id"`
	ContentType ContentType `json:"content_type"`
	Ordinal     int         `json:"ordinal"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ChildRecord is a fine chunk derived from one parent. ID is "<parent_id>:<child_index>".
type ChildRecord struct {
	ID          string      `json:"child_id"`
	ParentID    string      `json:"parent_id"`
	ChildIndex  int         `json:"child_index"`
	Text        string      `json:"text"`
	ContentType ContentType `json:"content_type"`
	Metadata    Metadata    `json:"metadata"`
	Embedding   []float32   `json:"-"`
}

// ScoredChild is a child record with its similarity score (higher is better).
type ScoredChild struct {
	Child ChildRecord `json:"child"`
	Score float32     `json:"score"`
}

// ParentFilter narrows ListParents. Empty fields match everything.
// SourceID matches exactly. TextContains is a substring match that ignores
// the case of ASCII letters, like SQLite's LIKE; other characters match
// exactly. Both fields are trimmed of surrounding whitespace.
type ParentFilter struct {
	SourceID     string
	TextContains string
}

// MatchesText reports whether text satisfies f.TextContains.
func (f ParentFilter) MatchesText(text string) bool {
	needle := strings.TrimSpace(f.TextContains)
	return needle == "" || strings.Contains(foldASCII(text), foldASCII(needle))
}

// foldASCII lowercases ASCII letters only.
func foldASCII(s string) string {
	for i := 0; i < len(s); i++ {
		if c := s[i]; 'A' <= c && c <= 'Z' {
			b := []byte(s)
			for j := i; j < len(b); j++ {
				if 'A' <= b[j] && b[j] <= 'Z' {
					b[j] += 'a' - 'A'
				}
			}
			return string(b)
		}
	}
	return s
}

// SourceSummary aggregates the parents written for one source.
type SourceSummary struct {
	SourceID     string              `json:"source_id"`
	Count        int                 `json:"count"`
	ContentTypes map[ContentType]int `json:"content_types"`
	LatestAt     time.Time           `json:"latest_at"`
}

// SourceSort selects the ordering of ListSources.
type SourceSort string

const (
	SortByName    SourceSort = "name"
	SortByUpdated SourceSort = "updated"
	SortByCount   SourceSort = "count"
)

// SourceQuery pages through source summaries.
type SourceQuery struct {
	Search string
	SortBy SourceSort
	Desc   bool
	Limit  int
	Offset int
}

// MatchedChild is a diagnostic preview of a child that matched a query.
type MatchedChild struct {
	ChildID string  `json:"child_id"`
	Preview string  `json:"preview"`
	Score   float32 `json:"score"`
}

// QueryResult is one parent-level retrieval result.
type QueryResult struct {
	ParentID string         `json:"parent_id"`
	Text     string         `json:"text"`
	Metadata Metadata       `json:"metadata"`
	Score    float32        `json:"score"`
	Matched  []MatchedChild `json:"matched_child_preview"`
	// Reassembled is true when Text was rebuilt from live children rather
	// than taken from the stored parent text.
	Reassembled bool `json:"reassembled"`
}
