package strata

import (
	"sort"
	"strings"
	"time"
)

// unknownSource buckets parents written without a source id.
const unknownSource = "unknown"

// SourceAccumulator folds (source, content type, count, latest) rows into
// SourceSummary values. Backends feed it from their own aggregate queries.
type SourceAccumulator struct {
	bySource map[string]*SourceSummary
}

// NewSourceAccumulator returns an empty accumulator.
func NewSourceAccumulator() *SourceAccumulator {
	return &SourceAccumulator{bySource: make(map[string]*SourceSummary)}
}

// Add records n parents of content type ct for source, with latest as the
// newest creation time among them. Empty values bucket as "unknown".
func (a *SourceAccumulator) Add(source string, ct ContentType, n int, latest time.Time) {
	if source == "" {
		source = unknownSource
	}
	if ct == "" {
		ct = ContentUnknown
	}
	s, ok := a.bySource[source]
	if !ok {
		s = &SourceSummary{SourceID: source, ContentTypes: make(map[ContentType]int)}
		a.bySource[source] = s
	}
	s.Count += n
	s.ContentTypes[ct] += n
	if latest.After(s.LatestAt) {
		s.LatestAt = latest
	}
}

// Summaries returns the accumulated sources, largest first, ties by source id.
func (a *SourceAccumulator) Summaries() []SourceSummary {
	out := make([]SourceSummary, 0, len(a.bySource))
	for _, s := range a.bySource {
		out = append(out, *s)
	}
	SortSources(out, "", false)
	return out
}

// Validate rejects unknown sort keys and negative paging values.
func (q SourceQuery) Validate() error {
	switch q.SortBy {
	case "", SortByName, SortByUpdated, SortByCount:
	default:
		return &ValidationError{Field: "sort_by", Reason: "must be name, updated or count"}
	}
	if q.Limit < 0 || q.Offset < 0 {
		return &ValidationError{Field: "limit/offset", Reason: "must not be negative"}
	}
	return nil
}

// SortSources orders summaries in place. An empty key sorts by count
// descending then source id ascending, ignoring desc.
func SortSources(s []SourceSummary, by SourceSort, desc bool) {
	var less func(a, b SourceSummary) bool
	switch by {
	case SortByName:
		less = func(a, b SourceSummary) bool { return a.SourceID < b.SourceID }
	case SortByUpdated:
		less = func(a, b SourceSummary) bool {
			if !a.LatestAt.Equal(b.LatestAt) {
				return a.LatestAt.Before(b.LatestAt)
			}
			return a.SourceID < b.SourceID
		}
	case SortByCount:
		less = func(a, b SourceSummary) bool {
			if a.Count != b.Count {
				return a.Count < b.Count
			}
			return a.SourceID < b.SourceID
		}
	default:
		sort.SliceStable(s, func(i, j int) bool {
			if s[i].Count != s[j].Count {
				return s[i].Count > s[j].Count
			}
			return s[i].SourceID < s[j].SourceID
		})
		return
	}
	sort.SliceStable(s, func(i, j int) bool {
		if desc {
			return less(s[j], s[i])
		}
		return less(s[i], s[j])
	})
}

// PageSources applies q to a full aggregate: case-insensitive substring
// search on the source id, sorting, then offset and limit. The returned total
// counts every match before paging. A zero Limit returns everything.
func PageSources(all []SourceSummary, q SourceQuery) ([]SourceSummary, int) {
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	matched := make([]SourceSummary, 0, len(all))
	for _, s := range all {
		if needle == "" || strings.Contains(strings.ToLower(s.SourceID), needle) {
			matched = append(matched, s)
		}
	}
	SortSources(matched, q.SortBy, q.Desc)
	total := len(matched)
	if q.Offset >= total {
		return []SourceSummary{}, total
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, total
}
