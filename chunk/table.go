package chunk

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"
)

// maxTitleLen bounds a line considered as a table title.
const maxTitleLen = 120

// titleLookback is how many preceding lines are searched for a table title.
const titleLookback = 2

// tableLocale holds the words used to render a table as records.
type tableLocale struct {
	marker   string
	untitled string
	columns  string
	record   func(n int) string
	pairSep  string
	listSep  string
	keySep   string
}

var tableLocales = []tableLocale{
	{
		marker:   "[TABLE] ",
		untitled: "Untitled table",
		columns:  "Columns: ",
		record:   func(n int) string { return "Record " + strconv.Itoa(n) + ": " },
		pairSep:  "; ",
		listSep:  ", ",
		keySep:   ": ",
	},
	{
		marker:   "【表格】",
		untitled: "未命名表格",
		columns:  "列：",
		record:   func(n int) string { return "第" + strconv.Itoa(n) + "条：" },
		pairSep:  "，",
		listSep:  "、",
		keySep:   "：",
	},
}

var localeMatcher = language.NewMatcher([]language.Tag{language.English, language.Chinese})

// lookupLocale resolves a BCP 47 tag to a table locale.
func lookupLocale(tag string) (*tableLocale, error) {
	t, err := language.Parse(tag)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", tag, err)
	}
	_, idx, conf := localeMatcher.Match(t)
	if conf == language.No {
		idx = 0
	}
	return &tableLocales[idx], nil
}

// isTableLine reports whether line is a pipe-delimited table row other
// than an alignment row.
func isTableLine(line string) bool {
	line = strings.TrimSpace(line)
	if len(line) < 3 || line[0] != '|' || line[len(line)-1] != '|' {
		return false
	}
	if !strings.Contains(line[1:len(line)-1], "|") {
		return false
	}
	return !isAlignmentLine(line)
}

// isAlignmentLine reports whether line is a header/body separator such as
// "|---|:---:|".
func isAlignmentLine(line string) bool {
	line = strings.TrimSpace(line)
	if len(line) < 3 || line[0] != '|' || line[len(line)-1] != '|' {
		return false
	}
	for _, cell := range tableCells(line) {
		if cell == "" || strings.Trim(cell, "-:") != "" {
			return false
		}
	}
	return true
}

// tableCells returns the trimmed cells of a pipe-delimited row.
func tableCells(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	cells := strings.Split(line, "|")
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
	return cells
}

// tableBlock is a detected table within a line sequence.
type tableBlock struct {
	header []string
	rows   [][]string
	end    int // index one past the last consumed line
}

// detectTable looks for a table whose header is lines[i]: the header, an
// optional alignment line and one or more data lines with the header's cell
// count. A header without data rows is not a table. The block ends at the
// first line that is not a row of the same width, or at a row followed by an
// alignment line, which is the header of the next table.
func detectTable(lines []string, i int) (tableBlock, bool) {
	if !isTableLine(lines[i]) {
		return tableBlock{}, false
	}
	tb := tableBlock{header: tableCells(lines[i])}
	j := i + 1
	if j < len(lines) && isAlignmentLine(lines[j]) {
		j++
	}
	for ; j < len(lines); j++ {
		if !isTableLine(lines[j]) {
			break
		}
		if j+1 < len(lines) && isAlignmentLine(lines[j+1]) {
			break
		}
		cells := tableCells(lines[j])
		if len(cells) != len(tb.header) {
			break
		}
		tb.rows = append(tb.rows, cells)
	}
	if len(tb.rows) == 0 {
		return tableBlock{}, false
	}
	tb.end = j
	return tb, true
}

// findTitle returns the nearest of the titleLookback lines before index i
// that is not part of a table and is short enough to be a caption.
func findTitle(lines []string, i int) string {
	for k := i - 1; k >= 0 && k >= i-titleLookback; k-- {
		line := lines[k]
		if isTableLine(line) || isAlignmentLine(line) {
			continue
		}
		if utf8.RuneCountInString(line) <= maxTitleLen {
			return line
		}
	}
	return ""
}

// render writes the table as a marker line with its title, a column list and
// one numbered record per data row.
func (l *tableLocale) render(title string, tb tableBlock) string {
	if title == "" {
		title = l.untitled
	}
	var b strings.Builder
	b.WriteString(l.marker)
	b.WriteString(title)
	b.WriteByte('\n')
	b.WriteString(l.columns)
	b.WriteString(strings.Join(nonEmpty(tb.header), l.listSep))
	for n, row := range tb.rows {
		b.WriteByte('\n')
		b.WriteString(l.record(n + 1))
		b.WriteString(l.row(tb.header, row))
	}
	return b.String()
}

// row renders "column: value" pairs, skipping pairs with an empty side.
func (l *tableLocale) row(header, cells []string) string {
	pairs := make([]string, 0, len(cells))
	for i, c := range cells {
		if header[i] == "" || c == "" {
			continue
		}
		pairs = append(pairs, header[i]+l.keySep+c)
	}
	return strings.Join(pairs, l.pairSep)
}

func nonEmpty(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
