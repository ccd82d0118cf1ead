package chunk

import "testing"

func TestTableLineClassification(t *testing.T) {
	tests := []struct {
		line      string
		table     bool
		alignment bool
	}{
		{"|a|b|", true, false},
		{"| a | b |", true, false},
		{"|a|", false, false},
		{"a|b", false, false},
		{"|---|---|", false, true},
		{"| :--- | ---: |", false, true},
		{"|---|x|", true, false},
		{"||", false, false},
	}
	for _, tt := range tests {
		if got := isTableLine(tt.line); got != tt.table {
			t.Errorf("isTableLine(%q) = %v, want %v", tt.line, got, tt.table)
		}
		if got := isAlignmentLine(tt.line); got != tt.alignment {
			t.Errorf("isAlignmentLine(%q) = %v, want %v", tt.line, got, tt.alignment)
		}
	}
}

func TestLookupLocale(t *testing.T) {
	tests := []struct {
		tag    string
		marker string
	}{
		{"en", "[TABLE] "},
		{"en-GB", "[TABLE] "},
		{"zh", "【表格】"},
		{"zh-Hans-CN", "【表格】"},
		{"fr", "[TABLE] "},
	}
	for _, tt := range tests {
		loc, err := lookupLocale(tt.tag)
		if err != nil {
			t.Fatalf("lookupLocale(%q) error = %v", tt.tag, err)
		}
		if loc.marker != tt.marker {
			t.Errorf("lookupLocale(%q) marker = %q, want %q", tt.tag, loc.marker, tt.marker)
		}
	}
}
