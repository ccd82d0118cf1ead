package ingest

import "testing"

func TestPDFExtractorRejectsBadInput(t *testing.T) {
	e := NewPDFExtractor()
	tests := []struct {
		name    string
		content []byte
	}{
		{"empty", nil},
		{"not a pdf", []byte("plain text pretending to be a pdf")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Extract(tt.content); err == nil {
				t.Error("Extract() expected error")
			}
			if _, err := e.ExtractWithMeta(tt.content); err == nil {
				t.Error("ExtractWithMeta() expected error")
			}
		})
	}
}
