package strata

import "testing"

func TestParentFilterMatchesText(t *testing.T) {
	tests := []struct {
		needle string
		text   string
		want   bool
	}{
		{"", "anything", true},
		{"   ", "anything", true},
		{"requirements", "Sensory REQUIREMENTS", true},
		{" Sensory ", "sensory requirements", true},
		{"äpfel", "ÄPFEL", false},
		{"感官", "感官要求", true},
		{"limit", "lim it", false},
	}
	for _, tt := range tests {
		if got := (ParentFilter{TextContains: tt.needle}).MatchesText(tt.text); got != tt.want {
			t.Errorf("MatchesText(%q in %q) = %v, want %v", tt.needle, tt.text, got, tt.want)
		}
	}
}
