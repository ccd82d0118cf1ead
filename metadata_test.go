package strata

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestToValueScalars(t *testing.T) {
	tests := []struct {
		name string
		in   any
		kind ValueKind
		text string
	}{
		{"nil", nil, KindNull, ""},
		{"string", "abc", KindString, "abc"},
		{"bool", true, KindBool, "true"},
		{"int", 42, KindNumber, "42"},
		{"int64", int64(-7), KindNumber, "-7"},
		{"float", 1.5, KindNumber, "1.5"},
		{"json number", json.Number("3"), KindNumber, "3"},
		{"time", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), KindString, "2026-03-01T12:00:00Z"},
		{"slice", []string{"a", "b"}, KindString, `["a","b"]`},
		{"map", map[string]int{"x": 1}, KindString, `{"x":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ToValue(tt.in)
			if err != nil {
				t.Fatalf("ToValue() error = %v", err)
			}
			if v.Kind() != tt.kind {
				t.Errorf("kind = %s, want %s", v.Kind(), tt.kind)
			}
			if v.Text() != tt.text {
				t.Errorf("text = %q, want %q", v.Text(), tt.text)
			}
		})
	}
}

func TestToValueRejects(t *testing.T) {
	for _, in := range []any{math.NaN(), math.Inf(1), make(chan int)} {
		_, err := ToValue(in)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("ToValue(%T) error = %v, want *ValidationError", in, err)
		}
	}
}

func TestToMetadata(t *testing.T) {
	m, err := ToMetadata(map[string]any{
		"source": "a.pdf",
		"page":   3,
		"tags":   []string{"x"},
	})
	if err != nil {
		t.Fatalf("ToMetadata() error = %v", err)
	}
	if m.GetString("source") != "a.pdf" || m.GetString("page") != "3" || m.GetString("tags") != `["x"]` {
		t.Errorf("ToMetadata() = %v", m.Map())
	}
	if _, err := ToMetadata(map[string]any{"bad": func() {}}); err == nil {
		t.Error("expected error for func value")
	}
}

func TestMetadataJSON(t *testing.T) {
	m := Metadata{"s": String("x"), "n": Number(2.5), "b": Bool(false), "z": Null()}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var back Metadata
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for k, v := range m {
		if back[k] != v {
			t.Errorf("key %s = %#v, want %#v", k, back[k], v)
		}
	}
}

func TestMetadataUnmarshalNested(t *testing.T) {
	var m Metadata
	if err := json.Unmarshal([]byte(`{"obj":{"a":1}}`), &m); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if m["obj"].Kind() != KindString || m.GetString("obj") != `{"a":1}` {
		t.Errorf("nested value = %#v", m["obj"])
	}
}

func TestMetadataMergeDoesNotMutate(t *testing.T) {
	base := Metadata{"a": Int(1)}
	merged := base.Merge(Metadata{"a": Int(2), "b": Int(3)})
	if base.GetString("a") != "1" || len(base) != 1 {
		t.Errorf("base mutated: %v", base.Map())
	}
	if merged.GetString("a") != "2" || merged.GetString("b") != "3" {
		t.Errorf("merged = %v", merged.Map())
	}
	if got := merged.Keys(); len(got) != 2 || got[0] != "a" {
		t.Errorf("Keys() = %v", got)
	}
}
