package strata

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// ValueKind identifies the scalar type held by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "null"
	}
}

// Value is a closed scalar: string, number, boolean or null. The zero Value is null.
type Value struct {
	kind ValueKind
	s    string
	n    float64
	b    bool
}

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Number returns a numeric Value.
func Number(f float64) Value { return Value{kind: KindNumber, n: f} }

// Int returns a numeric Value holding an integer.
func Int(i int) Value { return Value{kind: KindNumber, n: float64(i)} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Null returns the null Value.
func Null() Value { return Value{} }

// Kind reports the scalar type of v.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload and whether v is a string.
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Num returns the numeric payload and whether v is a number.
func (v Value) Num() (float64, bool) { return v.n, v.kind == KindNumber }

// Truth returns the boolean payload and whether v is a boolean.
func (v Value) Truth() (bool, bool) { return v.b, v.kind == KindBool }

// Any returns v as string, float64, bool or nil.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return v.n
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// Text renders v for display. Integral numbers print without a fraction.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON implements json.Unmarshaler. Nested objects and arrays are
// kept as their JSON text.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = Null()
	case string:
		*v = String(x)
	case float64:
		*v = Number(x)
	case bool:
		*v = Bool(x)
	default:
		*v = String(string(data))
	}
	return nil
}

// Metadata maps string keys to scalar values. It is the only metadata shape
// accepted by a ChildIndex.
type Metadata map[string]Value

// Clone returns a shallow copy of m. A nil map clones to an empty one.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge copies every entry of other into a clone of m; other wins on conflicts.
func (m Metadata) Merge(other Metadata) Metadata {
	out := m.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// GetString returns the text form of key, or "" when absent.
func (m Metadata) GetString(key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	return v.Text()
}

// Map returns m as plain Go values.
func (m Metadata) Map() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Any()
	}
	return out
}

// Keys returns the keys of m in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ToValue converts an arbitrary Go value into a scalar Value. Scalars keep
// their type, time.Time becomes an RFC 3339 UTC string and every other value
// is stored as its JSON encoding. Values that cannot be encoded are rejected.
func ToValue(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Number(float64(t)), nil
	case int8:
		return Number(float64(t)), nil
	case int16:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case float32:
		return finiteNumber(float64(t))
	case float64:
		return finiteNumber(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, &ValidationError{Field: "metadata", Reason: fmt.Sprintf("bad number %q", t)}
		}
		return finiteNumber(f)
	case time.Time:
		return String(t.UTC().Format(time.RFC3339Nano)), nil
	}
	data, err := json.Marshal(x)
	if err != nil {
		return Value{}, &ValidationError{Field: "metadata", Reason: fmt.Sprintf("unsupported value of type %T: %v", x, err)}
	}
	return String(string(data)), nil
}

func finiteNumber(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, &ValidationError{Field: "metadata", Reason: "non-finite number"}
	}
	return Number(f), nil
}

// ToMetadata converts a loosely typed map into Metadata using ToValue.
// The first unconvertible entry aborts the conversion.
func ToMetadata(m map[string]any) (Metadata, error) {
	out := make(Metadata, len(m))
	for k, x := range m {
		v, err := ToValue(x)
		if err != nil {
			return nil, fmt.Errorf("metadata key %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}
