package model

import (
	"fmt"
	"strconv"
)

// Kind identifies the payload carried by a Value.
type Kind int

const (
	KindEmpty Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
)

// String returns a stable name for the kind, used in error messages.
func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindFloat:
		return "decimal"
	case KindBool:
		return "boolean"
	default:
		return "unknown"
	}
}

// Value is a tagged scalar used for every column and parameter value.
// The kind tag and the payload always agree; the zero Value is Empty.
// Values are copied freely and never shared by pointer.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
}

// Empty returns the null value.
func Empty() Value { return Value{} }

// String wraps a string payload.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int wraps an integer payload.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a decimal payload.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Bool wraps a boolean payload.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// FromAny converts decoded request input (JSON scalars, form strings) into
// a Value. Unsupported shapes (objects, arrays) are reported as an error so
// callers can distinguish a type mismatch from an absent value.
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Empty(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		// JSON numbers decode as float64; keep integral values integral.
		if t == float64(int64(t)) {
			return Int(int64(t)), nil
		}
		return Float(t), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	default:
		return Empty(), fmt.Errorf("unsupported value of type %T", v)
	}
}

// Kind returns the kind tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value carries no payload at all.
func (v Value) IsNull() bool { return v.kind == KindEmpty }

// IsEmpty reports whether the value is null or an empty string.
func (v Value) IsEmpty() bool {
	return v.kind == KindEmpty || (v.kind == KindString && v.s == "")
}

// String renders the payload as text. It is total: every kind has a
// representation and Empty renders as "".
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// AsString returns the string payload, or false when the kind differs.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsInt returns the integer payload, or false when the kind differs.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// AsFloat returns the decimal payload. Integer values widen.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// AsBool returns the boolean payload, or false when the kind differs.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Arg returns the payload in the shape database/sql expects for a bound
// parameter; Empty binds as NULL.
func (v Value) Arg() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	default:
		return nil
	}
}
