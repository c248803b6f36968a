// Package value defines the tagged JSON-like value type used uniformly for
// variables, expression results and widget attribute values. A Value is one
// of null, bool, number (float64), string, array or object; coercions between
// the scalar kinds follow the rules of the expression language: numbers and
// numeric strings are interchangeable in arithmetic context, and container
// kinds serialize to and from their JSON text form.
package value

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ConversionError is returned when a Value cannot be coerced to the
// requested kind.
type ConversionError struct {
	Value  Value
	Target string
	Reason error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("failed to turn `%s` into a value of type %s", e.Value.String(), e.Target)
}

func (e *ConversionError) Unwrap() error { return e.Reason }

func conversionErr(v Value, target string, reason error) error {
	return &ConversionError{Value: v, Target: target, Reason: reason}
}

// Value is an immutable tagged union. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
	arr  []Value
	obj  map[string]Value
}

// Null returns the null Value.
func Null() Value { return Value{} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric Value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Array returns an array Value holding the given elements.
func Array(elems ...Value) Value {
	if elems == nil {
		elems = []Value{}
	}
	return Value{kind: KindArray, arr: elems}
}

// Object returns an object Value holding the given entries. The map is used
// as-is; callers must not mutate it afterwards.
func Object(entries map[string]Value) Value {
	if entries == nil {
		entries = map[string]Value{}
	}
	return Value{kind: KindObject, obj: entries}
}

// Kind returns which variant the Value holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the Value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// String returns the natural text form of the Value: strings are returned
// verbatim (unquoted), numbers in their shortest decimal form, and containers
// as compact JSON text with deterministic key order.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return formatNumber(v.num)
	case KindString:
		return v.str
	case KindArray, KindObject:
		return v.JSON()
	}
	return ""
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// AsFloat coerces the Value to a float64. Numbers convert directly and
// strings are parsed; everything else is a ConversionError.
func (v Value) AsFloat() (float64, error) {
	switch v.kind {
	case KindNumber:
		return v.num, nil
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, conversionErr(v, "number", err)
		}
		return f, nil
	}
	return 0, conversionErr(v, "number", nil)
}

// AsInt coerces the Value to an int by truncating its numeric form.
func (v Value) AsInt() (int, error) {
	f, err := v.AsFloat()
	if err != nil {
		return 0, err
	}
	return int(math.Trunc(f)), nil
}

// AsBool coerces the Value to a bool. Only booleans and the strings "true"
// and "false" convert; everything else is a ConversionError.
func (v Value) AsBool() (bool, error) {
	switch v.kind {
	case KindBool:
		return v.b, nil
	case KindString:
		b, err := strconv.ParseBool(strings.TrimSpace(v.str))
		if err != nil {
			return false, conversionErr(v, "bool", err)
		}
		return b, nil
	}
	return false, conversionErr(v, "bool", nil)
}

// AsString returns the natural text form. It never fails; it exists so call
// sites that conceptually convert read uniformly with the other As* methods.
func (v Value) AsString() string { return v.String() }

// AsArray returns the array elements. A string Value is re-parsed as JSON
// first; any other kind is a ConversionError.
func (v Value) AsArray() ([]Value, error) {
	switch v.kind {
	case KindArray:
		return v.arr, nil
	case KindString:
		parsed, err := FromJSON(v.str)
		if err != nil {
			return nil, conversionErr(v, "array", err)
		}
		if parsed.kind != KindArray {
			return nil, conversionErr(v, "array", nil)
		}
		return parsed.arr, nil
	}
	return nil, conversionErr(v, "array", nil)
}

// AsObject returns the object entries. A string Value is re-parsed as JSON
// first; any other kind is a ConversionError.
func (v Value) AsObject() (map[string]Value, error) {
	switch v.kind {
	case KindObject:
		return v.obj, nil
	case KindString:
		parsed, err := FromJSON(v.str)
		if err != nil {
			return nil, conversionErr(v, "object", err)
		}
		if parsed.kind != KindObject {
			return nil, conversionErr(v, "object", nil)
		}
		return parsed.obj, nil
	}
	return nil, conversionErr(v, "object", nil)
}

// Elems returns the elements of an array Value, or nil for any other kind.
func (v Value) Elems() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.arr
}

// Entries returns the entries of an object Value, or nil for any other kind.
func (v Value) Entries() map[string]Value {
	if v.kind != KindObject {
		return nil
	}
	return v.obj
}

// Equal reports value equality. Values that both coerce to numbers compare
// numerically (so "1" equals 1 and equals "1.0"); otherwise same-kind values
// compare structurally and mixed kinds compare by their text form.
func Equal(a, b Value) bool {
	if af, aerr := a.AsFloat(); aerr == nil {
		if bf, berr := b.AsFloat(); berr == nil {
			return af == bf
		}
	}
	if a.kind != b.kind {
		return a.String() == b.String()
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.num == b.num
	case KindString:
		return a.str == b.str
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for k, av := range a.obj {
			bv, ok := b.obj[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

// JSON returns the compact JSON text form of the Value. Object keys are
// emitted in sorted order so the output is deterministic.
func (v Value) JSON() string {
	var sb strings.Builder
	v.writeJSON(&sb)
	return sb.String()
}

func (v Value) writeJSON(sb *strings.Builder) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		sb.WriteString(formatNumber(v.num))
	case KindString:
		encoded, _ := json.Marshal(v.str)
		sb.Write(encoded)
	case KindArray:
		sb.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				sb.WriteByte(',')
			}
			e.writeJSON(sb)
		}
		sb.WriteByte(']')
	case KindObject:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			encoded, _ := json.Marshal(k)
			sb.Write(encoded)
			sb.WriteByte(':')
			v.obj[k].writeJSON(sb)
		}
		sb.WriteByte('}')
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(v.JSON()), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := FromJSON(string(data))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromJSON parses JSON text into a Value.
func FromJSON(text string) (Value, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Null(), fmt.Errorf("parsing json: %w", err)
	}
	return FromAny(raw), nil
}

// FromAny converts a decoded JSON value (any combination of nil, bool,
// float64, json.Number, string, []any and map[string]any) into a Value.
func FromAny(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(x)
	case float64:
		return Number(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return String(x.String())
		}
		return Number(f)
	case string:
		return String(x)
	case []any:
		elems := make([]Value, len(x))
		for i, e := range x {
			elems[i] = FromAny(e)
		}
		return Array(elems...)
	case map[string]any:
		entries := make(map[string]Value, len(x))
		for k, e := range x {
			entries[k] = FromAny(e)
		}
		return Object(entries)
	}
	return String(fmt.Sprint(raw))
}

// AsDuration parses the Value as a duration literal: a number of
// milliseconds, or a string like "150ms", "10s", "5m"/"5min" or "1h".
func (v Value) AsDuration() (time.Duration, error) {
	s := strings.TrimSpace(v.String())
	parse := func(suffix string, unit time.Duration) (time.Duration, error) {
		n, err := strconv.ParseFloat(strings.TrimSuffix(s, suffix), 64)
		if err != nil {
			return 0, conversionErr(v, "duration", err)
		}
		return time.Duration(n * float64(unit)), nil
	}
	switch {
	case strings.HasSuffix(s, "ms"):
		return parse("ms", time.Millisecond)
	case strings.HasSuffix(s, "min"):
		return parse("min", time.Minute)
	case strings.HasSuffix(s, "h"):
		return parse("h", time.Hour)
	case strings.HasSuffix(s, "m"):
		return parse("m", time.Minute)
	case strings.HasSuffix(s, "s"):
		return parse("s", time.Second)
	}
	if millis, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(millis) * time.Millisecond, nil
	}
	return 0, conversionErr(v, "duration", nil)
}
