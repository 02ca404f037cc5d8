package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind tags the variant held by a Value.
type Kind uint8

// Supported value kinds. KindNull is the zero value and represents an absent or
// JSON null field.
const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBoolean
	KindTimestamp
	KindArray
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindTimestamp:
		return "timestamp"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is an immutable tagged variant holding one record field value.
// Constructors copy their inputs so a Value never aliases caller-owned slices or maps.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	ts   time.Time
	arr  []Value
	m    map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a float64.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBoolean, b: b} }

// Timestamp wraps a point in time, normalized to UTC.
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, ts: t.UTC()} }

// Array wraps a sequence of values. A nil or empty input yields an empty array,
// never null.
func Array(items ...Value) Value {
	out := make([]Value, len(items))
	copy(out, items)
	return Value{kind: KindArray, arr: out}
}

// Map wraps a string keyed mapping of values.
func Map(entries map[string]Value) Value {
	out := make(map[string]Value, len(entries))
	for k, v := range entries {
		out[k] = v
	}
	return Value{kind: KindMap, m: out}
}

// Kind reports the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v holds no value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string payload when v is a string.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsNumber returns the numeric payload when v is a number.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsBool returns the boolean payload when v is a boolean.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBoolean }

// AsTimestamp returns the time payload when v is a timestamp.
func (v Value) AsTimestamp() (time.Time, bool) { return v.ts, v.kind == KindTimestamp }

// AsArray returns a copy of the elements when v is an array.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	out := make([]Value, len(v.arr))
	copy(out, v.arr)
	return out, true
}

// AsMap returns a copy of the entries when v is a map.
func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	out := make(map[string]Value, len(v.m))
	for k, e := range v.m {
		out[k] = e
	}
	return out, true
}

// Len returns the number of elements for arrays and maps and zero otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindMap:
		return len(v.m)
	case KindNull, KindString, KindNumber, KindBoolean, KindTimestamp:
		return 0
	default:
		panic(fmt.Sprintf("domain: unhandled value kind %s", v.kind))
	}
}

// Append returns a new array value with item appended. A null receiver is
// treated as an empty array.
func (v Value) Append(item Value) (Value, error) {
	switch v.kind {
	case KindNull:
		return Array(item), nil
	case KindArray:
		out := make([]Value, len(v.arr), len(v.arr)+1)
		copy(out, v.arr)
		return Value{kind: KindArray, arr: append(out, item)}, nil
	case KindString, KindNumber, KindBoolean, KindTimestamp, KindMap:
		return Value{}, fmt.Errorf("append to %s value", v.kind)
	default:
		panic(fmt.Sprintf("domain: unhandled value kind %s", v.kind))
	}
}

// Remove returns a new array value without any element equal to item. A null
// receiver is treated as an empty array.
func (v Value) Remove(item Value) (Value, error) {
	switch v.kind {
	case KindNull:
		return Array(), nil
	case KindArray:
		out := make([]Value, 0, len(v.arr))
		for _, e := range v.arr {
			if !e.Equal(item) {
				out = append(out, e)
			}
		}
		return Value{kind: KindArray, arr: out}, nil
	case KindString, KindNumber, KindBoolean, KindTimestamp, KindMap:
		return Value{}, fmt.Errorf("remove from %s value", v.kind)
	default:
		panic(fmt.Sprintf("domain: unhandled value kind %s", v.kind))
	}
}

// Contains reports whether an array value holds an element equal to item.
func (v Value) Contains(item Value) bool {
	if v.kind != KindArray {
		return false
	}
	for _, e := range v.arr {
		if e.Equal(item) {
			return true
		}
	}
	return false
}

// Equal compares two values deeply. Kinds must match.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBoolean:
		return v.b == o.b
	case KindTimestamp:
		return v.ts.Equal(o.ts)
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, e := range v.m {
			oe, ok := o.m[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	default:
		panic(fmt.Sprintf("domain: unhandled value kind %s", v.kind))
	}
}

// Text renders scalar values the way they appear in a URL path segment or a
// plain table cell. Arrays and maps render as compact JSON.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindTimestamp:
		return v.ts.Format(time.RFC3339Nano)
	case KindArray, KindMap:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		panic(fmt.Sprintf("domain: unhandled value kind %s", v.kind))
	}
}

// Native converts the value into plain Go values suitable for encoding/json or
// database drivers.
func (v Value) Native() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBoolean:
		return v.b
	case KindTimestamp:
		return v.ts.Format(time.RFC3339Nano)
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Native()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Native()
		}
		return out
	default:
		panic(fmt.Sprintf("domain: unhandled value kind %s", v.kind))
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("marshal number %v", v.num)
		}
		return json.Marshal(v.num)
	case KindBoolean:
		return json.Marshal(v.b)
	case KindTimestamp:
		return json.Marshal(v.ts.Format(time.RFC3339Nano))
	case KindArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := e.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			b, err := v.m[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		panic(fmt.Sprintf("domain: unhandled value kind %s", v.kind))
	}
}

// UnmarshalJSON implements json.Unmarshaler. Timestamps arrive as strings and
// are only recovered through Coerce with a column type.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out, err := ValueFromAny(raw)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// ValueFromAny converts decoded JSON (or database driver output) into a Value.
func ValueFromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("decode number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case time.Time:
		return Timestamp(t), nil
	case []byte:
		return String(string(t)), nil
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			item, err := ValueFromAny(e)
			if err != nil {
				return Value{}, err
			}
			items[i] = item
		}
		return Value{kind: KindArray, arr: items}, nil
	case []string:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = String(e)
		}
		return Value{kind: KindArray, arr: items}, nil
	case map[string]any:
		entries := make(map[string]Value, len(t))
		for k, e := range t {
			item, err := ValueFromAny(e)
			if err != nil {
				return Value{}, err
			}
			entries[k] = item
		}
		return Value{kind: KindMap, m: entries}, nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", raw)
	}
}

// Coerce upgrades a decoded value to the kind declared by a column type. Values
// that cannot be converted are returned unchanged.
func (v Value) Coerce(t ColumnType) Value {
	switch t {
	case TypeTimestamp:
		switch v.kind {
		case KindString:
			if ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v.str)); err == nil {
				return Timestamp(ts)
			}
		case KindNumber:
			return Timestamp(time.UnixMilli(int64(v.num)))
		case KindMap:
			if ts, ok := firestoreTimestamp(v.m); ok {
				return Timestamp(ts)
			}
		case KindNull, KindBoolean, KindTimestamp, KindArray:
		}
	case TypeNumber:
		if s, ok := v.AsString(); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return Number(f)
			}
		}
	case TypeBoolean:
		if s, ok := v.AsString(); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
				return Bool(b)
			}
		}
	case TypeArray:
		if v.kind == KindNull {
			return Array()
		}
	case TypeString, TypeMap:
	}
	return v
}

// firestoreTimestamp recognises {seconds, nanoseconds} shaped maps, with or
// without the leading underscore used by the admin SDKs.
func firestoreTimestamp(m map[string]Value) (time.Time, bool) {
	sec, ok := m["seconds"]
	if !ok {
		sec, ok = m["_seconds"]
	}
	if !ok {
		return time.Time{}, false
	}
	s, ok := sec.AsNumber()
	if !ok {
		return time.Time{}, false
	}
	var nanos float64
	if n, found := m["nanoseconds"]; found {
		nanos, _ = n.AsNumber()
	} else if n, found := m["_nanoseconds"]; found {
		nanos, _ = n.AsNumber()
	}
	return time.Unix(int64(s), int64(nanos)).UTC(), true
}
