package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestValueConstructorsCopyInputs(t *testing.T) {
	items := []Value{String("a"), String("b")}
	arr := Array(items...)
	items[0] = String("mutated")
	got, _ := arr.AsArray()
	if s, _ := got[0].AsString(); s != "a" {
		t.Fatalf("expected array to keep original element, got %q", s)
	}

	entries := map[string]Value{"k": Number(1)}
	m := Map(entries)
	entries["k"] = Number(2)
	gotMap, _ := m.AsMap()
	if n, _ := gotMap["k"].AsNumber(); n != 1 {
		t.Fatalf("expected map to keep original entry, got %v", n)
	}
}

func TestArrayNeverNull(t *testing.T) {
	v := Array()
	if v.Kind() != KindArray || v.Len() != 0 {
		t.Fatalf("expected empty array, got %s len=%d", v.Kind(), v.Len())
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "[]" {
		t.Fatalf("expected [] got %s", b)
	}
}

func TestAppendAndRemove(t *testing.T) {
	v, err := Null().Append(String("x"))
	if err != nil {
		t.Fatalf("append to null: %v", err)
	}
	if !v.Equal(Array(String("x"))) {
		t.Fatalf("expected [x], got %s", v.Text())
	}
	v, _ = v.Append(String("y"))
	v, _ = v.Append(String("x"))
	v, err = v.Remove(String("x"))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !v.Equal(Array(String("y"))) {
		t.Fatalf("expected [y], got %s", v.Text())
	}
	if _, err := String("s").Append(String("x")); err == nil {
		t.Fatalf("expected append to string to fail")
	}
	if _, err := Number(1).Remove(String("x")); err == nil {
		t.Fatalf("expected remove from number to fail")
	}
}

func TestAppendDoesNotAliasReceiver(t *testing.T) {
	base := Array(String("a"))
	first, _ := base.Append(String("b"))
	second, _ := base.Append(String("c"))
	if !first.Equal(Array(String("a"), String("b"))) {
		t.Fatalf("first append corrupted: %s", first.Text())
	}
	if !second.Equal(Array(String("a"), String("c"))) {
		t.Fatalf("second append corrupted: %s", second.Text())
	}
	if base.Len() != 1 {
		t.Fatalf("receiver mutated: %s", base.Text())
	}
}

func TestEqualIsKindStrict(t *testing.T) {
	cases := []struct {
		name string
		a, b Value
		want bool
	}{
		{"string vs number", String("1"), Number(1), false},
		{"same numbers", Number(1.5), Number(1.5), true},
		{"null", Null(), Null(), true},
		{"timestamps", Timestamp(time.Unix(10, 0)), Timestamp(time.Unix(10, 0).In(time.FixedZone("x", 3600))), true},
		{"nested map", Map(map[string]Value{"a": Array(Bool(true))}), Map(map[string]Value{"a": Array(Bool(true))}), true},
		{"map size", Map(map[string]Value{"a": Null()}), Map(nil), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Equal(tc.b); got != tc.want {
				t.Fatalf("Equal=%v want %v", got, tc.want)
			}
		})
	}
}

func TestValueJSONDecoding(t *testing.T) {
	var v Value
	payload := `{"kcal": 540, "tags": ["a", null], "ok": true, "name": "x"}`
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m, ok := v.AsMap()
	if !ok {
		t.Fatalf("expected map, got %s", v.Kind())
	}
	if n, _ := m["kcal"].AsNumber(); n != 540 {
		t.Fatalf("expected kcal 540, got %v", n)
	}
	tags, _ := m["tags"].AsArray()
	if len(tags) != 2 || !tags[1].IsNull() {
		t.Fatalf("unexpected tags %v", tags)
	}
	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.HasPrefix(string(out), `{"kcal":540,"name":"x","ok":true`) {
		t.Fatalf("expected sorted keys, got %s", out)
	}
}

func TestCoerce(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		in   Value
		typ  ColumnType
		want Value
	}{
		{"rfc3339 string", String(ts.Format(time.RFC3339)), TypeTimestamp, Timestamp(ts)},
		{"firestore map", Map(map[string]Value{"seconds": Number(float64(ts.Unix())), "nanoseconds": Number(0)}), TypeTimestamp, Timestamp(ts)},
		{"admin sdk map", Map(map[string]Value{"_seconds": Number(float64(ts.Unix()))}), TypeTimestamp, Timestamp(ts)},
		{"numeric string", String("2.49"), TypeNumber, Number(2.49)},
		{"bool string", String("true"), TypeBoolean, Bool(true)},
		{"null array", Null(), TypeArray, Array()},
		{"garbage timestamp", String("yesterday"), TypeTimestamp, String("yesterday")},
		{"string unchanged", Number(3), TypeString, Number(3)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.Coerce(tc.typ); !got.Equal(tc.want) {
				t.Fatalf("Coerce=%s (%s) want %s (%s)", got.Text(), got.Kind(), tc.want.Text(), tc.want.Kind())
			}
		})
	}
}

func TestValueFromAnyRejectsUnknownTypes(t *testing.T) {
	if _, err := ValueFromAny(struct{}{}); err == nil {
		t.Fatalf("expected error for struct input")
	}
	v, err := ValueFromAny([]string{"a", "b"})
	if err != nil || v.Len() != 2 {
		t.Fatalf("expected string slice conversion, got %v %v", v.Text(), err)
	}
}

func TestTextRendering(t *testing.T) {
	if got := Number(2).Text(); got != "2" {
		t.Fatalf("expected 2, got %s", got)
	}
	if got := Number(1.25).Text(); got != "1.25" {
		t.Fatalf("expected 1.25, got %s", got)
	}
	if got := Array(String("a")).Text(); got != `["a"]` {
		t.Fatalf("expected json array, got %s", got)
	}
	if got := Null().Text(); got != "" {
		t.Fatalf("expected empty text for null, got %q", got)
	}
}
