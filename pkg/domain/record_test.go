package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestRecordCopyOnWrite(t *testing.T) {
	r := NewRecord("1", map[string]Value{"preis": Number(1)})
	updated := r.With("preis", Number(2))
	if n, _ := r.Fields["preis"].AsNumber(); n != 1 {
		t.Fatalf("original mutated: %v", n)
	}
	if n, _ := updated.Fields["preis"].AsNumber(); n != 2 {
		t.Fatalf("expected updated value 2, got %v", n)
	}
	removed := updated.Without("preis")
	if _, ok := removed.Get("preis"); ok {
		t.Fatalf("expected field removed")
	}
	if _, ok := updated.Get("preis"); !ok {
		t.Fatalf("Without mutated its receiver")
	}
}

func TestRecordLookupCaseInsensitive(t *testing.T) {
	r := NewRecord("1", map[string]Value{"Markt": String("Rewe")})
	key, v, ok := r.Lookup("markt")
	if !ok || key != "Markt" {
		t.Fatalf("expected case-insensitive match, got key=%q ok=%v", key, ok)
	}
	if s, _ := v.AsString(); s != "Rewe" {
		t.Fatalf("unexpected value %q", s)
	}
	if _, _, ok := r.Lookup("preis"); ok {
		t.Fatalf("unexpected match")
	}
}

func TestRecordFromDocument(t *testing.T) {
	r, err := RecordFromDocument(map[string]any{"docId": "abc", "name": "x"}, "id", "docId")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if r.ID != "abc" {
		t.Fatalf("expected fallback id field, got %q", r.ID)
	}
	r, _ = RecordFromDocument(map[string]any{"id": float64(42)}, "id")
	if r.ID != "42" {
		t.Fatalf("expected numeric id rendered as text, got %q", r.ID)
	}
	r, _ = RecordFromDocument(map[string]any{"id": true}, "id")
	if r.ID != "" {
		t.Fatalf("expected boolean id to be ignored, got %q", r.ID)
	}
	if _, err := RecordFromDocument(map[string]any{"bad": struct{}{}}, "id"); err == nil {
		t.Fatalf("expected conversion error")
	}
}

func TestRecordJSON(t *testing.T) {
	r := NewRecord("7", map[string]Value{"tags": Array(String("a"))})
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"id":"7","fields":{"tags":["a"]}}` {
		t.Fatalf("unexpected json %s", b)
	}
	var back Record
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID != "7" || !back.Fields["tags"].Equal(Array(String("a"))) {
		t.Fatalf("unexpected decoded record %+v", back)
	}
}

func TestOperationErrorMatching(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := error(&OperationError{Kind: ErrWriteFailure, Op: "update_field", Collection: "artikel", RecordID: "1", Field: "preis", Err: cause})
	if !errors.Is(err, ErrWriteFailure) {
		t.Fatalf("expected write failure kind")
	}
	if errors.Is(err, ErrDeleteFailure) {
		t.Fatalf("unexpected delete failure match")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to unwrap")
	}
	want := "update_field: write failure collection=artikel id=1 field=preis: boom"
	if err.Error() != want {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !errors.Is(ErrNotFound{Collection: "artikel", ID: "9"}, ErrRecordNotFound) {
		t.Fatalf("expected ErrNotFound to match ErrRecordNotFound")
	}
}
