package document

import (
	"testing"

	"datamanager/pkg/domain"
)

func TestUnionSkipsExistingElements(t *testing.T) {
	f := Fields{}
	if err := f.Union("tags", domain.String("a")); err != nil {
		t.Fatalf("union: %v", err)
	}
	if err := f.Union("tags", domain.String("a")); err != nil {
		t.Fatalf("union: %v", err)
	}
	if !f["tags"].Equal(domain.Array(domain.String("a"))) {
		t.Fatalf("expected single element, got %s", f["tags"].Text())
	}
	f["name"] = domain.String("x")
	if err := f.Union("name", domain.String("a")); err == nil {
		t.Fatalf("expected union into string to fail")
	}
}

func TestRemoveAbsentFieldStaysAbsent(t *testing.T) {
	f := Fields{}
	if err := f.Remove("tags", domain.String("a")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := f["tags"]; ok {
		t.Fatalf("expected field to stay absent")
	}
	f["tags"] = domain.Array(domain.String("a"), domain.String("b"), domain.String("a"))
	if err := f.Remove("tags", domain.String("a")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !f["tags"].Equal(domain.Array(domain.String("b"))) {
		t.Fatalf("unexpected tags %s", f["tags"].Text())
	}
}

func TestEncodeDecode(t *testing.T) {
	f := Fields{"preis": domain.Number(1.99), "tags": domain.Array()}
	b, err := f.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !back["preis"].Equal(domain.Number(1.99)) || back["tags"].Kind() != domain.KindArray {
		t.Fatalf("unexpected decoded document %v", back)
	}
	if _, err := Decode([]byte("[")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestRecordExposesID(t *testing.T) {
	r := Fields{"name": domain.String("x")}.Record("doc-1")
	if s, _ := r.Fields["id"].AsString(); s != "doc-1" {
		t.Fatalf("expected id field, got %q", s)
	}
	r = Fields{"id": domain.String("custom")}.Record("doc-1")
	if s, _ := r.Fields["id"].AsString(); s != "custom" {
		t.Fatalf("expected body id to win, got %q", s)
	}
}
