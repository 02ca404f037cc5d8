// Package contracttest holds the behavioural checks every document-store backend
// must pass.
package contracttest

import (
	"context"
	"errors"
	"testing"

	"datamanager/pkg/domain"
)

// Store is a record store that can also be seeded.
type Store interface {
	domain.RecordStore
	domain.RecordInserter
}

// Run exercises the record store contract against stores produced by open. Each
// subtest receives a fresh, empty store.
func Run(t *testing.T, open func(t *testing.T) Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("fetch unknown collection is empty", func(t *testing.T) {
		s := open(t)
		records, err := s.FetchCollection(ctx, "missing")
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if len(records) != 0 {
			t.Fatalf("expected no records, got %d", len(records))
		}
	})

	t.Run("insert assigns ids and preserves order", func(t *testing.T) {
		s := open(t)
		first, err := s.Insert(ctx, "artikel", domain.NewRecord("", map[string]domain.Value{"artikelname": domain.String("Milch")}))
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		if first == "" {
			t.Fatalf("expected generated id")
		}
		if _, err := s.Insert(ctx, "artikel", domain.NewRecord("b", map[string]domain.Value{"artikelname": domain.String("Brot")})); err != nil {
			t.Fatalf("insert: %v", err)
		}
		records, err := s.FetchCollection(ctx, "artikel")
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if len(records) != 2 || records[0].ID != first || records[1].ID != "b" {
			t.Fatalf("unexpected records %+v", records)
		}
		if name, _ := records[1].Fields["artikelname"].AsString(); name != "Brot" {
			t.Fatalf("unexpected field value %q", name)
		}
	})

	t.Run("patch field", func(t *testing.T) {
		s := open(t)
		seed(t, s, "artikel", "1", map[string]domain.Value{"preis": domain.Number(1)})
		if err := s.PatchField(ctx, "artikel", "1", "preis", domain.Number(2.5)); err != nil {
			t.Fatalf("patch: %v", err)
		}
		if err := s.PatchField(ctx, "artikel", "1", "markt", domain.String("Rewe")); err != nil {
			t.Fatalf("patch new field: %v", err)
		}
		r := fetchOne(t, s, "artikel", "1")
		if !r.Fields["preis"].Equal(domain.Number(2.5)) || !r.Fields["markt"].Equal(domain.String("Rewe")) {
			t.Fatalf("unexpected record %+v", r.Fields)
		}
	})

	t.Run("array union and remove", func(t *testing.T) {
		s := open(t)
		seed(t, s, "einkaufszettel", "z", map[string]domain.Value{"name": domain.String("Wochenende")})
		for _, v := range []string{"a", "b", "a"} {
			if err := s.AppendArrayElement(ctx, "einkaufszettel", "z", "produktid", domain.String(v)); err != nil {
				t.Fatalf("append %s: %v", v, err)
			}
		}
		r := fetchOne(t, s, "einkaufszettel", "z")
		if !r.Fields["produktid"].Equal(domain.Array(domain.String("a"), domain.String("b"))) {
			t.Fatalf("expected union semantics, got %s", r.Fields["produktid"].Text())
		}
		if err := s.RemoveArrayElement(ctx, "einkaufszettel", "z", "produktid", domain.String("a")); err != nil {
			t.Fatalf("remove: %v", err)
		}
		r = fetchOne(t, s, "einkaufszettel", "z")
		if !r.Fields["produktid"].Equal(domain.Array(domain.String("b"))) {
			t.Fatalf("unexpected array after remove %s", r.Fields["produktid"].Text())
		}
	})

	t.Run("array mutation on scalar fails", func(t *testing.T) {
		s := open(t)
		seed(t, s, "artikel", "1", map[string]domain.Value{"markt": domain.String("Rewe")})
		if err := s.AppendArrayElement(ctx, "artikel", "1", "markt", domain.String("x")); err == nil {
			t.Fatalf("expected append to scalar to fail")
		}
		r := fetchOne(t, s, "artikel", "1")
		if !r.Fields["markt"].Equal(domain.String("Rewe")) {
			t.Fatalf("failed mutation changed the document: %s", r.Fields["markt"].Text())
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := open(t)
		seed(t, s, "artikel", "1", nil)
		seed(t, s, "artikel", "2", nil)
		if err := s.DeleteRecord(ctx, "artikel", "1"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		records, _ := s.FetchCollection(ctx, "artikel")
		if len(records) != 1 || records[0].ID != "2" {
			t.Fatalf("unexpected records after delete %+v", records)
		}
	})

	t.Run("missing record", func(t *testing.T) {
		s := open(t)
		seed(t, s, "artikel", "1", nil)
		checks := map[string]error{
			"patch":  s.PatchField(ctx, "artikel", "nope", "preis", domain.Number(1)),
			"append": s.AppendArrayElement(ctx, "artikel", "nope", "zusatzinfos", domain.String("x")),
			"remove": s.RemoveArrayElement(ctx, "artikel", "nope", "zusatzinfos", domain.String("x")),
			"delete": s.DeleteRecord(ctx, "artikel", "nope"),
		}
		for op, err := range checks {
			if !errors.Is(err, domain.ErrRecordNotFound) {
				t.Fatalf("%s: expected ErrRecordNotFound, got %v", op, err)
			}
		}
	})
}

func seed(t *testing.T, s Store, collection, id string, fields map[string]domain.Value) {
	t.Helper()
	if _, err := s.Insert(context.Background(), collection, domain.NewRecord(id, fields)); err != nil {
		t.Fatalf("seed %s/%s: %v", collection, id, err)
	}
}

func fetchOne(t *testing.T, s Store, collection, id string) domain.Record {
	t.Helper()
	records, err := s.FetchCollection(context.Background(), collection)
	if err != nil {
		t.Fatalf("fetch %s: %v", collection, err)
	}
	for _, r := range records {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("record %s/%s not found", collection, id)
	return domain.Record{}
}
