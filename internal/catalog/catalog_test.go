package catalog

import (
	"errors"
	"testing"

	"datamanager/pkg/domain"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	want := []string{"artikel", "einkaufszettel", "rezepte", "rezeptzettel", "users"}
	got := c.Names()
	if len(got) != len(want) {
		t.Fatalf("expected %d collections, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("collection %d: got %s want %s", i, got[i], want[i])
		}
	}
	if c.DefaultName() != DefaultCollection {
		t.Fatalf("expected default %s, got %s", DefaultCollection, c.DefaultName())
	}
	for _, name := range got {
		cols, _ := c.Columns(name)
		for i, col := range cols {
			if col.Order != i {
				t.Fatalf("%s: column %s order %d at %d", name, col.Name, col.Order, i)
			}
		}
	}
}

func TestDefaultArtikelLayout(t *testing.T) {
	cols, ok := Default().Columns("artikel")
	if !ok {
		t.Fatalf("artikel missing")
	}
	wantOrder := []string{"angebot", "food", "bildpfad", "artikelname", "produkt", "markt", "preis", "topangebot", "zusatzinfos", "id", "timestamp"}
	for i, name := range wantOrder {
		if cols[i].Name != name {
			t.Fatalf("position %d: got %s want %s", i, cols[i].Name, name)
		}
	}
	hidden := map[string]bool{"topangebot": true, "zusatzinfos": true, "id": true, "timestamp": true}
	for _, c := range cols {
		if c.Visible == hidden[c.Name] {
			t.Fatalf("unexpected visibility for %s: %v", c.Name, c.Visible)
		}
	}
}

func TestNewNormalizesOrders(t *testing.T) {
	c, err := New(Definition{Name: "x", Columns: []domain.Column{
		{Name: "b", Type: domain.TypeString, Order: 10},
		{Name: "a", Type: domain.TypeNumber, Order: 3},
	}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	cols, _ := c.Columns("x")
	if cols[0].Name != "a" || cols[0].Order != 0 || cols[1].Name != "b" || cols[1].Order != 1 {
		t.Fatalf("unexpected normalization %+v", cols)
	}
	if c.DefaultName() != "x" {
		t.Fatalf("expected first collection as default, got %s", c.DefaultName())
	}
}

func TestNewRejectsInvalidDefinitions(t *testing.T) {
	cases := []struct {
		name string
		defs []Definition
	}{
		{"empty", nil},
		{"blank collection", []Definition{{Name: " "}}},
		{"duplicate collection", []Definition{{Name: "a"}, {Name: "a"}}},
		{"duplicate column", []Definition{{Name: "a", Columns: []domain.Column{
			{Name: "x", Type: domain.TypeString}, {Name: "x", Type: domain.TypeNumber},
		}}}},
		{"unknown type", []Definition{{Name: "a", Columns: []domain.Column{{Name: "x", Type: "blob"}}}}},
		{"blank column", []Definition{{Name: "a", Columns: []domain.Column{{Name: "", Type: domain.TypeString}}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.defs...)
			if !errors.Is(err, ErrInvalidCatalog) {
				t.Fatalf("expected ErrInvalidCatalog, got %v", err)
			}
		})
	}
}

func TestColumnLookupCaseInsensitive(t *testing.T) {
	c := Default()
	col, ok := c.Column("users", "likedrecipes")
	if !ok || col.Name != "likedRecipes" {
		t.Fatalf("expected case-insensitive match, got %+v ok=%v", col, ok)
	}
	if _, ok := c.Column("missing", "x"); ok {
		t.Fatalf("unexpected column in unknown collection")
	}
	if _, ok := c.Column("artikel", "nope"); ok {
		t.Fatalf("unexpected column match")
	}
}

func TestColumnsReturnsCopy(t *testing.T) {
	c := Default()
	cols, _ := c.Columns("artikel")
	cols[0].Visible = false
	again, _ := c.Columns("artikel")
	if !again[0].Visible {
		t.Fatalf("catalog mutated through returned slice")
	}
}
