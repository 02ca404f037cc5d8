package core

import (
	"context"

	"datamanager/pkg/domain"
)

// ProductsCollection holds the articles referenced by shopping list arrays.
const ProductsCollection = "artikel"

// Product is an article resolved from a reference array element.
type Product struct {
	ID          string   `json:"id"`
	Artikelname string   `json:"artikelname"`
	Bildpfad    string   `json:"bildpfad"`
	Preis       *float64 `json:"preis,omitempty"`
}

// ResolveProducts maps each element of refs to the article with that id, in
// reference order. Elements without a matching article are skipped.
func ResolveProducts(articles []domain.Record, refs domain.Value) []Product {
	items, ok := refs.AsArray()
	if !ok {
		return []Product{}
	}
	byID := make(map[string]domain.Record, len(articles))
	for _, a := range articles {
		byID[a.ID] = a
	}
	out := make([]Product, 0, len(items))
	for _, item := range items {
		a, found := byID[item.Text()]
		if !found {
			continue
		}
		p := Product{ID: a.ID, Artikelname: fieldText(a, "artikelname"), Bildpfad: fieldText(a, "bildpfad")}
		if _, v, ok := a.Lookup("preis"); ok {
			if n, isNum := v.AsNumber(); isNum {
				p.Preis = &n
			}
		}
		out = append(out, p)
	}
	return out
}

// Products resolves the reference array stored in field of one record against
// the loaded articles.
func (m *Manager) Products(ctx context.Context, collection, id, field string) ([]Product, error) {
	scope := opScope{op: "resolve_products", action: "read", collection: collection, recordID: id, field: field}
	var out []Product
	err := m.run(ctx, scope, func(context.Context) error {
		snap := m.Snapshot()
		c, ok := snap.Collection(collection)
		if !ok {
			return validationError(scope, "unknown collection")
		}
		rec, _, ok := c.Record(id)
		if !ok {
			return validationError(scope, "record not loaded")
		}
		articles, _ := snap.Collection(ProductsCollection)
		_, refs, _ := rec.Lookup(field)
		out = ResolveProducts(articles.Records, refs)
		return nil
	})
	return out, err
}
