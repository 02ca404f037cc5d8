package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"time"

	"datamanager/internal/blob"
	"datamanager/pkg/domain"
)

const placeholderImage = "placeholder.png"

type seedDoc struct {
	collection string
	id         string
	fields     map[string]domain.Value
}

func demoDocuments(now time.Time) []seedDoc {
	s, n, b := domain.String, domain.Number, domain.Bool
	img := s(blob.ImagePathPrefix + placeholderImage)
	return []seedDoc{
		{"artikel", "milch-rewe", map[string]domain.Value{
			"artikelname": s("Frische Vollmilch 3,5%"), "markt": s("Rewe"), "preis": n(1.19),
			"angebot": b(true), "topangebot": b(false), "food": b(true), "produkt": s("Milch"),
			"bildpfad": img, "zusatzinfos": domain.Array(s("1 l")), "timestamp": domain.Timestamp(now),
		}},
		{"artikel", "brot-penny", map[string]domain.Value{
			"artikelname": s("Roggenmischbrot"), "markt": s("Penny"), "preis": n(1.49),
			"angebot": b(false), "food": b(true), "produkt": s("Brot"),
			"bildpfad": img, "timestamp": domain.Timestamp(now),
		}},
		{"artikel", "spuelmittel-penny", map[string]domain.Value{
			"artikelname": s("Spülmittel"), "markt": s("Penny"), "preis": n(0.85),
			"angebot": b(true), "food": b(false), "bildpfad": img, "timestamp": domain.Timestamp(now),
		}},
		{"einkaufszettel", "liste-1", map[string]domain.Value{
			"name": s("Wocheneinkauf"), "uid": s("user-1"),
			"produktid": domain.Array(s("milch-rewe"), s("brot-penny")),
		}},
		{"rezepte", "r-1", map[string]domain.Value{
			"title": s("Pfannkuchen"), "difficulty": s("leicht"), "totalTime": n(25),
			"image_path": img, "ingredients": domain.Array(s("Milch"), s("Mehl"), s("Eier")),
			"steps":  domain.Array(s("Teig rühren"), s("Ausbacken")),
			"rating": domain.Map(map[string]domain.Value{"average": n(4.5), "count": n(12)}),
		}},
		{"rezeptzettel", "rz-1", map[string]domain.Value{
			"name": s("Sonntag"), "uid": s("user-1"), "produktid": domain.Array(s("r-1")),
		}},
		{"users", "user-1", map[string]domain.Value{
			"name": s("Demo"), "uid": s("user-1"), "einkaufszettelID": s("liste-1"),
			"rezeptzettelID": s("rz-1"), "likedRecipes": domain.Array(s("r-1")),
		}},
	}
}

// seed inserts the demo documents and uploads the placeholder image they refer
// to. Existing documents with the same ids are replaced.
func seed(ctx context.Context, store domain.RecordStore, media blob.Store) error {
	inserter, ok := store.(domain.RecordInserter)
	if !ok {
		return fmt.Errorf("record store %T does not support inserts", store)
	}
	for _, d := range demoDocuments(time.Now().UTC()) {
		if _, err := inserter.Insert(ctx, d.collection, domain.NewRecord(d.id, d.fields)); err != nil {
			return fmt.Errorf("insert %s/%s: %w", d.collection, d.id, err)
		}
	}
	return uploadPlaceholder(ctx, media)
}

func uploadPlaceholder(ctx context.Context, media blob.Store) error {
	if _, body, err := media.Get(ctx, placeholderImage); err == nil {
		return body.Close()
	} else if !errors.Is(err, blob.ErrNotFound) {
		return err
	}
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 0xcc, G: 0xcc, B: 0xcc, A: 0xff})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	_, err := media.Put(ctx, placeholderImage, &buf, blob.PutOptions{
		ContentType: "image/png",
		Metadata:    map[string]string{"source": "seed"},
	})
	return err
}
