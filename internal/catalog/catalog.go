// Package catalog holds the static collection and column table the data manager
// operates on. The table is code-defined; collections and columns are never
// inferred from backend data.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"datamanager/pkg/domain"
)

// DefaultCollection is the collection selected when the manager starts.
const DefaultCollection = "artikel"

// ErrInvalidCatalog is wrapped by every validation failure returned from New.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Definition describes one collection before validation.
type Definition struct {
	Name    string
	Columns []domain.Column
}

// Catalog is a validated, immutable collection table. Column orders are
// normalized to a dense 0-based permutation per collection.
type Catalog struct {
	names       []string
	collections map[string][]domain.Column
	defaultName string
}

// New validates the supplied definitions. Collection names and column names
// within a collection must be unique and non-empty, and every column type must be
// supported. The first definition becomes the default unless one is named
// DefaultCollection.
func New(defs ...Definition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no collections", ErrInvalidCatalog)
	}
	c := &Catalog{collections: make(map[string][]domain.Column, len(defs))}
	for _, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: collection name required", ErrInvalidCatalog)
		}
		if _, dup := c.collections[name]; dup {
			return nil, fmt.Errorf("%w: duplicate collection %q", ErrInvalidCatalog, name)
		}
		seen := make(map[string]struct{}, len(def.Columns))
		for _, col := range def.Columns {
			if strings.TrimSpace(col.Name) == "" {
				return nil, fmt.Errorf("%w: %s: column name required", ErrInvalidCatalog, name)
			}
			if _, dup := seen[col.Name]; dup {
				return nil, fmt.Errorf("%w: %s: duplicate column %q", ErrInvalidCatalog, name, col.Name)
			}
			if !col.Type.Valid() {
				return nil, fmt.Errorf("%w: %s.%s: unsupported type %q", ErrInvalidCatalog, name, col.Name, col.Type)
			}
			seen[col.Name] = struct{}{}
		}
		c.names = append(c.names, name)
		c.collections[name] = domain.RenumberColumns(domain.SortColumns(def.Columns))
	}
	c.defaultName = c.names[0]
	if _, ok := c.collections[DefaultCollection]; ok {
		c.defaultName = DefaultCollection
	}
	return c, nil
}

// MustNew is New for statically known tables. It panics on invalid input.
func MustNew(defs ...Definition) *Catalog {
	c, err := New(defs...)
	if err != nil {
		panic(err)
	}
	return c
}

// Names returns collection names in declaration order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Has reports whether name is a catalog collection.
func (c *Catalog) Has(name string) bool {
	_, ok := c.collections[name]
	return ok
}

// DefaultName returns the initially selected collection.
func (c *Catalog) DefaultName() string { return c.defaultName }

// Columns returns a copy of the normalized columns of a collection.
func (c *Catalog) Columns(name string) ([]domain.Column, bool) {
	cols, ok := c.collections[name]
	if !ok {
		return nil, false
	}
	out := make([]domain.Column, len(cols))
	copy(out, cols)
	return out, true
}

// Column looks a column up by exact name, falling back to a case-insensitive
// match.
func (c *Catalog) Column(collection, field string) (domain.Column, bool) {
	cols, ok := c.collections[collection]
	if !ok {
		return domain.Column{}, false
	}
	for _, col := range cols {
		if col.Name == field {
			return col, true
		}
	}
	matches := make([]domain.Column, 0, 1)
	for _, col := range cols {
		if strings.EqualFold(col.Name, field) {
			matches = append(matches, col)
		}
	}
	if len(matches) == 0 {
		return domain.Column{}, false
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })
	return matches[0], true
}

func col(name string, typ domain.ColumnType, visible bool, order int) domain.Column {
	return domain.Column{Name: name, Type: typ, Visible: visible, Order: order}
}

// Definitions returns the built-in collection table.
func Definitions() []Definition {
	const (
		str = domain.TypeString
		num = domain.TypeNumber
		boo = domain.TypeBoolean
		ts  = domain.TypeTimestamp
		arr = domain.TypeArray
		mp  = domain.TypeMap
	)
	return []Definition{
		{Name: "artikel", Columns: []domain.Column{
			col("angebot", boo, true, 0),
			col("artikelname", str, true, 3),
			col("bildpfad", str, true, 2),
			col("food", boo, true, 1),
			col("markt", str, true, 5),
			col("preis", num, true, 6),
			col("produkt", str, true, 4),
			col("topangebot", boo, false, 7),
			col("zusatzinfos", arr, false, 8),
			col("id", str, false, 9),
			col("timestamp", ts, false, 10),
		}},
		{Name: "einkaufszettel", Columns: []domain.Column{
			col("name", str, true, 0),
			col("produktid", arr, true, 1),
			col("uid", str, true, 2),
		}},
		{Name: "rezepte", Columns: []domain.Column{
			col("difficulty", str, true, 0),
			col("id", str, true, 1),
			col("image_path", str, true, 2),
			col("image_urls", arr, true, 3),
			col("ingredients", arr, true, 4),
			col("nutrition", mp, true, 5),
			col("rating", mp, true, 6),
			col("source", str, true, 7),
			col("source_url", str, true, 8),
			col("steps", arr, true, 9),
			col("title", str, true, 10),
			col("totalTime", num, true, 11),
		}},
		{Name: "rezeptzettel", Columns: []domain.Column{
			col("name", str, true, 0),
			col("produktid", arr, true, 1),
			col("uid", str, true, 2),
		}},
		{Name: "users", Columns: []domain.Column{
			col("einkaufszettelID", str, true, 0),
			col("likedRecipes", arr, true, 1),
			col("name", str, true, 2),
			col("profileImageUrl", str, true, 3),
			col("rezeptzettelID", str, true, 4),
			col("uid", str, true, 5),
		}},
	}
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return MustNew(Definitions()...)
}
