package domain

// LoadStatus tracks the fetch lifecycle of a collection.
type LoadStatus string

// Collection load states.
const (
	StatusLoading LoadStatus = "loading"
	StatusLoaded  LoadStatus = "loaded"
	StatusFailed  LoadStatus = "failed"
)

// Collection is a named set of records sharing one fixed column schema.
// Columns are kept sorted by Order.
type Collection struct {
	Name    string     `json:"name"`
	Columns []Column   `json:"columns"`
	Records []Record   `json:"records"`
	Status  LoadStatus `json:"status"`
}

// Column returns the column with the given name.
func (c Collection) Column(name string) (Column, bool) {
	for _, col := range c.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// ColumnIndex returns the position of the named column in the sorted column list.
func (c Collection) ColumnIndex(name string) int {
	for i, col := range c.Columns {
		if col.Name == name {
			return i
		}
	}
	return -1
}

// VisibleColumns returns the visible columns in display order.
func (c Collection) VisibleColumns() []Column {
	out := make([]Column, 0, len(c.Columns))
	for _, col := range c.Columns {
		if col.Visible {
			out = append(out, col)
		}
	}
	return out
}

// Record returns the record with the given id and its index.
func (c Collection) Record(id string) (Record, int, bool) {
	for i, r := range c.Records {
		if r.ID == id {
			return r, i, true
		}
	}
	return Record{}, -1, false
}
