package core

import "datamanager/pkg/domain"

// State is an immutable snapshot of every collection plus the active selection.
// Seq increases by one with every emission.
type State struct {
	Seq         uint64                       `json:"seq"`
	Active      string                       `json:"active"`
	Order       []string                     `json:"order"`
	Collections map[string]domain.Collection `json:"collections"`
}

// Collection returns the named collection from the snapshot.
func (s State) Collection(name string) (domain.Collection, bool) {
	c, ok := s.Collections[name]
	return c, ok
}

// withCollection returns a shallow copy of s with c replacing its namesake.
func (s State) withCollection(c domain.Collection) State {
	next := s
	next.Collections = make(map[string]domain.Collection, len(s.Collections))
	for k, v := range s.Collections {
		next.Collections[k] = v
	}
	next.Collections[c.Name] = c
	return next
}

// ActiveView is the active collection as a table consumer renders it.
type ActiveView struct {
	Seq            uint64            `json:"seq"`
	Name           string            `json:"name"`
	Status         domain.LoadStatus `json:"status"`
	Columns        []domain.Column   `json:"columns"`
	VisibleColumns []domain.Column   `json:"visible_columns"`
	Records        []domain.Record   `json:"records"`
}

// ActiveView derives the active collection view from the snapshot.
func (s State) ActiveView() ActiveView {
	c := s.Collections[s.Active]
	records := c.Records
	if records == nil {
		records = []domain.Record{}
	}
	return ActiveView{
		Seq:            s.Seq,
		Name:           s.Active,
		Status:         c.Status,
		Columns:        domain.SortColumns(c.Columns),
		VisibleColumns: c.VisibleColumns(),
		Records:        records,
	}
}

// CollectionSummary is a compact listing entry used by the collection switcher.
type CollectionSummary struct {
	Name    string            `json:"name"`
	Status  domain.LoadStatus `json:"status"`
	Records int               `json:"records"`
	Active  bool              `json:"active"`
}

// Summaries lists collections in catalog order.
func (s State) Summaries() []CollectionSummary {
	out := make([]CollectionSummary, 0, len(s.Order))
	for _, name := range s.Order {
		c := s.Collections[name]
		out = append(out, CollectionSummary{
			Name:    name,
			Status:  c.Status,
			Records: len(c.Records),
			Active:  name == s.Active,
		})
	}
	return out
}
