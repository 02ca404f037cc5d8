package core

import (
	"context"
	"fmt"

	"datamanager/pkg/domain"
)

// ToggleColumnVisibility flips the visibility of one column. Order is untouched
// and nothing is persisted.
func (m *Manager) ToggleColumnVisibility(ctx context.Context, collection, column string) error {
	scope := opScope{op: "toggle_column_visibility", action: "update", collection: collection, field: column}
	return m.run(ctx, scope, func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		c, ok := m.state.Collections[collection]
		if !ok {
			return validationError(scope, "unknown collection")
		}
		idx := c.ColumnIndex(column)
		if idx < 0 {
			return validationError(scope, "unknown column")
		}
		cols := make([]domain.Column, len(c.Columns))
		copy(cols, c.Columns)
		cols[idx].Visible = !cols[idx].Visible
		c.Columns = cols
		m.publishLocked(m.state.withCollection(c))
		return nil
	})
}

// ReorderColumn moves the column at index from of the order-sorted list to index
// to, appending when to is at or beyond the shortened list. Orders are renumbered
// densely. Moving a column onto its own index emits nothing.
func (m *Manager) ReorderColumn(ctx context.Context, collection string, from, to int) error {
	scope := opScope{op: "reorder_column", action: "update", collection: collection}
	return m.run(ctx, scope, func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		c, ok := m.state.Collections[collection]
		if !ok {
			return validationError(scope, "unknown collection")
		}
		sorted := domain.SortColumns(c.Columns)
		if from < 0 || from >= len(sorted) || to < 0 {
			return validationError(scope, fmt.Sprintf("column move %d -> %d out of range", from, to))
		}
		if from == to {
			return nil
		}
		cols, err := domain.MoveColumn(sorted, from, to)
		if err != nil {
			return validationError(scope, err.Error())
		}
		c.Columns = cols
		m.publishLocked(m.state.withCollection(c))
		return nil
	})
}
