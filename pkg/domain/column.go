package domain

import (
	"fmt"
	"sort"
)

// ColumnType names the declared value type of a column.
type ColumnType string

// Supported column types.
const (
	TypeString    ColumnType = "string"
	TypeNumber    ColumnType = "number"
	TypeBoolean   ColumnType = "boolean"
	TypeTimestamp ColumnType = "timestamp"
	TypeArray     ColumnType = "array"
	TypeMap       ColumnType = "map"
)

// Valid reports whether t is one of the supported column types.
func (t ColumnType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeTimestamp, TypeArray, TypeMap:
		return true
	default:
		return false
	}
}

// Kind returns the value kind a column of this type holds.
func (t ColumnType) Kind() Kind {
	switch t {
	case TypeString:
		return KindString
	case TypeNumber:
		return KindNumber
	case TypeBoolean:
		return KindBoolean
	case TypeTimestamp:
		return KindTimestamp
	case TypeArray:
		return KindArray
	case TypeMap:
		return KindMap
	default:
		return KindNull
	}
}

// Column is the display metadata of one record field.
type Column struct {
	Name    string     `json:"name"`
	Type    ColumnType `json:"type"`
	Visible bool       `json:"visible"`
	Order   int        `json:"order"`
}

// SortColumns orders columns by Order, keeping declaration order for ties.
func SortColumns(columns []Column) []Column {
	out := make([]Column, len(columns))
	copy(out, columns)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// RenumberColumns assigns each column its position as Order, producing a dense
// 0-based permutation.
func RenumberColumns(columns []Column) []Column {
	out := make([]Column, len(columns))
	for i, c := range columns {
		c.Order = i
		out[i] = c
	}
	return out
}

// MoveColumn removes the column at from and reinserts it at to using list
// semantics: a to index at or beyond the shortened length appends. The result is
// renumbered densely. Inputs are not modified.
func MoveColumn(columns []Column, from, to int) ([]Column, error) {
	if from < 0 || from >= len(columns) {
		return nil, fmt.Errorf("column index %d out of range [0,%d)", from, len(columns))
	}
	if to < 0 {
		return nil, fmt.Errorf("column index %d out of range", to)
	}
	moved := columns[from]
	rest := make([]Column, 0, len(columns))
	rest = append(rest, columns[:from]...)
	rest = append(rest, columns[from+1:]...)
	if to >= len(rest) {
		rest = append(rest, moved)
	} else {
		rest = append(rest[:to], append([]Column{moved}, rest[to:]...)...)
	}
	return RenumberColumns(rest), nil
}
