package core

import (
	"context"
	"fmt"

	"datamanager/pkg/domain"
)

// pendingWrite identifies an optimistic mutation awaiting its backend call.
type pendingWrite struct {
	key   fieldKey
	gen   uint64
	value domain.Value
}

// fieldWrites tracks the in-flight mutations of one field in issue order. base
// is the last value known to the backend; had is false when the field was absent.
type fieldWrites struct {
	base         domain.Value
	had          bool
	confirmedGen uint64
	pending      []pendingWrite
}

func (fw *fieldWrites) remove(gen uint64) (newest bool) {
	for i, p := range fw.pending {
		if p.gen == gen {
			newest = i == len(fw.pending)-1
			fw.pending = append(fw.pending[:i], fw.pending[i+1:]...)
			return newest
		}
	}
	return false
}

// UpdateField sets one field optimistically. The snapshot carrying the new value
// is emitted before the backend call. When the backend rejects the write the
// field falls back to the newest write still in flight, or to the last value the
// backend accepted when none is.
func (m *Manager) UpdateField(ctx context.Context, collection, id, field string, value domain.Value) error {
	scope := opScope{op: "update_field", action: "update", collection: collection, recordID: id, field: field}
	return m.run(ctx, scope, func(ctx context.Context) error {
		pending, err := m.applyOptimistic(scope, func(_ domain.Column, _ bool, _ domain.Value) (domain.Value, error) {
			return value, nil
		})
		if err != nil {
			return err
		}
		return m.confirm(ctx, scope, pending, domain.ErrWriteFailure, func(ctx context.Context) error {
			return m.store.PatchField(ctx, collection, id, pending.key.field, value)
		})
	})
}

// AppendArrayElement appends value to an array field optimistically. An absent
// field is treated as an empty array.
func (m *Manager) AppendArrayElement(ctx context.Context, collection, id, field string, value domain.Value) error {
	scope := opScope{op: "append_array_element", action: "update", collection: collection, recordID: id, field: field}
	return m.run(ctx, scope, func(ctx context.Context) error {
		pending, err := m.applyOptimistic(scope, func(col domain.Column, known bool, current domain.Value) (domain.Value, error) {
			if err := checkArrayTarget(col, known, current); err != nil {
				return domain.Value{}, err
			}
			return current.Append(value)
		})
		if err != nil {
			return err
		}
		return m.confirm(ctx, scope, pending, domain.ErrWriteFailure, func(ctx context.Context) error {
			return m.store.AppendArrayElement(ctx, collection, id, pending.key.field, value)
		})
	})
}

// RemoveArrayElement drops every element equal to value from an array field
// optimistically.
func (m *Manager) RemoveArrayElement(ctx context.Context, collection, id, field string, value domain.Value) error {
	scope := opScope{op: "remove_array_element", action: "update", collection: collection, recordID: id, field: field}
	return m.run(ctx, scope, func(ctx context.Context) error {
		pending, err := m.applyOptimistic(scope, func(col domain.Column, known bool, current domain.Value) (domain.Value, error) {
			if err := checkArrayTarget(col, known, current); err != nil {
				return domain.Value{}, err
			}
			return current.Remove(value)
		})
		if err != nil {
			return err
		}
		return m.confirm(ctx, scope, pending, domain.ErrWriteFailure, func(ctx context.Context) error {
			return m.store.RemoveArrayElement(ctx, collection, id, pending.key.field, value)
		})
	})
}

// DeleteRecord removes a record once the backend confirms the delete. On failure
// the record stays in the snapshot.
func (m *Manager) DeleteRecord(ctx context.Context, collection, id string) error {
	scope := opScope{op: "delete_record", action: "delete", collection: collection, recordID: id}
	return m.run(ctx, scope, func(ctx context.Context) error {
		m.mu.Lock()
		_, _, err := m.lookupRecordLocked(scope)
		m.mu.Unlock()
		if err != nil {
			return err
		}
		if err := m.store.DeleteRecord(ctx, collection, id); err != nil {
			return &domain.OperationError{Kind: domain.ErrDeleteFailure, Op: scope.op, Collection: collection, RecordID: id, Err: err}
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		c := m.state.Collections[collection]
		_, idx, ok := c.Record(id)
		if !ok {
			return nil
		}
		records := make([]domain.Record, 0, len(c.Records)-1)
		records = append(records, c.Records[:idx]...)
		records = append(records, c.Records[idx+1:]...)
		c.Records = records
		m.publishLocked(m.state.withCollection(c))
		return nil
	})
}

func checkArrayTarget(col domain.Column, known bool, current domain.Value) error {
	if known && col.Type != domain.TypeArray {
		return fmt.Errorf("column %s is declared %s", col.Name, col.Type)
	}
	switch current.Kind() {
	case domain.KindNull, domain.KindArray:
		return nil
	case domain.KindString, domain.KindNumber, domain.KindBoolean, domain.KindTimestamp, domain.KindMap:
		return fmt.Errorf("field holds a %s value", current.Kind())
	default:
		panic(fmt.Sprintf("core: unhandled value kind %s", current.Kind()))
	}
}

// lookupRecordLocked validates the scope and returns the addressed record.
func (m *Manager) lookupRecordLocked(scope opScope) (domain.Record, int, error) {
	c, ok := m.state.Collections[scope.collection]
	if !ok {
		return domain.Record{}, -1, validationError(scope, "unknown collection")
	}
	if scope.recordID == "" {
		return domain.Record{}, -1, validationError(scope, "record id required")
	}
	rec, idx, ok := c.Record(scope.recordID)
	if !ok {
		return domain.Record{}, -1, validationError(scope, "record not loaded")
	}
	return rec, idx, nil
}

// applyOptimistic validates the target, computes the new field value with next
// and publishes it. The returned pendingWrite identifies the mutation for a
// later revert.
func (m *Manager) applyOptimistic(scope opScope, next func(col domain.Column, known bool, current domain.Value) (domain.Value, error)) (pendingWrite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if scope.field == "" {
		return pendingWrite{}, validationError(scope, "field required")
	}
	rec, idx, err := m.lookupRecordLocked(scope)
	if err != nil {
		return pendingWrite{}, err
	}
	key := m.resolveFieldName(scope.collection, rec, scope.field)
	col, known := m.catalog.Column(scope.collection, key)
	previous, had := rec.Get(key)
	value, err := next(col, known, previous)
	if err != nil {
		return pendingWrite{}, validationError(scope, err.Error())
	}

	m.genSeq++
	fk := fieldKey{collection: scope.collection, id: scope.recordID, field: key}
	fw, ok := m.writes[fk]
	if !ok {
		fw = &fieldWrites{base: previous, had: had}
		m.writes[fk] = fw
	}
	pending := pendingWrite{key: fk, gen: m.genSeq, value: value}
	fw.pending = append(fw.pending, pending)

	c := m.state.Collections[scope.collection]
	records := make([]domain.Record, len(c.Records))
	copy(records, c.Records)
	records[idx] = rec.With(key, value)
	c.Records = records
	m.publishLocked(m.state.withCollection(c))

	return pending, nil
}

// confirm issues the backend call for an optimistic mutation and reverts it on
// failure.
func (m *Manager) confirm(ctx context.Context, scope opScope, pending pendingWrite, kind error, call func(context.Context) error) error {
	callErr := call(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	fw, ok := m.writes[pending.key]
	newest := ok && fw.remove(pending.gen)
	if ok && callErr == nil && pending.gen > fw.confirmedGen {
		fw.base, fw.had, fw.confirmedGen = pending.value, true, pending.gen
	}
	if callErr != nil {
		switch {
		case !newest:
			m.opts.logger.Info("skipping revert, newer write pending", scope.logArgs()...)
		case len(fw.pending) > 0:
			m.restoreLocked(pending.key, fw.pending[len(fw.pending)-1].value, true)
		default:
			m.restoreLocked(pending.key, fw.base, fw.had)
		}
	}
	if ok && len(fw.pending) == 0 {
		delete(m.writes, pending.key)
	}
	if callErr == nil {
		return nil
	}
	return &domain.OperationError{
		Kind:       kind,
		Op:         scope.op,
		Collection: scope.collection,
		RecordID:   scope.recordID,
		Field:      pending.key.field,
		Err:        callErr,
	}
}

// restoreLocked puts value back into the field. An absent value removes the
// field, or resets it to an empty array for array columns.
func (m *Manager) restoreLocked(key fieldKey, value domain.Value, had bool) {
	c, ok := m.state.Collections[key.collection]
	if !ok {
		return
	}
	rec, idx, ok := c.Record(key.id)
	if !ok {
		return
	}
	var restored domain.Record
	switch {
	case had:
		restored = rec.With(key.field, value)
	default:
		if col, known := m.catalog.Column(c.Name, key.field); known && col.Type == domain.TypeArray {
			restored = rec.With(key.field, domain.Array())
		} else {
			restored = rec.Without(key.field)
		}
	}
	records := make([]domain.Record, len(c.Records))
	copy(records, c.Records)
	records[idx] = restored
	c.Records = records
	m.publishLocked(m.state.withCollection(c))
	m.opts.logger.Warn("reverted optimistic write",
		"collection", key.collection, "record_id", key.id, "field", key.field)
}
