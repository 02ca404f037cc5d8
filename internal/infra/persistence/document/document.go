// Package document implements the field-level mutation semantics shared by the
// document-store backends: set a field, union an element into an array and
// remove every equal element from an array.
package document

import (
	"encoding/json"
	"fmt"

	"datamanager/pkg/domain"
)

// Fields is one stored document body.
type Fields map[string]domain.Value

// Clone returns a shallow copy; values are immutable.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Set stores value under field.
func (f Fields) Set(field string, value domain.Value) {
	f[field] = value
}

// Union appends value to the array in field unless an equal element is already
// present. An absent or null field becomes a one-element array.
func (f Fields) Union(field string, value domain.Value) error {
	current := f[field]
	if current.Contains(value) {
		return nil
	}
	next, err := current.Append(value)
	if err != nil {
		return fmt.Errorf("field %s: %w", field, err)
	}
	f[field] = next
	return nil
}

// Remove drops every element equal to value from the array in field. An absent
// field is left absent.
func (f Fields) Remove(field string, value domain.Value) error {
	current, ok := f[field]
	if !ok {
		return nil
	}
	next, err := current.Remove(value)
	if err != nil {
		return fmt.Errorf("field %s: %w", field, err)
	}
	f[field] = next
	return nil
}

// Record converts the document into a record. The document id is exposed as an
// "id" field unless the body already carries one.
func (f Fields) Record(id string) domain.Record {
	r := domain.NewRecord(id, f)
	if _, ok := r.Fields["id"]; !ok {
		r.Fields["id"] = domain.String(id)
	}
	return r
}

// Encode serializes the document body as a JSON object.
func (f Fields) Encode() ([]byte, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]domain.Value(f))
}

// Decode parses a JSON object produced by Encode.
func Decode(data []byte) (Fields, error) {
	var out map[string]domain.Value
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if out == nil {
		out = map[string]domain.Value{}
	}
	return Fields(out), nil
}
