package domain

import (
	"encoding/json"
	"sort"
	"strings"
)

// Record is one backend-persisted entity: a backend-assigned identifier plus typed
// field values. Records are treated as immutable; the With/Without helpers return
// modified copies.
type Record struct {
	ID     string
	Fields map[string]Value
}

// NewRecord builds a record, copying the provided fields.
func NewRecord(id string, fields map[string]Value) Record {
	out := make(map[string]Value, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return Record{ID: id, Fields: out}
}

// Get returns the value stored under the exact field name.
func (r Record) Get(field string) (Value, bool) {
	v, ok := r.Fields[field]
	return v, ok
}

// Lookup returns the value for field, falling back to a case-insensitive match.
// The matched key is returned alongside the value.
func (r Record) Lookup(field string) (string, Value, bool) {
	if v, ok := r.Fields[field]; ok {
		return field, v, true
	}
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		if strings.EqualFold(k, field) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "", Value{}, false
	}
	sort.Strings(keys)
	return keys[0], r.Fields[keys[0]], true
}

// With returns a copy of the record with field set to v.
func (r Record) With(field string, v Value) Record {
	out := make(map[string]Value, len(r.Fields)+1)
	for k, e := range r.Fields {
		out[k] = e
	}
	out[field] = v
	return Record{ID: r.ID, Fields: out}
}

// Without returns a copy of the record with field removed.
func (r Record) Without(field string) Record {
	out := make(map[string]Value, len(r.Fields))
	for k, e := range r.Fields {
		if k != field {
			out[k] = e
		}
	}
	return Record{ID: r.ID, Fields: out}
}

// FieldNames returns the record's field names sorted alphabetically.
func (r Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

type recordJSON struct {
	ID     string           `json:"id"`
	Fields map[string]Value `json:"fields"`
}

// MarshalJSON implements json.Marshaler.
func (r Record) MarshalJSON() ([]byte, error) {
	fields := r.Fields
	if fields == nil {
		fields = map[string]Value{}
	}
	return json.Marshal(recordJSON{ID: r.ID, Fields: fields})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = NewRecord(raw.ID, raw.Fields)
	return nil
}

// RecordFromDocument converts a flat decoded document into a record. The id is
// taken from the first present idFields entry whose value is a non-empty string
// or a number; the id field itself stays in Fields so it can be displayed.
func RecordFromDocument(doc map[string]any, idFields ...string) (Record, error) {
	fields := make(map[string]Value, len(doc))
	for k, raw := range doc {
		v, err := ValueFromAny(raw)
		if err != nil {
			return Record{}, err
		}
		fields[k] = v
	}
	var id string
	for _, name := range idFields {
		v, ok := fields[name]
		if !ok {
			continue
		}
		switch v.Kind() {
		case KindString, KindNumber:
			id = v.Text()
		case KindNull, KindBoolean, KindTimestamp, KindArray, KindMap:
		}
		if id != "" {
			break
		}
	}
	return Record{ID: id, Fields: fields}, nil
}

// Document flattens the record into plain Go values.
func (r Record) Document() map[string]any {
	out := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		out[k] = v.Native()
	}
	return out
}
