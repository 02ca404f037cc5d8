package domain

import "context"

// RecordStore is the narrow contract the collection state manager consumes from a
// persistence backend. Implementations translate each operation into their own
// transport and must not retain state between calls beyond their backing store.
type RecordStore interface {
	// FetchCollection returns every record of the named collection.
	FetchCollection(ctx context.Context, collection string) ([]Record, error)
	// PatchField sets one field of one record.
	PatchField(ctx context.Context, collection, id, field string, value Value) error
	// AppendArrayElement adds value to the array stored in field, creating the
	// array when the field is absent.
	AppendArrayElement(ctx context.Context, collection, id, field string, value Value) error
	// RemoveArrayElement removes elements equal to value from the array stored in field.
	RemoveArrayElement(ctx context.Context, collection, id, field string, value Value) error
	// DeleteRecord removes one record.
	DeleteRecord(ctx context.Context, collection, id string) error
}

// RecordInserter is implemented by backends that can create documents directly.
// It is used for seeding and is not part of the manager contract.
type RecordInserter interface {
	// Insert stores a new record and returns its id. An empty record ID asks the
	// backend to assign one.
	Insert(ctx context.Context, collection string, record Record) (string, error)
}
