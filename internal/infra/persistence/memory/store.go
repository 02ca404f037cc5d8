// Package memory provides an in-memory document store used for tests and
// ephemeral environments. Collections hold documents keyed by document id and
// array mutations follow document-database union/remove semantics.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"datamanager/internal/infra/persistence/document"
	"datamanager/pkg/domain"
)

var (
	_ domain.RecordStore    = (*Store)(nil)
	_ domain.RecordInserter = (*Store)(nil)
)

type collection struct {
	ids  []string
	docs map[string]document.Fields
}

// Store keeps documents in process memory.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{collections: make(map[string]*collection)}
}

func (s *Store) collectionLocked(name string, create bool) *collection {
	c, ok := s.collections[name]
	if !ok && create {
		c = &collection{docs: make(map[string]document.Fields)}
		s.collections[name] = c
	}
	return c
}

// Insert stores record as a new document, replacing any document with the same
// id. An empty id is replaced by a random UUID.
func (s *Store) Insert(ctx context.Context, name string, record domain.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := record.ID
	if id == "" {
		id = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collectionLocked(name, true)
	if _, exists := c.docs[id]; !exists {
		c.ids = append(c.ids, id)
	}
	c.docs[id] = document.Fields(record.Fields).Clone()
	return id, nil
}

// FetchCollection returns documents in insertion order. Unknown collections are
// empty.
func (s *Store) FetchCollection(ctx context.Context, name string) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.collectionLocked(name, false)
	if c == nil {
		return []domain.Record{}, nil
	}
	out := make([]domain.Record, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.docs[id].Record(id))
	}
	return out, nil
}

// PatchField sets one field of an existing document.
func (s *Store) PatchField(ctx context.Context, name, id, field string, value domain.Value) error {
	return s.mutate(ctx, name, id, func(f document.Fields) error {
		f.Set(field, value)
		return nil
	})
}

// AppendArrayElement unions value into the array stored in field.
func (s *Store) AppendArrayElement(ctx context.Context, name, id, field string, value domain.Value) error {
	return s.mutate(ctx, name, id, func(f document.Fields) error {
		return f.Union(field, value)
	})
}

// RemoveArrayElement removes every element equal to value from field.
func (s *Store) RemoveArrayElement(ctx context.Context, name, id, field string, value domain.Value) error {
	return s.mutate(ctx, name, id, func(f document.Fields) error {
		return f.Remove(field, value)
	})
}

// DeleteRecord removes a document.
func (s *Store) DeleteRecord(ctx context.Context, name, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collectionLocked(name, false)
	if c == nil {
		return domain.ErrNotFound{Collection: name, ID: id}
	}
	if _, ok := c.docs[id]; !ok {
		return domain.ErrNotFound{Collection: name, ID: id}
	}
	delete(c.docs, id)
	for i, existing := range c.ids {
		if existing == id {
			c.ids = append(c.ids[:i:i], c.ids[i+1:]...)
			break
		}
	}
	return nil
}

// mutate applies fn to a copy of the document and stores it only when fn succeeds.
func (s *Store) mutate(ctx context.Context, name, id string, fn func(document.Fields) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collectionLocked(name, false)
	if c == nil {
		return domain.ErrNotFound{Collection: name, ID: id}
	}
	doc, ok := c.docs[id]
	if !ok {
		return domain.ErrNotFound{Collection: name, ID: id}
	}
	next := doc.Clone()
	if err := fn(next); err != nil {
		return fmt.Errorf("%s/%s: %w", name, id, err)
	}
	c.docs[id] = next
	return nil
}

// Len returns the number of documents in a collection.
func (s *Store) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.collectionLocked(name, false)
	if c == nil {
		return 0
	}
	return len(c.ids)
}
