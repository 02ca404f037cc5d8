// Package sqlite provides a durable document store on an embedded SQLite file.
// Each document is one row holding its JSON body; field mutations are
// read-modify-write inside a transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"datamanager/internal/infra/persistence/document"
	"datamanager/pkg/domain"
)

var (
	_ domain.RecordStore    = (*Store)(nil)
	_ domain.RecordInserter = (*Store)(nil)
)

const defaultPath = "datamanager.db"

// Store persists documents to SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating when needed) the database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and avoids SQLITE_BUSY between them.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		payload TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Insert upserts record as a document. An empty id is replaced by a random UUID.
func (s *Store) Insert(ctx context.Context, collection string, record domain.Record) (string, error) {
	id := record.ID
	if id == "" {
		id = uuid.NewString()
	}
	payload, err := document.Fields(record.Fields).Encode()
	if err != nil {
		return "", fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO documents(collection, id, payload) VALUES(?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET payload = excluded.payload`,
		collection, id, string(payload)); err != nil {
		return "", fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}
	return id, nil
}

// FetchCollection returns documents in insertion order.
func (s *Store) FetchCollection(ctx context.Context, collection string) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload FROM documents WHERE collection = ? ORDER BY rowid`, collection)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]domain.Record, 0)
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		fields, err := document.Decode([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, err)
		}
		out = append(out, fields.Record(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return out, nil
}

// PatchField sets one field of an existing document.
func (s *Store) PatchField(ctx context.Context, collection, id, field string, value domain.Value) error {
	return s.mutate(ctx, collection, id, func(f document.Fields) error {
		f.Set(field, value)
		return nil
	})
}

// AppendArrayElement unions value into the array stored in field.
func (s *Store) AppendArrayElement(ctx context.Context, collection, id, field string, value domain.Value) error {
	return s.mutate(ctx, collection, id, func(f document.Fields) error {
		return f.Union(field, value)
	})
}

// RemoveArrayElement removes every element equal to value from field.
func (s *Store) RemoveArrayElement(ctx context.Context, collection, id, field string, value domain.Value) error {
	return s.mutate(ctx, collection, id, func(f document.Fields) error {
		return f.Remove(field, value)
	})
}

// DeleteRecord removes a document.
func (s *Store) DeleteRecord(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return domain.ErrNotFound{Collection: collection, ID: id}
	}
	return nil
}

func (s *Store) mutate(ctx context.Context, collection, id string, fn func(document.Fields) error) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	var payload string
	err = tx.QueryRowContext(ctx,
		`SELECT payload FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound{Collection: collection, ID: id}
	}
	if err != nil {
		return fmt.Errorf("select %s/%s: %w", collection, id, err)
	}
	fields, err := document.Decode([]byte(payload))
	if err != nil {
		return fmt.Errorf("%s/%s: %w", collection, id, err)
	}
	if err := fn(fields); err != nil {
		return fmt.Errorf("%s/%s: %w", collection, id, err)
	}
	encoded, err := fields.Encode()
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET payload = ? WHERE collection = ? AND id = ?`, string(encoded), collection, id); err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return tx.Commit()
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
