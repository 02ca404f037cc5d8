// Package postgres provides the relational record store. Records live in one
// JSONB column keyed by (collection, id); field and array mutations are single
// UPDATE statements evaluated by Postgres.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"datamanager/internal/infra/persistence/document"
	"datamanager/pkg/domain"
)

var (
	_ domain.RecordStore    = (*Store)(nil)
	_ domain.RecordInserter = (*Store)(nil)
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/datamanager?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

const (
	createTable = `CREATE TABLE IF NOT EXISTS records (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (collection, id)
	)`
	selectCollection = `SELECT id, data FROM records WHERE collection = $1 ORDER BY created_at, id`
	insertRecord     = `INSERT INTO records (collection, id, data) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data`
	patchField = `UPDATE records SET data = jsonb_set(data, ARRAY[$3::text], $4::jsonb, true)
		WHERE collection = $1 AND id = $2`
	appendElement = `UPDATE records SET data = jsonb_set(data, ARRAY[$3::text],
		COALESCE(data->($3::text), '[]'::jsonb) || jsonb_build_array($4::jsonb), true)
		WHERE collection = $1 AND id = $2`
	removeElement = `UPDATE records SET data = jsonb_set(data, ARRAY[$3::text],
		COALESCE((SELECT jsonb_agg(e) FROM jsonb_array_elements(data->($3::text)) AS e WHERE e <> $4::jsonb), '[]'::jsonb), true)
		WHERE collection = $1 AND id = $2`
	deleteRecord = `DELETE FROM records WHERE collection = $1 AND id = $2`
)

// Store persists records to Postgres.
type Store struct {
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to
// defaultDSN) and ensures the records table exists.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		return nil, fmt.Errorf("ensure records table: %w", err)
	}
	return &Store{db: db}, nil
}

// Insert upserts a record. An empty id is replaced by a random UUID.
func (s *Store) Insert(ctx context.Context, collection string, record domain.Record) (string, error) {
	id := record.ID
	if id == "" {
		id = uuid.NewString()
	}
	payload, err := document.Fields(record.Fields).Encode()
	if err != nil {
		return "", fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	if _, err := s.db.ExecContext(ctx, insertRecord, collection, id, string(payload)); err != nil {
		return "", fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}
	return id, nil
}

// FetchCollection returns records in creation order.
func (s *Store) FetchCollection(ctx context.Context, collection string) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectCollection, collection)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]domain.Record, 0)
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		fields, err := document.Decode(data)
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

// PatchField sets one top-level key of the record's JSONB document.
func (s *Store) PatchField(ctx context.Context, collection, id, field string, value domain.Value) error {
	return s.update(ctx, "patch", patchField, collection, id, field, value)
}

// AppendArrayElement appends value to the JSONB array under field, creating it
// when absent. Duplicates are kept.
func (s *Store) AppendArrayElement(ctx context.Context, collection, id, field string, value domain.Value) error {
	return s.update(ctx, "append", appendElement, collection, id, field, value)
}

// RemoveArrayElement removes every element equal to value from the JSONB array
// under field.
func (s *Store) RemoveArrayElement(ctx context.Context, collection, id, field string, value domain.Value) error {
	return s.update(ctx, "remove", removeElement, collection, id, field, value)
}

// DeleteRecord removes a record.
func (s *Store) DeleteRecord(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx, deleteRecord, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return affected(res, collection, id)
}

func (s *Store) update(ctx context.Context, op, query, collection, id, field string, value domain.Value) error {
	payload, err := value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("%s %s/%s.%s: encode value: %w", op, collection, id, field, err)
	}
	res, err := s.db.ExecContext(ctx, query, collection, id, field, string(payload))
	if err != nil {
		return fmt.Errorf("%s %s/%s.%s: %w", op, collection, id, field, err)
	}
	return affected(res, collection, id)
}

func affected(res sql.Result, collection, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return domain.ErrNotFound{Collection: collection, ID: id}
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
