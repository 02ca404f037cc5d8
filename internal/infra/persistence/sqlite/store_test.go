package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"datamanager/internal/infra/persistence/contracttest"
	"datamanager/pkg/domain"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "nested", "data.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreContract(t *testing.T) {
	contracttest.Run(t, func(t *testing.T) contracttest.Store { return openTemp(t) })
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.db")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	if _, err := s.Insert(ctx, "artikel", domain.NewRecord("1", map[string]domain.Value{
		"timestamp": domain.Timestamp(ts),
		"preis":     domain.Number(0.99),
	})); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	records, err := reopened.FetchCollection(ctx, "artikel")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	stamp := records[0].Fields["timestamp"].Coerce(domain.TypeTimestamp)
	if got, ok := stamp.AsTimestamp(); !ok || !got.Equal(ts) {
		t.Fatalf("expected timestamp %v, got %s", ts, stamp.Text())
	}
	if reopened.Path() != path {
		t.Fatalf("unexpected path %s", reopened.Path())
	}
}

func TestSQLiteStoreCorruptPayload(t *testing.T) {
	s := openTemp(t)
	if _, err := s.DB().Exec(`INSERT INTO documents(collection, id, payload) VALUES('artikel', 'x', 'not json')`); err != nil {
		t.Fatalf("seed corrupt row: %v", err)
	}
	if _, err := s.FetchCollection(context.Background(), "artikel"); err == nil {
		t.Fatalf("expected decode error")
	}
	if err := s.PatchField(context.Background(), "artikel", "x", "preis", domain.Number(1)); err == nil {
		t.Fatalf("expected decode error on patch")
	}
}
