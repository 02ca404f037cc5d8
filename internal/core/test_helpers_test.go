package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"datamanager/internal/catalog"
	"datamanager/pkg/domain"
)

var errBackend = errors.New("backend unavailable")

// fakeStore is a scripted RecordStore. Writes consult hook when set; otherwise
// they fail with writeErr/deleteErr when those are non-nil.
type fakeStore struct {
	mu        sync.Mutex
	data      map[string][]domain.Record
	fetchErr  map[string]error
	writeErr  error
	deleteErr error
	hook      func(op string, value domain.Value) error
	calls     []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string][]domain.Record{}, fetchErr: map[string]error{}}
}

func (f *fakeStore) record(op string) {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.mu.Unlock()
}

func (f *fakeStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeStore) FetchCollection(_ context.Context, name string) ([]domain.Record, error) {
	f.record("fetch:" + name)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr[name]; err != nil {
		return nil, err
	}
	out := make([]domain.Record, len(f.data[name]))
	copy(out, f.data[name])
	return out, nil
}

func (f *fakeStore) write(op string, value domain.Value) error {
	f.record(op)
	f.mu.Lock()
	hook, err := f.hook, f.writeErr
	f.mu.Unlock()
	if hook != nil {
		return hook(op, value)
	}
	return err
}

func (f *fakeStore) PatchField(_ context.Context, _, _, _ string, value domain.Value) error {
	return f.write("patch", value)
}

func (f *fakeStore) AppendArrayElement(_ context.Context, _, _, _ string, value domain.Value) error {
	return f.write("append", value)
}

func (f *fakeStore) RemoveArrayElement(_ context.Context, _, _, _ string, value domain.Value) error {
	return f.write("remove", value)
}

func (f *fakeStore) DeleteRecord(context.Context, string, string) error {
	f.record("delete")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteErr
}

func rec(id string, fields map[string]domain.Value) domain.Record {
	return domain.NewRecord(id, fields)
}

// loadedManager returns a manager whose collections were loaded from store.
func loadedManager(t *testing.T, store *fakeStore, opts ...Option) *Manager {
	t.Helper()
	m := NewManager(store, catalog.Default(), opts...)
	t.Cleanup(m.Close)
	summary := m.LoadAll(context.Background())
	if len(summary.Failed) != 0 && len(store.fetchErr) == 0 {
		t.Fatalf("unexpected load failures %v", summary.Failed)
	}
	return m
}

func fieldOf(t *testing.T, m *Manager, collection, id, field string) (domain.Value, bool) {
	t.Helper()
	c, ok := m.Snapshot().Collection(collection)
	if !ok {
		t.Fatalf("collection %s missing", collection)
	}
	r, _, ok := c.Record(id)
	if !ok {
		t.Fatalf("record %s/%s missing", collection, id)
	}
	return r.Get(field)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func fixedClock() Clock {
	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return ClockFunc(func() time.Time { return base })
}
