package core

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"datamanager/internal/catalog"
	"datamanager/pkg/domain"
)

// RecordStore aliases the persistence contract consumed by the manager.
type RecordStore = domain.RecordStore

// Manager owns the in-memory mirror of every catalog collection. All mutations
// happen under one mutex and publish a new immutable State before the lock is
// released, so subscribers observe mutations in the order they were applied.
// Backend calls run outside the lock.
type Manager struct {
	store   RecordStore
	catalog *catalog.Catalog
	opts    managerOptions

	mu     sync.Mutex
	state  State
	genSeq uint64
	writes map[fieldKey]*fieldWrites
	closed bool

	states *Stream[State]
	active *Stream[ActiveView]

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type fieldKey struct {
	collection string
	id         string
	field      string
}

// LoadSummary reports the outcome of LoadAll in catalog order.
type LoadSummary struct {
	Loaded []string `json:"loaded"`
	Failed []string `json:"failed"`
}

// NewManager constructs a manager over store. The initial snapshot holds every
// catalog collection with no records and the catalog default selected.
func NewManager(store RecordStore, cat *catalog.Catalog, opts ...Option) *Manager {
	if cat == nil {
		cat = catalog.Default()
	}
	o := defaultManagerOptions()
	for _, opt := range opts {
		opt(&o)
	}
	names := cat.Names()
	collections := make(map[string]domain.Collection, len(names))
	for _, name := range names {
		cols, _ := cat.Columns(name)
		collections[name] = domain.Collection{
			Name:    name,
			Columns: cols,
			Records: []domain.Record{},
			Status:  domain.StatusLoading,
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		store:   store,
		catalog: cat,
		opts:    o,
		writes:  make(map[fieldKey]*fieldWrites),
		states:  NewStream[State](o.subscriberBuffer),
		active:  NewStream[ActiveView](o.subscriberBuffer),
		baseCtx: ctx,
		cancel:  cancel,
	}
	m.state = State{
		Active:      cat.DefaultName(),
		Order:       names,
		Collections: collections,
	}
	m.states.Publish(m.state)
	m.active.Publish(m.state.ActiveView())
	return m
}

// Catalog returns the catalog the manager was built with.
func (m *Manager) Catalog() *catalog.Catalog { return m.catalog }

// Snapshot returns the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ActiveName returns the selected collection name.
func (m *Manager) ActiveName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Active
}

// Subscribe streams full snapshots, starting with the current one.
func (m *Manager) Subscribe(ctx context.Context) *Subscription[State] {
	return m.states.Subscribe(ctx)
}

// SubscribeActive streams the active collection view, starting with the current one.
func (m *Manager) SubscribeActive(ctx context.Context) *Subscription[ActiveView] {
	return m.active.Subscribe(ctx)
}

// Close cancels background refetches, waits for them and ends all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()
	m.cancel()
	m.wg.Wait()
	m.states.Close()
	m.active.Close()
}

// publishLocked installs next as the current state and emits it. Callers hold m.mu.
func (m *Manager) publishLocked(next State) {
	next.Seq = m.state.Seq + 1
	m.state = next
	m.states.Publish(next)
	m.active.Publish(next.ActiveView())
}

// SelectCollection switches the active collection. Unknown names are logged and
// ignored. Selecting a collection whose last fetch failed starts a background
// refetch.
func (m *Manager) SelectCollection(name string) bool {
	m.mu.Lock()
	if !m.catalog.Has(name) {
		m.mu.Unlock()
		m.opts.logger.Warn("unknown collection selected", "collection", name)
		return false
	}
	next := m.state
	next.Active = name
	m.publishLocked(next)
	retry := m.state.Collections[name].Status == domain.StatusFailed && !m.closed
	if retry {
		m.wg.Add(1)
	}
	m.mu.Unlock()

	if retry {
		go func() {
			defer m.wg.Done()
			_ = m.LoadCollection(m.baseCtx, name)
		}()
	}
	return true
}

// LoadAll fetches every catalog collection concurrently. Each completed fetch
// replaces that collection's records and emits a snapshot. Failures mark the
// collection failed and never abort the other fetches.
func (m *Manager) LoadAll(ctx context.Context) LoadSummary {
	names := m.catalog.Names()
	results := make([]error, len(names))
	var g errgroup.Group
	g.SetLimit(m.opts.loadConcurrency)
	for i, name := range names {
		g.Go(func() error {
			results[i] = m.LoadCollection(ctx, name)
			return nil
		})
	}
	_ = g.Wait()

	summary := LoadSummary{Loaded: []string{}, Failed: []string{}}
	for i, name := range names {
		if results[i] != nil {
			summary.Failed = append(summary.Failed, name)
		} else {
			summary.Loaded = append(summary.Loaded, name)
		}
	}
	m.opts.logger.Info("collections loaded", "loaded", len(summary.Loaded), "failed", len(summary.Failed))
	return summary
}

// LoadCollection fetches one collection and replaces its records. On failure the
// collection keeps its current records and is marked failed.
func (m *Manager) LoadCollection(ctx context.Context, name string) error {
	scope := opScope{op: "fetch_collection", action: "fetch", collection: name}
	if !m.catalog.Has(name) {
		return m.run(ctx, scope, func(context.Context) error {
			return validationError(scope, "unknown collection")
		})
	}
	var records []domain.Record
	err := m.run(ctx, scope, func(ctx context.Context) error {
		var err error
		records, err = m.store.FetchCollection(ctx, name)
		if err != nil {
			return &domain.OperationError{Kind: domain.ErrFetchFailure, Op: scope.op, Collection: name, Err: err}
		}
		return nil
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.state.Collections[name]
	if err != nil {
		c.Status = domain.StatusFailed
	} else {
		c.Records = m.normalizeRecords(name, c.Columns, records)
		c.Status = domain.StatusLoaded
	}
	m.publishLocked(m.state.withCollection(c))
	return err
}

// normalizeRecords drops records without an id or with a duplicate id, coerces
// values to their column types and materializes absent array columns.
func (m *Manager) normalizeRecords(collection string, columns []domain.Column, records []domain.Record) []domain.Record {
	out := make([]domain.Record, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.ID == "" {
			m.opts.logger.Warn("dropping record without id", "collection", collection)
			continue
		}
		if _, dup := seen[r.ID]; dup {
			m.opts.logger.Warn("dropping duplicate record", "collection", collection, "record_id", r.ID)
			continue
		}
		seen[r.ID] = struct{}{}
		fields := make(map[string]domain.Value, len(r.Fields)+len(columns))
		for k, v := range r.Fields {
			fields[k] = v
		}
		normalized := domain.Record{ID: r.ID, Fields: fields}
		for _, col := range columns {
			key, v, ok := normalized.Lookup(col.Name)
			switch {
			case ok:
				fields[key] = v.Coerce(col.Type)
			case col.Type == domain.TypeArray:
				fields[col.Name] = domain.Array()
			}
		}
		out = append(out, normalized)
	}
	return out
}

// resolveFieldName maps a requested field onto the key actually written: an
// existing record key (exact, then case-insensitive), else a catalog column,
// else the lowercase form.
func (m *Manager) resolveFieldName(collection string, rec domain.Record, field string) string {
	if key, _, ok := rec.Lookup(field); ok {
		return key
	}
	if col, ok := m.catalog.Column(collection, field); ok {
		return col.Name
	}
	return strings.ToLower(field)
}

func validationError(scope opScope, msg string) error {
	return &domain.OperationError{
		Kind:       domain.ErrValidationFailure,
		Op:         scope.op,
		Collection: scope.collection,
		RecordID:   scope.recordID,
		Field:      scope.field,
		Err:        errors.New(msg),
	}
}
