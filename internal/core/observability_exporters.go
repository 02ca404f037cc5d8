package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// OperationTarget names what a manager operation acted on. Exporters read it
// from the operation context.
type OperationTarget struct {
	Collection string `json:"collection,omitempty"`
	RecordID   string `json:"record_id,omitempty"`
	Field      string `json:"field,omitempty"`
}

type operationTargetKey struct{}

// WithOperationTarget annotates ctx with the target of the running operation.
func WithOperationTarget(ctx context.Context, target OperationTarget) context.Context {
	return context.WithValue(ctx, operationTargetKey{}, target)
}

// TargetFromContext returns the target set by WithOperationTarget.
func TargetFromContext(ctx context.Context) (OperationTarget, bool) {
	target, ok := ctx.Value(operationTargetKey{}).(OperationTarget)
	return target, ok
}

var expvarSeq uint64

// OperationTotals aggregates the outcomes of one operation.
type OperationTotals struct {
	Success int64   `json:"success"`
	Error   int64   `json:"error"`
	TotalMS float64 `json:"total_ms"`
	MaxMS   float64 `json:"max_ms"`
}

func (t *OperationTotals) add(success bool, ms float64) {
	if success {
		t.Success++
	} else {
		t.Error++
	}
	t.TotalMS += ms
	if ms > t.MaxMS {
		t.MaxMS = ms
	}
}

// ExpvarMetricsRecorder publishes operation totals under /debug/vars, overall
// and broken down by collection.
type ExpvarMetricsRecorder struct {
	name    string
	started time.Time

	mu           sync.Mutex
	operations   map[string]*OperationTotals
	byCollection map[string]map[string]*OperationTotals
}

// ExpvarMetricsSnapshot is the exported document.
type ExpvarMetricsSnapshot struct {
	Operations  map[string]OperationTotals            `json:"operations"`
	Collections map[string]map[string]OperationTotals `json:"collections"`
	Since       time.Time                             `json:"since"`
	RecordedAt  time.Time                             `json:"recorded_at"`
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a generated
// unique name when name is empty. Publishing a name twice panics.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("datamanager_operations_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{
		name:         name,
		started:      time.Now().UTC(),
		operations:   make(map[string]*OperationTotals),
		byCollection: make(map[string]map[string]*OperationTotals),
	}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name returns the expvar export name.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Observe implements MetricsRecorder. The collection breakdown uses the target
// carried by ctx; operations without a collection are counted overall only.
func (r *ExpvarMetricsRecorder) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	target, _ := TargetFromContext(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	totals(r.operations, operation).add(success, ms)
	if target.Collection == "" {
		return
	}
	ops, ok := r.byCollection[target.Collection]
	if !ok {
		ops = make(map[string]*OperationTotals)
		r.byCollection[target.Collection] = ops
	}
	totals(ops, operation).add(success, ms)
}

func totals(m map[string]*OperationTotals, op string) *OperationTotals {
	t, ok := m[op]
	if !ok {
		t = &OperationTotals{}
		m[op] = t
	}
	return t
}

// Snapshot copies the current totals.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := ExpvarMetricsSnapshot{
		Operations:  copyTotals(r.operations),
		Collections: make(map[string]map[string]OperationTotals, len(r.byCollection)),
		Since:       r.started,
		RecordedAt:  time.Now().UTC(),
	}
	for name, ops := range r.byCollection {
		snap.Collections[name] = copyTotals(ops)
	}
	return snap
}

func copyTotals(in map[string]*OperationTotals) map[string]OperationTotals {
	out := make(map[string]OperationTotals, len(in))
	for op, t := range in {
		out[op] = *t
	}
	return out
}

// DefaultTraceRetention bounds the spans kept in memory by JSONTraceTracer.
const DefaultTraceRetention = 256

// JSONTraceEntry is one finished span.
type JSONTraceEntry struct {
	Operation string `json:"operation"`
	OperationTarget
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer writes one JSON line per finished span and keeps the most
// recent spans in memory.
type JSONTraceTracer struct {
	mu        sync.Mutex
	enc       *json.Encoder
	entries   []JSONTraceEntry
	retention int
	dropped   int
}

// TracerOption configures a JSONTraceTracer.
type TracerOption func(*JSONTraceTracer)

// WithTraceRetention sets how many recent spans Entries returns.
func WithTraceRetention(n int) TracerOption {
	return func(t *JSONTraceTracer) {
		if n > 0 {
			t.retention = n
		}
	}
}

// NewJSONTracer returns a tracer writing to w. A nil w only retains spans.
func NewJSONTracer(w io.Writer, opts ...TracerOption) *JSONTraceTracer {
	t := &JSONTraceTracer{retention: DefaultTraceRetention}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Entries returns the retained spans, oldest first.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Dropped reports how many spans fell out of the retention window.
func (t *JSONTraceTracer) Dropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	target, _ := TargetFromContext(ctx)
	return ctx, &jsonTraceSpan{tracer: t, operation: operation, target: target, started: time.Now().UTC()}
}

func (t *JSONTraceTracer) finish(entry JSONTraceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.entries) == t.retention {
		t.entries = append(t.entries[:0], t.entries[1:]...)
		t.dropped++
	}
	t.entries = append(t.entries, entry)
	if t.enc != nil {
		_ = t.enc.Encode(entry)
	}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	target    OperationTarget
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	ended := time.Now().UTC()
	entry := JSONTraceEntry{
		Operation:       s.operation,
		OperationTarget: s.target,
		Status:          string(AuditStatusSuccess),
		DurationMS:      float64(ended.Sub(s.started)) / float64(time.Millisecond),
		StartedAt:       s.started,
		EndedAt:         ended,
	}
	if err != nil {
		entry.Status = string(AuditStatusError)
		entry.Error = err.Error()
	}
	s.tracer.finish(entry)
}
