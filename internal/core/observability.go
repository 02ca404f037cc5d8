package core

import (
	"context"
	"time"
)

// Logger is the structured logging surface used by the manager. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// AuditStatus captures the outcome of an audited operation.
type AuditStatus string

// Audit outcomes.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one manager operation for audit sinks.
type AuditEntry struct {
	Operation  string
	Action     string
	Collection string
	RecordID   string
	Field      string
	Status     AuditStatus
	Error      string
	Duration   time.Duration
	Timestamp  time.Time
}

// AuditRecorder receives an entry for every manager operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes operation outcomes and latencies.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around manager operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation result.
type TraceSpan interface {
	End(err error)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

const (
	defaultLoadConcurrency  = 4
	defaultSubscriberBuffer = 16
)

type managerOptions struct {
	clock            Clock
	logger           Logger
	audit            AuditRecorder
	metrics          MetricsRecorder
	tracer           Tracer
	loadConcurrency  int
	subscriberBuffer int
}

// Option configures a Manager.
type Option func(*managerOptions)

func defaultManagerOptions() managerOptions {
	return managerOptions{
		clock:            ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:           noopLogger{},
		audit:            noopAuditRecorder{},
		metrics:          noopMetricsRecorder{},
		tracer:           noopTracer{},
		loadConcurrency:  defaultLoadConcurrency,
		subscriberBuffer: defaultSubscriberBuffer,
	}
}

// WithClock overrides the clock used for audit timestamps and durations.
func WithClock(clock Clock) Option {
	return func(o *managerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger. A nil logger keeps the no-op default.
func WithLogger(logger Logger) Option {
	return func(o *managerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(audit AuditRecorder) Option {
	return func(o *managerOptions) {
		if audit != nil {
			o.audit = audit
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(metrics MetricsRecorder) Option {
	return func(o *managerOptions) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) Option {
	return func(o *managerOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithLoadConcurrency bounds the number of concurrent fetches issued by LoadAll.
// Values below one are ignored.
func WithLoadConcurrency(n int) Option {
	return func(o *managerOptions) {
		if n > 0 {
			o.loadConcurrency = n
		}
	}
}

// WithSubscriberBuffer sets the per-subscriber channel capacity. Values below one
// are ignored.
func WithSubscriberBuffer(n int) Option {
	return func(o *managerOptions) {
		if n > 0 {
			o.subscriberBuffer = n
		}
	}
}

// opScope names an operation and the record coordinates it touches.
type opScope struct {
	op         string
	action     string
	collection string
	recordID   string
	field      string
}

func (s opScope) target() OperationTarget {
	return OperationTarget{Collection: s.collection, RecordID: s.recordID, Field: s.field}
}

func (s opScope) logArgs(extra ...any) []any {
	args := []any{"operation", s.op, "collection", s.collection}
	if s.recordID != "" {
		args = append(args, "record_id", s.recordID)
	}
	if s.field != "" {
		args = append(args, "field", s.field)
	}
	return append(args, extra...)
}

// run wraps fn with tracing, metrics, audit and failure logging.
func (m *Manager) run(ctx context.Context, scope opScope, fn func(context.Context) error) error {
	start := m.opts.clock.Now()
	ctx, span := m.opts.tracer.Start(WithOperationTarget(ctx, scope.target()), scope.op)
	err := fn(ctx)
	duration := m.opts.clock.Now().Sub(start)
	span.End(err)
	m.opts.metrics.Observe(ctx, scope.op, err == nil, duration)

	entry := AuditEntry{
		Operation:  scope.op,
		Action:     scope.action,
		Collection: scope.collection,
		RecordID:   scope.recordID,
		Field:      scope.field,
		Status:     AuditStatusSuccess,
		Duration:   duration,
		Timestamp:  start,
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		m.opts.logger.Error("operation failed", scope.logArgs("error", err)...)
	} else {
		m.opts.logger.Debug("operation completed", scope.logArgs("duration", duration)...)
	}
	m.opts.audit.Record(ctx, entry)
	return err
}
