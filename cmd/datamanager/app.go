package main

import (
	"context"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"datamanager/internal/adapters/grid"
	"datamanager/internal/blob"
	"datamanager/internal/catalog"
	"datamanager/internal/core"
	"datamanager/internal/scrape"
)

type config struct {
	Addr             string
	Seed             bool
	Collection       string
	AllowOrigin      string
	TracePath        string
	Debug            bool
	ExpvarName       string
	MetricsNamespace string
}

func defaultConfig() config {
	return config{
		Addr:             ":8080",
		AllowOrigin:      "*",
		ExpvarName:       "datamanager_operations",
		MetricsNamespace: "datamanager",
	}
}

// app wires the record store, media store and manager behind one handler.
type app struct {
	manager  *core.Manager
	store    core.RecordStore
	media    blob.Store
	registry *prometheus.Registry
	metrics  *core.ExpvarMetricsRecorder
	handler  http.Handler
	closers  []io.Closer
}

// slogAudit writes audit entries as structured log lines.
type slogAudit struct{ logger *slog.Logger }

func (a slogAudit) Record(ctx context.Context, e core.AuditEntry) {
	if e.Action == "read" {
		return
	}
	a.logger.LogAttrs(ctx, slog.LevelInfo, "audit",
		slog.String("operation", e.Operation),
		slog.String("action", e.Action),
		slog.String("collection", e.Collection),
		slog.String("record_id", e.RecordID),
		slog.String("field", e.Field),
		slog.String("status", string(e.Status)),
		slog.String("error", e.Error),
		slog.Duration("duration", e.Duration),
	)
}

func newApp(ctx context.Context, cfg config, logger *slog.Logger) (*app, error) {
	a := &app{}
	store, err := core.OpenRecordStore()
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	a.store = store
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	media, err := blob.Open(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open media store: %w", err)
	}
	a.media = media

	if cfg.Seed {
		if err := seed(ctx, store, media); err != nil {
			a.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
		logger.Info("seeded demo data")
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom, err := core.NewPrometheusMetricsRecorder(cfg.MetricsNamespace, a.registry)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	a.metrics = core.NewExpvarMetricsRecorder(cfg.ExpvarName)

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithAuditRecorder(slogAudit{logger: logger}),
		core.WithMetricsRecorder(core.MultiMetricsRecorder{prom, a.metrics}),
	}
	if cfg.TracePath != "" {
		f, err := os.OpenFile(cfg.TracePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		a.closers = append(a.closers, f)
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f)))
	}
	a.manager = core.NewManager(store, catalog.Default(), opts...)

	if summary := a.manager.LoadAll(ctx); len(summary.Failed) > 0 {
		logger.Warn("collections unavailable", "collections", summary.Failed)
	}
	if cfg.Collection != "" && !a.manager.SelectCollection(cfg.Collection) {
		a.Close()
		return nil, fmt.Errorf("unknown collection %q", cfg.Collection)
	}

	gridOpts := []grid.Option{
		grid.WithLogger(logger),
		grid.WithAllowOrigin(cfg.AllowOrigin),
		grid.WithMedia(blob.NewResolver(media, blob.URLOptions{})),
	}
	if client, err := scrape.NewClient(os.Getenv(scrape.EnvURL)); err != nil {
		logger.Warn("scraper disabled", "error", err)
	} else {
		gridOpts = append(gridOpts, grid.WithScraper(client))
	}

	mux := http.NewServeMux()
	mux.Handle(grid.Prefix+"/", grid.NewHandler(a.manager, gridOpts...))
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	if d := media.Driver(); d == blob.DriverFilesystem || d == blob.DriverMemory {
		mux.Handle("/images/", http.StripPrefix("/images/", blob.Handler(media)))
	}
	a.handler = mux
	return a, nil
}

// Handler returns the root HTTP handler.
func (a *app) Handler() http.Handler { return a.handler }

// Close stops the manager and releases the stores.
func (a *app) Close() {
	if a.manager != nil {
		a.manager.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
	a.closers = nil
}
