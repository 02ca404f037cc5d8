// Package grid exposes the collection state manager to the data grid UI over
// HTTP. Every write goes through the manager so the UI sees the same optimistic
// snapshots the manager streams.
package grid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"datamanager/internal/blob"
	"datamanager/internal/core"
	"datamanager/internal/scrape"
	"datamanager/pkg/domain"
)

// Prefix is the path prefix of every grid route.
const Prefix = "/api/v1"

// DefaultProductsField is used by the products route when no field is given.
const DefaultProductsField = "produktid"

// Scraper triggers scrape runs and follows their output.
type Scraper interface {
	Start(ctx context.Context) (json.RawMessage, error)
	Output(ctx context.Context) (*scrape.Output, error)
}

// Handler serves the grid API.
type Handler struct {
	Manager *core.Manager
	// Media resolves image fields to URLs in view responses. Optional.
	Media *blob.Resolver
	// Scraper backs the scrape routes. Optional; the routes answer 503 without it.
	Scraper Scraper
	// AllowOrigin enables CORS for the given origin ("*" for any).
	AllowOrigin string
	Logger      core.Logger

	mux *http.ServeMux
}

// Option configures a Handler.
type Option func(*Handler)

// WithMedia sets the image resolver.
func WithMedia(r *blob.Resolver) Option { return func(h *Handler) { h.Media = r } }

// WithScraper sets the scrape client.
func WithScraper(s Scraper) Option { return func(h *Handler) { h.Scraper = s } }

// WithAllowOrigin enables CORS.
func WithAllowOrigin(origin string) Option { return func(h *Handler) { h.AllowOrigin = origin } }

// WithLogger sets the logger used for request failures.
func WithLogger(l core.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.Logger = l
		}
	}
}

// NewHandler constructs the grid API handler.
func NewHandler(m *core.Manager, opts ...Option) *Handler {
	h := &Handler{Manager: m, Logger: nopLogger{}}
	for _, opt := range opts {
		opt(h)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+Prefix+"/collections", h.handleList)
	mux.HandleFunc("GET "+Prefix+"/collections/active", h.handleActive)
	mux.HandleFunc("PUT "+Prefix+"/selection", h.handleSelect)
	mux.HandleFunc("POST "+Prefix+"/collections/{collection}/columns/{column}/toggle", h.handleToggle)
	mux.HandleFunc("POST "+Prefix+"/collections/{collection}/columns/reorder", h.handleReorder)
	mux.HandleFunc("POST "+Prefix+"/collections/{collection}/reload", h.handleReload)
	mux.HandleFunc("PATCH "+Prefix+"/collections/{collection}/records/{id}", h.handlePatch)
	mux.HandleFunc("DELETE "+Prefix+"/collections/{collection}/records/{id}", h.handleDelete)
	mux.HandleFunc("POST "+Prefix+"/collections/{collection}/records/{id}/array/{field}", h.handleAppend)
	mux.HandleFunc("DELETE "+Prefix+"/collections/{collection}/records/{id}/array/{field}", h.handleRemove)
	mux.HandleFunc("DELETE "+Prefix+"/collections/{collection}/records/{id}/array/{field}/{value}", h.handleRemove)
	mux.HandleFunc("GET "+Prefix+"/collections/{collection}/records/{id}/products", h.handleProducts)
	mux.HandleFunc("GET "+Prefix+"/statistics", h.handleStatistics)
	mux.HandleFunc("GET "+Prefix+"/stream", h.handleStream)
	mux.HandleFunc("POST "+Prefix+"/scrape", h.handleScrapeStart)
	mux.HandleFunc("GET "+Prefix+"/scrape/output", h.handleScrapeOutput)
	h.mux = mux
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Manager == nil {
		writeError(w, http.StatusInternalServerError, "collection manager not configured")
		return
	}
	if h.AllowOrigin != "" {
		w.Header().Set("Access-Control-Allow-Origin", h.AllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	h.mux.ServeHTTP(w, r)
}

type viewResponse struct {
	core.ActiveView
	// Images maps record id to resolved image URLs keyed by field name.
	Images map[string]map[string]string `json:"images,omitempty"`
}

func (h *Handler) view(ctx context.Context, v core.ActiveView) viewResponse {
	out := viewResponse{ActiveView: v}
	if h.Media == nil {
		return out
	}
	for _, rec := range v.Records {
		urls := h.Media.ResolveRecord(ctx, rec)
		if len(urls) == 0 {
			continue
		}
		if out.Images == nil {
			out.Images = make(map[string]map[string]string)
		}
		out.Images[rec.ID] = urls
	}
	return out
}

func (h *Handler) handleList(w http.ResponseWriter, _ *http.Request) {
	snap := h.Manager.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"seq":         snap.Seq,
		"active":      snap.Active,
		"collections": snap.Summaries(),
	})
}

func (h *Handler) handleActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"view": h.view(r.Context(), h.Manager.Snapshot().ActiveView())})
}

type selectRequest struct {
	Collection string `json:"collection"`
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !h.Manager.SelectCollection(req.Collection) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("collection %q not found", req.Collection))
		return
	}
	h.handleActive(w, r)
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	collection, column := r.PathValue("collection"), r.PathValue("column")
	if err := h.Manager.ToggleColumnVisibility(r.Context(), collection, column); err != nil {
		h.writeOperationError(w, err)
		return
	}
	h.writeColumns(w, collection)
}

type reorderRequest struct {
	From *int `json:"from"`
	To   *int `json:"to"`
}

func (h *Handler) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.From == nil || req.To == nil {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	collection := r.PathValue("collection")
	if err := h.Manager.ReorderColumn(r.Context(), collection, *req.From, *req.To); err != nil {
		h.writeOperationError(w, err)
		return
	}
	h.writeColumns(w, collection)
}

func (h *Handler) writeColumns(w http.ResponseWriter, collection string) {
	c, _ := h.Manager.Snapshot().Collection(collection)
	writeJSON(w, http.StatusOK, map[string]any{"columns": domain.SortColumns(c.Columns)})
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	if err := h.Manager.LoadCollection(r.Context(), collection); err != nil {
		h.writeOperationError(w, err)
		return
	}
	c, _ := h.Manager.Snapshot().Collection(collection)
	writeJSON(w, http.StatusOK, map[string]any{"collection": collection, "records": len(c.Records), "status": c.Status})
}

type patchRequest struct {
	Data map[string]json.RawMessage `json:"data"`
}

func (h *Handler) handlePatch(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Data) == 0 {
		writeError(w, http.StatusBadRequest, "data must name at least one field")
		return
	}
	collection, id := r.PathValue("collection"), r.PathValue("id")
	fields := make([]string, 0, len(req.Data))
	for field := range req.Data {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		value, err := h.decodeValue(collection, field, req.Data[field])
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.Manager.UpdateField(r.Context(), collection, id, field, value); err != nil {
			h.writeOperationError(w, err)
			return
		}
	}
	h.writeRecord(w, collection, id)
}

type arrayRequest struct {
	Value json.RawMessage `json:"value"`
}

func (h *Handler) handleAppend(w http.ResponseWriter, r *http.Request) {
	var req arrayRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Value) == 0 {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	collection, id, field := r.PathValue("collection"), r.PathValue("id"), r.PathValue("field")
	var value domain.Value
	if err := json.Unmarshal(req.Value, &value); err != nil {
		writeError(w, http.StatusBadRequest, "invalid value: "+err.Error())
		return
	}
	if err := h.Manager.AppendArrayElement(r.Context(), collection, id, field, value); err != nil {
		h.writeOperationError(w, err)
		return
	}
	h.writeRecord(w, collection, id)
}

// handleRemove accepts the element either as the last path segment or as a
// {"value": ...} body. A path element is matched against the current array by
// its text so numeric references survive the round trip through the URL.
func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	collection, id, field := r.PathValue("collection"), r.PathValue("id"), r.PathValue("field")
	var value domain.Value
	if text := r.PathValue("value"); text != "" {
		value = h.elementByText(collection, id, field, text)
	} else {
		var req arrayRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := json.Unmarshal(req.Value, &value); err != nil {
			writeError(w, http.StatusBadRequest, "invalid value")
			return
		}
	}
	if err := h.Manager.RemoveArrayElement(r.Context(), collection, id, field, value); err != nil {
		h.writeOperationError(w, err)
		return
	}
	h.writeRecord(w, collection, id)
}

func (h *Handler) elementByText(collection, id, field, text string) domain.Value {
	c, _ := h.Manager.Snapshot().Collection(collection)
	if rec, _, ok := c.Record(id); ok {
		if _, arr, found := rec.Lookup(field); found {
			items, _ := arr.AsArray()
			for _, item := range items {
				if item.Text() == text {
					return item
				}
			}
		}
	}
	return domain.String(text)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.Manager.DeleteRecord(r.Context(), r.PathValue("collection"), r.PathValue("id")); err != nil {
		h.writeOperationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleProducts(w http.ResponseWriter, r *http.Request) {
	field := r.URL.Query().Get("field")
	if field == "" {
		field = DefaultProductsField
	}
	products, err := h.Manager.Products(r.Context(), r.PathValue("collection"), r.PathValue("id"), field)
	if err != nil {
		h.writeOperationError(w, err)
		return
	}
	images := make(map[string]string)
	if h.Media != nil {
		for _, p := range products {
			if p.Bildpfad == "" {
				continue
			}
			if u, err := h.Media.Resolve(r.Context(), p.Bildpfad); err == nil {
				images[p.ID] = u
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products, "images": images})
}

func (h *Handler) handleStatistics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"statistics": h.Manager.Statistics()})
}

func (h *Handler) writeRecord(w http.ResponseWriter, collection, id string) {
	c, _ := h.Manager.Snapshot().Collection(collection)
	rec, _, ok := c.Record(id)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"record": rec})
}

// decodeValue decodes a JSON field value and coerces it to the catalog column
// type, so a grid cell edited as text still lands as the column's kind.
func (h *Handler) decodeValue(collection, field string, raw json.RawMessage) (domain.Value, error) {
	var v domain.Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return domain.Value{}, fmt.Errorf("invalid value for %s: %w", field, err)
	}
	if col, ok := h.Manager.Catalog().Column(collection, field); ok {
		v = v.Coerce(col.Type)
	}
	return v, nil
}

func (h *Handler) writeOperationError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Warn("grid request failed", "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidationFailure):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrFetchFailure),
		errors.Is(err, domain.ErrWriteFailure),
		errors.Is(err, domain.ErrDeleteFailure):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		msg := "invalid request payload"
		if strings.Contains(err.Error(), "EOF") {
			msg = "request body required"
		}
		writeError(w, http.StatusBadRequest, msg)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
