// Package recordapi serves a record store over the record HTTP API, the server
// side of the httpapi client.
package recordapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"datamanager/pkg/domain"
)

// Prefix is the path prefix of every route.
const Prefix = "/api"

// Logger is the subset of slog used by the server.
type Logger interface {
	Error(msg string, args ...any)
}

// Server exposes a RecordStore.
type Server struct {
	Store domain.RecordStore
	// IDField is added to listed documents that do not carry their id.
	IDField string
	// Collections restricts the served collections when set.
	Collections func(name string) bool
	Logger      Logger

	mux *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithIDField sets the id field written into listed documents.
func WithIDField(field string) Option {
	return func(s *Server) {
		if field = strings.TrimSpace(field); field != "" {
			s.IDField = field
		}
	}
}

// WithCollections restricts the served collections.
func WithCollections(allowed func(name string) bool) Option {
	return func(s *Server) { s.Collections = allowed }
}

// WithLogger sets the logger for backend failures.
func WithLogger(l Logger) Option {
	return func(s *Server) { s.Logger = l }
}

// NewServer constructs a server over store.
func NewServer(store domain.RecordStore, opts ...Option) *Server {
	s := &Server{Store: store, IDField: "id"}
	for _, opt := range opts {
		opt(s)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+Prefix+"/{collection}", s.handleList)
	mux.HandleFunc("POST "+Prefix+"/{collection}", s.handleCreate)
	mux.HandleFunc("PATCH "+Prefix+"/{collection}/{id}", s.handlePatch)
	mux.HandleFunc("DELETE "+Prefix+"/{collection}/{id}", s.handleDelete)
	mux.HandleFunc("POST "+Prefix+"/{collection}/{id}/array/{field}", s.handleAppend)
	mux.HandleFunc("DELETE "+Prefix+"/{collection}/{id}/array/{field}/{value}", s.handleRemove)
	s.mux = mux
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeError(w, http.StatusInternalServerError, "record store not configured")
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) collection(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := r.PathValue("collection")
	if s.Collections != nil && !s.Collections(name) {
		writeError(w, http.StatusNotFound, "collection not found")
		return "", false
	}
	return name, true
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	name, ok := s.collection(w, r)
	if !ok {
		return
	}
	records, err := s.Store.FetchCollection(r.Context(), name)
	if err != nil {
		s.fail(w, err)
		return
	}
	docs := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		doc := rec.Document()
		if _, has := doc[s.IDField]; !has {
			doc[s.IDField] = rec.ID
		}
		docs = append(docs, doc)
	}
	writeJSON(w, http.StatusOK, docs)
}

type createBody struct {
	ID   string                  `json:"id"`
	Data map[string]domain.Value `json:"data"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	name, ok := s.collection(w, r)
	if !ok {
		return
	}
	inserter, ok := s.Store.(domain.RecordInserter)
	if !ok {
		writeError(w, http.StatusMethodNotAllowed, "store does not support inserts")
		return
	}
	var body createBody
	if !decodeBody(w, r, &body) {
		return
	}
	id, err := inserter.Insert(r.Context(), name, domain.NewRecord(body.ID, body.Data))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

type patchBody struct {
	Data map[string]domain.Value `json:"data"`
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	name, ok := s.collection(w, r)
	if !ok {
		return
	}
	var body patchBody
	if !decodeBody(w, r, &body) {
		return
	}
	if len(body.Data) == 0 {
		writeError(w, http.StatusBadRequest, "data must name at least one field")
		return
	}
	id := r.PathValue("id")
	for field, value := range body.Data {
		if err := s.Store.PatchField(r.Context(), name, id, field, value); err != nil {
			s.fail(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type valueBody struct {
	Value *domain.Value `json:"value"`
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	name, ok := s.collection(w, r)
	if !ok {
		return
	}
	var body valueBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	if err := s.Store.AppendArrayElement(r.Context(), name, r.PathValue("id"), r.PathValue("field"), *body.Value); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRemove receives the element as its text form. It is matched against the
// stored array so numbers and strings are both removable.
func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	name, ok := s.collection(w, r)
	if !ok {
		return
	}
	id, field := r.PathValue("id"), r.PathValue("field")
	value, err := s.element(r, name, id, field, r.PathValue("value"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.Store.RemoveArrayElement(r.Context(), name, id, field, value); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) element(r *http.Request, collection, id, field, text string) (domain.Value, error) {
	records, err := s.Store.FetchCollection(r.Context(), collection)
	if err != nil {
		return domain.Value{}, err
	}
	for _, rec := range records {
		if rec.ID != id {
			continue
		}
		if _, arr, ok := rec.Lookup(field); ok {
			items, _ := arr.AsArray()
			for _, item := range items {
				if item.Text() == text {
					return item, nil
				}
			}
		}
		return domain.String(text), nil
	}
	return domain.Value{}, domain.ErrNotFound{Collection: collection, ID: id}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name, ok := s.collection(w, r)
	if !ok {
		return
	}
	if err := s.Store.DeleteRecord(r.Context(), name, r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if s.Logger != nil {
		s.Logger.Error("record store call failed", "error", err)
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
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
