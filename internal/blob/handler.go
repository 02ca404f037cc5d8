package blob

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Handler serves GET and HEAD for store objects. Mount it with http.StripPrefix
// so the remaining path is the key.
func Handler(store Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		key := strings.TrimPrefix(r.URL.Path, "/")
		info, body, err := store.Get(r.Context(), key)
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidKey):
			http.NotFound(w, r)
			return
		case err != nil:
			http.Error(w, "media unavailable", http.StatusInternalServerError)
			return
		}
		defer func() { _ = body.Close() }()
		if info.ContentType != "" {
			w.Header().Set("Content-Type", info.ContentType)
		}
		if info.ETag != "" {
			w.Header().Set("ETag", `"`+info.ETag+`"`)
		}
		if !info.LastModified.IsZero() {
			w.Header().Set("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))
		}
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
		w.Header().Set("Cache-Control", "public, max-age=3600")
		if r.Method == http.MethodHead {
			return
		}
		_, _ = io.Copy(w, body)
	})
}
