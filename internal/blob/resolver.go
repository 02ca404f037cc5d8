package blob

import (
	"context"
	"strings"

	"datamanager/pkg/domain"
)

// ImagePathPrefix is stripped from stored image paths to form store keys.
const ImagePathPrefix = "/images/"

// ImageFields names the record fields that hold image paths.
var ImageFields = []string{"bildpfad", "image_path"}

// IsImageField reports whether field holds an image path.
func IsImageField(field string) bool {
	for _, f := range ImageFields {
		if strings.EqualFold(f, field) {
			return true
		}
	}
	return false
}

// Key converts a stored image path into a store key.
func Key(imagePath string) string {
	p := strings.TrimSpace(imagePath)
	p = strings.TrimPrefix(p, ImagePathPrefix)
	return strings.TrimLeft(p, "/")
}

// Resolver turns image field values into URLs.
type Resolver struct {
	store Store
	opts  URLOptions
}

// NewResolver wraps store.
func NewResolver(store Store, opts URLOptions) *Resolver {
	return &Resolver{store: store, opts: opts}
}

// Resolve returns the URL for an image path. Absolute http(s) URLs pass through.
func (r *Resolver) Resolve(ctx context.Context, imagePath string) (string, error) {
	p := strings.TrimSpace(imagePath)
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p, nil
	}
	key := Key(p)
	if key == "" {
		return "", ErrInvalidKey
	}
	return r.store.URL(ctx, key, r.opts)
}

// ResolveRecord resolves every non-empty string image field of rec, keyed by the
// record's field name. Fields that fail to resolve are omitted.
func (r *Resolver) ResolveRecord(ctx context.Context, rec domain.Record) map[string]string {
	out := make(map[string]string)
	for name, v := range rec.Fields {
		if !IsImageField(name) {
			continue
		}
		s, ok := v.AsString()
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		if u, err := r.Resolve(ctx, s); err == nil {
			out[name] = u
		}
	}
	return out
}
