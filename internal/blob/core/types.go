// Package core defines the media store abstraction shared by the blob facade and
// its infra implementations.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete media store implementation.
type Driver string

const (
	// DriverFilesystem serves media from a local directory.
	DriverFilesystem Driver = "fs"
	// DriverS3 resolves media to presigned URLs of an S3 / MinIO bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps media in process memory (tests).
	DriverMemory Driver = "memory"
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// URLOptions tunes URL resolution. Expiry only applies to signed URLs and
// defaults to 15 minutes.
type URLOptions struct {
	Expiry time.Duration
}

// DefaultURLExpiry bounds presigned URLs when URLOptions.Expiry is unset.
const DefaultURLExpiry = 15 * time.Minute

// Info describes a stored media object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store holds the images referenced by record fields.
type Store interface {
	// Put stores a new object. It fails when the key already exists.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get returns the object's metadata and content. Missing keys yield ErrNotFound.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	// URL returns a URL a browser can load the object from.
	URL(ctx context.Context, key string, opts URLOptions) (string, error)
	Driver() Driver
}

var (
	// ErrUnsupported is returned when an optional capability is not available.
	ErrUnsupported = errors.New("media: unsupported operation")
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("media: object not found")
	// ErrInvalidKey is returned for empty, absolute or escaping keys.
	ErrInvalidKey = errors.New("media: invalid key")
)
