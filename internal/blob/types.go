// Package blob is the media facade used by the rest of the module. It re-exports
// the core store abstraction, selects an implementation from the environment
// and resolves image fields of records to URLs.
package blob

import "datamanager/internal/blob/core"

type (
	// Driver identifies a media backend driver.
	Driver = core.Driver
	// PutOptions configures a media write.
	PutOptions = core.PutOptions
	// URLOptions configures URL resolution.
	URLOptions = core.URLOptions
	// Info describes stored media metadata.
	Info = core.Info
	// Store is the interface for media backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local directory driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

// Errors returned by media stores.
var (
	ErrUnsupported = core.ErrUnsupported
	ErrNotFound    = core.ErrNotFound
	ErrInvalidKey  = core.ErrInvalidKey
)
