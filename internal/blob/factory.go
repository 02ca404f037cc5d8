package blob

import (
	"context"
	"fmt"
	"os"

	"datamanager/internal/infra/blob/fs"
	memorystore "datamanager/internal/infra/blob/memory"
	infraS3 "datamanager/internal/infra/blob/s3"
)

// Environment variables consulted by Open. The S3 driver additionally reads the
// DATAMANAGER_MEDIA_S3_* variables.
const (
	EnvDriver  = "DATAMANAGER_MEDIA_DRIVER"
	EnvFSRoot  = "DATAMANAGER_MEDIA_FS_ROOT"
	EnvBaseURL = "DATAMANAGER_MEDIA_BASE_URL"
)

// Open selects a Store using environment variables.
//
//	DATAMANAGER_MEDIA_DRIVER: fs|s3|memory (default fs)
//	DATAMANAGER_MEDIA_FS_ROOT: directory when driver=fs (default ./images)
//	DATAMANAGER_MEDIA_BASE_URL: URL prefix for fs and memory (default /images)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv(EnvDriver)
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv(EnvFSRoot), os.Getenv(EnvBaseURL))
	case DriverS3:
		return infraS3.OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(os.Getenv(EnvBaseURL)), nil
	default:
		return nil, fmt.Errorf("unknown media driver %s", driver)
	}
}

// NewFilesystem constructs a directory-backed Store.
func NewFilesystem(root, baseURL string) (Store, error) {
	return fs.New(root, baseURL)
}

// NewMemory returns an in-memory Store suitable for tests.
func NewMemory(baseURL string) Store { return memorystore.New(baseURL) }

// S3Config re-exports the S3 construction parameters.
type S3Config = infraS3.Config

// NewS3 constructs an S3-backed Store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3ForTests exposes the in-process S3 fake for cross-package tests.
func NewMockS3ForTests(prefix string) Store { return infraS3.NewMockForTests(prefix) }
