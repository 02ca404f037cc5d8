package core

import (
	"fmt"
	"os"
	"strings"

	"datamanager/internal/infra/persistence/httpapi"
	"datamanager/internal/infra/persistence/memory"
)

// StorageDriver identifies a concrete record store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory document store (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite document file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL JSONB records
	StorageHTTP     StorageDriver = "http"     // remote record HTTP API
)

// Environment variables consulted by OpenRecordStore.
const (
	EnvStoreDriver = "DATAMANAGER_STORE_DRIVER"
	EnvSQLitePath  = "DATAMANAGER_SQLITE_PATH"
	EnvPostgresDSN = "DATAMANAGER_POSTGRES_DSN"
	EnvAPIURL      = "DATAMANAGER_API_URL"
	EnvAPIIDField  = "DATAMANAGER_API_ID_FIELD"
)

// OpenRecordStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	DATAMANAGER_STORE_DRIVER: memory|sqlite|postgres|http (default sqlite)
//	DATAMANAGER_SQLITE_PATH: path to sqlite file (default ./datamanager.db)
//	DATAMANAGER_POSTGRES_DSN: postgres DSN when driver=postgres
//	DATAMANAGER_API_URL: record API root when driver=http
//	DATAMANAGER_API_ID_FIELD: comma separated id fields when driver=http (default id,docId)
func OpenRecordStore() (RecordStore, error) {
	driver := os.Getenv(EnvStoreDriver)
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		ss, err := NewSQLiteStore(os.Getenv(EnvSQLitePath))
		if err != nil {
			return nil, err
		}
		return ss, nil
	case StoragePostgres:
		ps, err := NewPostgresStore(os.Getenv(EnvPostgresDSN))
		if err != nil {
			return nil, err
		}
		return ps, nil
	case StorageHTTP:
		var opts []httpapi.Option
		if fields := os.Getenv(EnvAPIIDField); fields != "" {
			opts = append(opts, httpapi.WithIDFields(strings.Split(fields, ",")...))
		}
		client, err := httpapi.NewClient(os.Getenv(EnvAPIURL), opts...)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
