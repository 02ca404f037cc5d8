package core

import "datamanager/internal/infra/persistence/sqlite"

// NewSQLiteStore constructs a SQLite document store at path (empty for the
// default file).
func NewSQLiteStore(path string) (*sqlite.Store, error) {
	return sqlite.NewStore(path)
}
