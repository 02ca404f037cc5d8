package core

import "datamanager/internal/infra/persistence/postgres"

// NewPostgresStore constructs a Postgres-backed record store from the provided DSN.
func NewPostgresStore(dsn string) (*postgres.Store, error) {
	return postgres.NewStore(dsn)
}
