package store

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Open returns the gateway for backend. dsn is a file path for SQLite and a
// connection URL for Postgres; it is ignored for the memory backend.
func Open(ctx context.Context, backend, dsn string) (Gateway, error) {
	switch backend {
	case BackendSQLite:
		return NewSQLiteGateway(dsn)
	case BackendPostgres:
		return NewPostgresGateway(ctx, dsn)
	case BackendMemory:
		return NewMemoryGateway(), nil
	default:
		return nil, fmt.Errorf("unknown database backend %q", backend)
	}
}
