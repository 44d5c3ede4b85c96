// Package repositories implements the persistence gateway for the data room
// service. Each repository wraps single-entity queries over database/sql with
// $n placeholders; filtering beyond exact-match lookups belongs to callers.
//
// Methods that participate in a guarded state transition take a Querier so the
// same statement runs against either the pooled *sql.DB or an open *sql.Tx.
// The domain services (internal/room, internal/apikey, internal/corrections)
// always pass a transaction and lock the entity row with GetForUpdate first, so
// counters and audit rows commit atomically with the state change they describe.
package repositories

import (
	"context"
	"database/sql"
)

// Querier is the subset of database/sql operations shared by *sql.DB and
// *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}
