// ABOUTME: TenantStore wraps the single SQLite connection for one tenant
// ABOUTME: Opens with WAL + foreign keys and pins to a single writer

package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// TenantStore is the open database for one tenant. It is safe for
// concurrent use; SQLite serialises writers while WAL keeps readers
// unblocked.
type TenantStore struct {
	tenantID string
	db       *sql.DB
}

// openTenantStore opens (creating if absent) the SQLite file at path and
// applies the connection pragmas every store runs with. The caller is
// responsible for running migrations before handing the store out.
func openTenantStore(tenantID, path string) (*TenantStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening store for tenant %s: %w", tenantID, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q for tenant %s: %w", p, tenantID, err)
		}
	}

	// One connection: SQLite performs best with a single writer, and the
	// version-then-commit ordering in the write pipeline relies on writes
	// within a store being serialised.
	db.SetMaxOpenConns(1)

	return &TenantStore{tenantID: tenantID, db: db}, nil
}

// TenantID returns the tenant this store belongs to.
func (ts *TenantStore) TenantID() string { return ts.tenantID }

// DB exposes the underlying handle for read queries.
func (ts *TenantStore) DB() *sql.DB { return ts.db }

// BeginTx starts a write transaction on the store.
func (ts *TenantStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return ts.db.BeginTx(ctx, nil)
}

// Close releases the underlying connection.
func (ts *TenantStore) Close() error {
	return ts.db.Close()
}
