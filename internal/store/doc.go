// ABOUTME: Package documentation for the tenant store layer
// ABOUTME: Describes the LRU manager, migrations and the mutation journal

// Package store manages the per-tenant SQLite databases.
//
// # Architecture
//
// Every tenant owns exactly one database file under the data directory,
// named tenant_<id>.db. The Manager opens these lazily on first access,
// migrates them to the latest schema, and keeps at most a fixed number of
// them open in an LRU cache. Store handles are safe for concurrent use;
// the cache itself is guarded by a single mutex.
//
// # Mutation journal
//
// Each tenant store carries one reserved table, mutation_journal, holding
// the ordered log of entity changes:
//
//	seq        INTEGER PRIMARY KEY AUTOINCREMENT
//	table_name TEXT
//	entity_id  TEXT
//	operation  TEXT  -- INSERT | UPDATE | DELETE | PATCH
//	payload    TEXT  -- post-state JSON, "{}" for deletes
//	version    INTEGER
//
// Journal rows are appended inside the same transaction as the domain
// change they describe, which is how "change happened iff the journal
// records it" holds without distributed transactions. Clients replay rows
// in ascending version order; replaying from version 0 rebuilds the
// tenant's current state.
//
// The journal is append-only and unbounded. Compaction, if ever added,
// must replace pruned rows with INSERT rows that preserve the replay
// property.
//
// # SQLite configuration
//
// Stores run with WAL journaling, foreign keys on, a 5 s busy timeout and
// a single connection (SQLite performs best with one writer; WAL lets
// readers proceed concurrently).
//
// # Migrations
//
// Schema migrations are SQL files embedded in the binary, ordered by
// numeric prefix, applied one transaction each and tracked through
// PRAGMA user_version. Rerunning the migrator against a current store is
// a no-op.
package store
