// ABOUTME: Mutation journal append and read operations
// ABOUTME: Appends inside the caller's transaction; reads ordered by version

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// AppendChange inserts one journal row describing c at the given version.
// It runs inside the caller's transaction so the domain change and its
// journal row commit atomically or not at all. DELETE rows record the
// literal "{}" payload.
func AppendChange(ctx context.Context, tx *sql.Tx, c Change, version int64) error {
	payload := "{}"
	if c.Operation != OpDelete {
		b, err := json.Marshal(c.Payload)
		if err != nil {
			return fmt.Errorf("marshaling journal payload for %s/%s: %w", c.TableName, c.EntityID, err)
		}
		payload = string(b)
	}

	_, err := tx.ExecContext(ctx,
		"INSERT INTO mutation_journal (table_name, entity_id, operation, payload, version) VALUES (?, ?, ?, ?, ?)",
		c.TableName, c.EntityID, c.Operation, payload, version,
	)
	if err != nil {
		return fmt.Errorf("appending journal row for %s/%s: %w", c.TableName, c.EntityID, err)
	}
	return nil
}

// ReadJournalSince returns every journal row with version > since,
// ordered ascending by version. An empty slice (never nil) means the
// caller is up to date. A row written by a concurrent transaction either
// appears whole or not at all; WAL snapshots rule out torn reads.
func (ts *TenantStore) ReadJournalSince(ctx context.Context, since int64) ([]JournalEntry, error) {
	rows, err := ts.db.QueryContext(ctx,
		"SELECT seq, table_name, entity_id, operation, payload, version FROM mutation_journal WHERE version > ? ORDER BY version ASC, seq ASC",
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	entries := []JournalEntry{}
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.Seq, &e.TableName, &e.EntityID, &e.Operation, &e.Payload, &e.Version); err != nil {
			return nil, fmt.Errorf("scanning journal row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal rows: %w", err)
	}
	return entries, nil
}

// MaxJournalVersion returns the highest version present in the journal,
// or 0 for an empty journal.
func (ts *TenantStore) MaxJournalVersion(ctx context.Context) (int64, error) {
	var v sql.NullInt64
	if err := ts.db.QueryRowContext(ctx, "SELECT MAX(version) FROM mutation_journal").Scan(&v); err != nil {
		return 0, fmt.Errorf("querying max journal version: %w", err)
	}
	return v.Int64, nil
}
