// ABOUTME: Shared types and sentinel errors for the tenant store layer
// ABOUTME: Defines journal operations, Change and JournalEntry

package store

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a uniqueness constraint is violated.
var ErrConflict = errors.New("conflict")

// Journal operation constants. PATCH is reserved for partial payloads;
// the server-side handlers currently journal full post-state and use
// INSERT/UPDATE/DELETE only, but clients must accept all four.
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
	OpPatch  = "PATCH"
)

// Change describes one entity mutation to be journaled. Payload is
// marshaled to JSON at append time; DELETE changes ignore it and record
// the literal "{}".
type Change struct {
	TableName string
	EntityID  string
	Operation string
	Payload   any
}

// Deleted builds a DELETE change for the given table and entity.
func Deleted(table, entityID string) Change {
	return Change{TableName: table, EntityID: entityID, Operation: OpDelete}
}

// JournalEntry is one persisted mutation_journal row.
type JournalEntry struct {
	Seq       int64  `json:"id"`
	TableName string `json:"table_name"`
	EntityID  string `json:"entity_id"`
	Operation string `json:"operation"`
	Payload   string `json:"payload"`
	Version   int64  `json:"version"`
}

// IsConstraintViolation reports whether err is a SQLite constraint
// failure (UNIQUE, CHECK, FOREIGN KEY).
func IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "constraint failed")
}
