// ABOUTME: Schema migration runner for tenant stores
// ABOUTME: Applies embedded, ordered SQL files tracked via PRAGMA user_version

package store

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

type migration struct {
	version int
	name    string
}

// Migrate brings db from its current schema version to the latest. Each
// pending migration runs in its own transaction together with the
// user_version bump; a failure aborts that migration and the whole open.
// Running against a current store is a no-op.
func Migrate(db *sql.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	migrations, err := listMigrations()
	if err != nil {
		return err
	}

	var current int
	if err := db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("reading user_version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		content, err := migrationFiles.ReadFile("sql/" + m.name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", m.name, err)
		}

		logger.Info("applying migration", "file", m.name, "from", current, "to", m.version)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("beginning tx for %s: %w", m.name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", m.name, err)
		}
		// PRAGMA does not take bound parameters; version is an int under
		// our control, not user input.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("bumping user_version for %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", m.name, err)
		}
		current = m.version
	}

	return nil
}

// listMigrations parses the embedded sql directory. Files are named
// NNN_description.sql; anything else is ignored.
func listMigrations() ([]migration, error) {
	entries, err := migrationFiles.ReadDir("sql")
	if err != nil {
		return nil, fmt.Errorf("reading embedded sql dir: %w", err)
	}

	var migrations []migration
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		ver, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		migrations = append(migrations, migration{version: ver, name: name})
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})
	return migrations, nil
}

// SchemaVersion reports the store's current schema version.
func SchemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading user_version: %w", err)
	}
	return v, nil
}
