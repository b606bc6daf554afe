// ABOUTME: Central identity database shared by all tenants
// ABOUTME: bcrypt-hashed credentials, registration, login and tenant user listing

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

var (
	// ErrEmailTaken is returned when registering an already-known email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// User is an account in the central identity database. Users belong to
// exactly one tenant.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	TenantID string `json:"tenant_id"`
}

// SystemDB manages the central users database. It is deliberately not a
// tenant store: identity is cross-cutting, everything else is per-tenant.
type SystemDB struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSystemDB opens (creating if absent) the identity database at path.
func OpenSystemDB(path string, logger *slog.Logger) (*SystemDB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "systemdb")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening system db: %w", err)
	}
	for _, p := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q on system db: %w", p, err)
		}
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			tenant_id     TEXT NOT NULL,
			created_at    TEXT NOT NULL DEFAULT (datetime('now'))
		);
		CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
		CREATE INDEX IF NOT EXISTS idx_users_tenant ON users(tenant_id);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating system db: %w", err)
	}

	logger.Info("system db ready", "path", path)
	return &SystemDB{db: db, logger: logger}, nil
}

// Close releases the database connection.
func (s *SystemDB) Close() error {
	return s.db.Close()
}

// Register creates a user with a bcrypt-hashed password.
func (s *SystemDB) Register(ctx context.Context, email, password, tenantID string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO users (id, email, password_hash, tenant_id) VALUES (?, ?, ?, ?)",
		id, email, string(hash), tenantID,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Info("registered user", "email", email, "tenant_id", tenantID)
	return &User{ID: id, Email: email, TenantID: tenantID}, nil
}

// Login verifies credentials and returns the user.
func (s *SystemDB) Login(ctx context.Context, email, password string) (*User, error) {
	var u User
	var hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, tenant_id, password_hash FROM users WHERE email = ?", email,
	).Scan(&u.ID, &u.Email, &u.TenantID, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// ListByTenant returns every user in a tenant, ordered by email.
func (s *SystemDB) ListByTenant(ctx context.Context, tenantID string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, email, tenant_id FROM users WHERE tenant_id = ? ORDER BY email", tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying tenant users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.TenantID); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return users, nil
}
