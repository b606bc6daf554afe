// ABOUTME: Registration, login and tenant user management handlers
// ABOUTME: Users live in the central system db; invites also hit the journal

package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tidemark/driftsync/internal/auth"
	"github.com/tidemark/driftsync/internal/store"
)

const tokenTTL = 24 * time.Hour

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TenantID string `json:"tenant_id"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token    string     `json:"token"`
	User     *auth.User `json:"user"`
	TenantID string     `json:"tenant_id"`
}

// handleRegister creates a user and hands back a signed token. When no
// tenant is named the email's local part becomes the tenant id, so solo
// signups get a workspace of their own.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password required")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = strings.Split(req.Email, "@")[0]
	}

	user, err := s.sdb.Register(r.Context(), req.Email, req.Password, tenantID)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		s.logger.Error("registering user", "email", req.Email, "error", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	token, err := s.tokens.Issue(user.TenantID, user.ID, tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token generation failed")
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user, TenantID: user.TenantID})
}

// handleLogin verifies credentials against the system db and returns a
// fresh token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password required")
		return
	}

	user, err := s.sdb.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		s.logger.Error("logging in user", "email", req.Email, "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	token, err := s.tokens.Issue(user.TenantID, user.ID, tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token generation failed")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user, TenantID: user.TenantID})
}

// handleInviteUser creates a user in the caller's tenant. The account
// lands in the system db; the journal gains a users row so other
// sessions learn about the new member in real time.
func (s *Server) handleInviteUser(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password required")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	user, err := s.sdb.Register(r.Context(), req.Email, req.Password, tenantID)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		s.logger.Error("inviting user", "email", req.Email, "error", err)
		writeError(w, http.StatusInternalServerError, "invite failed")
		return
	}

	// The user row itself lives outside the tenant store, so this write
	// journals the membership change only. A journal failure here is
	// logged, not surfaced: the account exists either way and listings
	// remain correct.
	_, err = s.engine.Write(r.Context(), tenantID, func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		return []store.Change{{
			TableName: "users",
			EntityID:  user.ID,
			Operation: store.OpInsert,
			Payload:   user,
		}}, nil
	})
	if err != nil {
		s.logger.Warn("journaling user invite", "tenant_id", tenantID, "error", err)
	}

	writeJSON(w, http.StatusCreated, user)
}

// handleListTenantUsers returns the caller's tenant members.
func (s *Server) handleListTenantUsers(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())
	users, err := s.sdb.ListByTenant(r.Context(), tenantID)
	if err != nil {
		s.logger.Error("listing tenant users", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, users)
}
