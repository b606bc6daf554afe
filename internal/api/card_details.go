// ABOUTME: Card detail handlers: tags, assignees, approvers and sessions
// ABOUTME: Approver decisions recalculate the card's aggregate status

package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tidemark/driftsync/internal/auth"
	"github.com/tidemark/driftsync/internal/store"
)

type tag struct {
	ID     string `json:"id"`
	CardID string `json:"card_id"`
	Name   string `json:"name"`
}

type assignee struct {
	ID        string `json:"id"`
	CardID    string `json:"card_id"`
	UserID    string `json:"user_id"`
	UserEmail string `json:"user_email"`
}

type approver struct {
	ID        string  `json:"id"`
	CardID    string  `json:"card_id"`
	UserID    string  `json:"user_id"`
	UserEmail string  `json:"user_email"`
	Status    string  `json:"status"`
	DecidedAt *string `json:"decided_at"`
}

type workSession struct {
	ID       string `json:"id"`
	CardID   string `json:"card_id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// --- Tags ---

func (s *Server) handleAddTag(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())
	cardID := r.PathValue("cardId")

	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}

	t := tag{ID: uuid.New().String(), CardID: cardID, Name: req.Name}
	_, err := s.engine.Write(r.Context(), tenantID, func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO card_tags (id, card_id, name) VALUES (?, ?, ?)",
			t.ID, t.CardID, t.Name); err != nil {
			if store.IsConstraintViolation(err) {
				return nil, fmt.Errorf("tag %q: %w", req.Name, store.ErrConflict)
			}
			return nil, fmt.Errorf("inserting tag: %w", err)
		}
		return []store.Change{{TableName: "card_tags", EntityID: t.ID, Operation: store.OpInsert, Payload: t}}, nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())
	cardID := r.PathValue("cardId")
	tagID := r.PathValue("tagId")

	_, err := s.engine.Write(r.Context(), tenantID, func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		result, err := tx.ExecContext(ctx,
			"DELETE FROM card_tags WHERE id = ? AND card_id = ?", tagID, cardID)
		if err != nil {
			return nil, fmt.Errorf("deleting tag: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("tag %s: %w", tagID, store.ErrNotFound)
		}
		return []store.Change{store.Deleted("card_tags", tagID)}, nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"deleted": tagID})
}

// --- Assignees ---

func (s *Server) handleAssignUser(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())
	cardID := r.PathValue("cardId")

	var req struct {
		UserID    string `json:"user_id"`
		UserEmail string `json:"user_email"`
	}
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}

	a := assignee{ID: uuid.New().String(), CardID: cardID, UserID: req.UserID, UserEmail: req.UserEmail}
	_, err := s.engine.Write(r.Context(), tenantID, func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO card_assigned_users (id, card_id, user_id, user_email) VALUES (?, ?, ?, ?)",
			a.ID, a.CardID, a.UserID, a.UserEmail); err != nil {
			if store.IsConstraintViolation(err) {
				return nil, fmt.Errorf("assignee %s: %w", req.UserID, store.ErrConflict)
			}
			return nil, fmt.Errorf("inserting assignee: %w", err)
		}
		return []store.Change{{TableName: "card_assigned_users", EntityID: a.ID, Operation: store.OpInsert, Payload: a}}, nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleUnassignUser(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())
	cardID := r.PathValue("cardId")
	assigneeID := r.PathValue("assigneeId")

	_, err := s.engine.Write(r.Context(), tenantID, func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		result, err := tx.ExecContext(ctx,
			"DELETE FROM card_assigned_users WHERE id = ? AND card_id = ?", assigneeID, cardID)
		if err != nil {
			return nil, fmt.Errorf("deleting assignee: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("assignee %s: %w", assigneeID, store.ErrNotFound)
		}
		return []store.Change{store.Deleted("card_assigned_users", assigneeID)}, nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"deleted": assigneeID})
}

// --- Approvers ---

func (s *Server) handleAddApprover(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())
	cardID := r.PathValue("cardId")

	var req struct {
		UserID    string `json:"user_id"`
		UserEmail string `json:"user_email"`
	}
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}

	a := approver{ID: uuid.New().String(), CardID: cardID, UserID: req.UserID, UserEmail: req.UserEmail, Status: "pending"}
	_, err := s.engine.Write(r.Context(), tenantID, func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO card_approvers (id, card_id, user_id, user_email) VALUES (?, ?, ?, ?)",
			a.ID, a.CardID, a.UserID, a.UserEmail); err != nil {
			if store.IsConstraintViolation(err) {
				return nil, fmt.Errorf("approver %s: %w", req.UserID, store.ErrConflict)
			}
			return nil, fmt.Errorf("inserting approver: %w", err)
		}
		if err := recalcApprovalStatus(ctx, tx, cardID); err != nil {
			return nil, err
		}
		cardChange, err := cardUpdateChange(ctx, tx, cardID)
		if err != nil {
			return nil, err
		}
		return []store.Change{
			{TableName: "card_approvers", EntityID: a.ID, Operation: store.OpInsert, Payload: a},
			cardChange,
		}, nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleRemoveApprover(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())
	cardID := r.PathValue("cardId")
	approverID := r.PathValue("approverId")

	_, err := s.engine.Write(r.Context(), tenantID, func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		result, err := tx.ExecContext(ctx,
			"DELETE FROM card_approvers WHERE id = ? AND card_id = ?", approverID, cardID)
		if err != nil {
			return nil, fmt.Errorf("deleting approver: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("approver %s: %w", approverID, store.ErrNotFound)
		}
		if err := recalcApprovalStatus(ctx, tx, cardID); err != nil {
			return nil, err
		}
		cardChange, err := cardUpdateChange(ctx, tx, cardID)
		if err != nil {
			return nil, err
		}
		return []store.Change{store.Deleted("card_approvers", approverID), cardChange}, nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"deleted": approverID})
}

func (s *Server) handleDecideApproval(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())
	userID := auth.UserFromContext(r.Context())
	cardID := r.PathValue("cardId")
	approverID := r.PathValue("approverId")

	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil || (req.Status != "approved" && req.Status != "rejected") {
		writeError(w, http.StatusBadRequest, "status must be approved or rejected")
		return
	}

	var a approver
	_, err := s.engine.Write(r.Context(), tenantID, func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		var approverUserID string
		err := tx.QueryRowContext(ctx,
			"SELECT user_id FROM card_approvers WHERE id = ? AND card_id = ?",
			approverID, cardID).Scan(&approverUserID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("approver %s: %w", approverID, store.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("reading approver: %w", err)
		}
		if approverUserID != userID {
			return nil, fmt.Errorf("%w: you can only decide your own approval", errForbidden)
		}

		decidedAt := time.Now().UTC().Format(time.RFC3339)
		if _, err := tx.ExecContext(ctx,
			"UPDATE card_approvers SET status = ?, decided_at = ? WHERE id = ?",
			req.Status, decidedAt, approverID); err != nil {
			return nil, fmt.Errorf("updating approver: %w", err)
		}
		if err := recalcApprovalStatus(ctx, tx, cardID); err != nil {
			return nil, err
		}

		err = tx.QueryRowContext(ctx,
			"SELECT id, card_id, user_id, user_email, status, decided_at FROM card_approvers WHERE id = ?",
			approverID).Scan(&a.ID, &a.CardID, &a.UserID, &a.UserEmail, &a.Status, &a.DecidedAt)
		if err != nil {
			return nil, fmt.Errorf("reading approver back: %w", err)
		}

		cardChange, err := cardUpdateChange(ctx, tx, cardID)
		if err != nil {
			return nil, err
		}
		return []store.Change{
			{TableName: "card_approvers", EntityID: a.ID, Operation: store.OpUpdate, Payload: a},
			cardChange,
		}, nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// --- Sessions ---

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())
	cardID := r.PathValue("cardId")

	var req struct {
		Name     string `json:"name"`
		Position int    `json:"position"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}

	ws := workSession{ID: uuid.New().String(), CardID: cardID, Name: req.Name, Position: req.Position}
	_, err := s.engine.Write(r.Context(), tenantID, func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO card_sessions (id, card_id, name, position) VALUES (?, ?, ?, ?)",
			ws.ID, ws.CardID, ws.Name, ws.Position); err != nil {
			return nil, fmt.Errorf("inserting session: %w", err)
		}
		return []store.Change{{TableName: "card_sessions", EntityID: ws.ID, Operation: store.OpInsert, Payload: ws}}, nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ws)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())
	cardID := r.PathValue("cardId")
	sessionID := r.PathValue("sessionId")

	_, err := s.engine.Write(r.Context(), tenantID, func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		result, err := tx.ExecContext(ctx,
			"DELETE FROM card_sessions WHERE id = ? AND card_id = ?", sessionID, cardID)
		if err != nil {
			return nil, fmt.Errorf("deleting session: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("session %s: %w", sessionID, store.ErrNotFound)
		}
		return []store.Change{store.Deleted("card_sessions", sessionID)}, nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"deleted": sessionID})
}

// recalcApprovalStatus derives the card's aggregate approval status:
// any rejection rejects the card, unanimous approval approves it,
// anything else leaves it pending.
func recalcApprovalStatus(ctx context.Context, tx *sql.Tx, cardID string) error {
	var total, approved, rejected int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status='approved' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status='rejected' THEN 1 ELSE 0 END), 0)
		 FROM card_approvers WHERE card_id = ?`, cardID,
	).Scan(&total, &approved, &rejected)
	if err != nil {
		return fmt.Errorf("counting approvers: %w", err)
	}

	var status string
	switch {
	case total == 0:
		status = "pending"
	case rejected > 0:
		status = "rejected"
	case approved == total:
		status = "approved"
	default:
		status = "pending"
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE kanban_cards SET approval_status = ? WHERE id = ?", status, cardID); err != nil {
		return fmt.Errorf("updating approval status: %w", err)
	}
	return nil
}
