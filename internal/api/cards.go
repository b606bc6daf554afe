// ABOUTME: Kanban card create/update/list handlers
// ABOUTME: Partial updates read the full card back and journal its post-state

package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/tidemark/driftsync/internal/auth"
	"github.com/tidemark/driftsync/internal/store"
)

type card struct {
	ID                 string  `json:"id"`
	ProjectID          string  `json:"project_id"`
	ColumnName         string  `json:"column_name"`
	Title              string  `json:"title"`
	Position           int     `json:"position"`
	ApprovalStatus     string  `json:"approval_status"`
	AssignedApproverID *string `json:"assigned_approver_id"`
	DueDate            *string `json:"due_date"`
	Client             *string `json:"client"`
	Priority           string  `json:"priority"`
	Notes              *string `json:"notes"`
}

// readCard loads the full card row inside a transaction.
func readCard(ctx context.Context, tx *sql.Tx, cardID string) (card, error) {
	var c card
	err := tx.QueryRowContext(ctx,
		`SELECT id, project_id, column_name, title, position, approval_status,
		        assigned_approver_id, due_date, client, priority, notes
		 FROM kanban_cards WHERE id = ?`, cardID,
	).Scan(&c.ID, &c.ProjectID, &c.ColumnName, &c.Title, &c.Position, &c.ApprovalStatus,
		&c.AssignedApproverID, &c.DueDate, &c.Client, &c.Priority, &c.Notes)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("card %s: %w", cardID, store.ErrNotFound)
	}
	if err != nil {
		return c, fmt.Errorf("reading card: %w", err)
	}
	return c, nil
}

// cardUpdateChange rereads a card and builds the UPDATE journal change
// for it. Detail handlers use it so card aggregates (approval status)
// ride along with their side-table changes.
func cardUpdateChange(ctx context.Context, tx *sql.Tx, cardID string) (store.Change, error) {
	c, err := readCard(ctx, tx, cardID)
	if err != nil {
		return store.Change{}, err
	}
	return store.Change{TableName: "kanban_cards", EntityID: c.ID, Operation: store.OpUpdate, Payload: c}, nil
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())

	var req struct {
		ProjectID  string `json:"project_id"`
		ColumnName string `json:"column_name"`
		Title      string `json:"title"`
		Position   int    `json:"position"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Title == "" || req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "project_id and title required")
		return
	}
	if req.ColumnName == "" {
		req.ColumnName = "backlog"
	}

	cardID := uuid.New().String()
	var c card
	_, err := s.engine.Write(r.Context(), tenantID, func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO kanban_cards (id, project_id, column_name, title, position) VALUES (?, ?, ?, ?, ?)",
			cardID, req.ProjectID, req.ColumnName, req.Title, req.Position); err != nil {
			return nil, fmt.Errorf("inserting card: %w", err)
		}
		var err error
		// Read back so the response and payload carry the column defaults.
		c, err = readCard(ctx, tx, cardID)
		if err != nil {
			return nil, err
		}
		return []store.Change{{TableName: "kanban_cards", EntityID: c.ID, Operation: store.OpInsert, Payload: c}}, nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())
	cardID := r.PathValue("id")

	var req struct {
		ColumnName         *string `json:"column_name"`
		Title              *string `json:"title"`
		Position           *int    `json:"position"`
		ApprovalStatus     *string `json:"approval_status"`
		AssignedApproverID *string `json:"assigned_approver_id"`
		DueDate            *string `json:"due_date"`
		Client             *string `json:"client"`
		Priority           *string `json:"priority"`
		Notes              *string `json:"notes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	sets := []struct {
		column string
		value  any
		set    bool
	}{
		{"column_name", deref(req.ColumnName), req.ColumnName != nil},
		{"title", deref(req.Title), req.Title != nil},
		{"position", derefInt(req.Position), req.Position != nil},
		{"approval_status", deref(req.ApprovalStatus), req.ApprovalStatus != nil},
		{"assigned_approver_id", deref(req.AssignedApproverID), req.AssignedApproverID != nil},
		{"due_date", deref(req.DueDate), req.DueDate != nil},
		{"client", deref(req.Client), req.Client != nil},
		{"priority", deref(req.Priority), req.Priority != nil},
		{"notes", deref(req.Notes), req.Notes != nil},
	}

	var c card
	_, err := s.engine.Write(r.Context(), tenantID, func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		for _, u := range sets {
			if !u.set {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				"UPDATE kanban_cards SET "+u.column+" = ? WHERE id = ?", u.value, cardID); err != nil {
				return nil, fmt.Errorf("updating card %s: %w", u.column, err)
			}
		}
		var err error
		c, err = readCard(ctx, tx, cardID)
		if err != nil {
			return nil, err
		}
		return []store.Change{{TableName: "kanban_cards", EntityID: c.ID, Operation: store.OpUpdate, Payload: c}}, nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())

	ts, err := s.engine.Stores().Open(tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	query := `SELECT id, project_id, column_name, title, position, approval_status,
	                 assigned_approver_id, due_date, client, priority, notes
	          FROM kanban_cards`
	var args []any
	if projectID := r.URL.Query().Get("project_id"); projectID != "" {
		query += " WHERE project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY position"

	rows, err := ts.DB().QueryContext(r.Context(), query, args...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	defer rows.Close()

	cards := []card{}
	for rows.Next() {
		var c card
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.ColumnName, &c.Title, &c.Position, &c.ApprovalStatus,
			&c.AssignedApproverID, &c.DueDate, &c.Client, &c.Priority, &c.Notes); err != nil {
			writeError(w, http.StatusInternalServerError, "scan failed")
			return
		}
		cards = append(cards, c)
	}
	writeJSON(w, http.StatusOK, cards)
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func derefInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}
