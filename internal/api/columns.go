// ABOUTME: Kanban column CRUD handlers
// ABOUTME: Columns belong to a project; updates journal full post-state

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

type column struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	Position  int    `json:"position"`
}

func (s *Server) handleCreateColumn(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())

	var req struct {
		ProjectID string `json:"project_id"`
		Name      string `json:"name"`
		Color     string `json:"color"`
		Position  int    `json:"position"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Name == "" || req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "project_id and name required")
		return
	}
	if req.Color == "" {
		req.Color = "bg-gray-500"
	}

	c := column{
		ID:        uuid.New().String(),
		ProjectID: req.ProjectID,
		Name:      req.Name,
		Color:     req.Color,
		Position:  req.Position,
	}
	_, err := s.engine.Write(r.Context(), tenantID, func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO kanban_columns (id, project_id, name, color, position) VALUES (?, ?, ?, ?, ?)",
			c.ID, c.ProjectID, c.Name, c.Color, c.Position); err != nil {
			return nil, fmt.Errorf("inserting column: %w", err)
		}
		return []store.Change{{TableName: "kanban_columns", EntityID: c.ID, Operation: store.OpInsert, Payload: c}}, nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateColumn(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())
	colID := r.PathValue("id")

	var req struct {
		Name     *string `json:"name"`
		Color    *string `json:"color"`
		Position *int    `json:"position"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	var c column
	_, err := s.engine.Write(r.Context(), tenantID, func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		if req.Name != nil {
			if _, err := tx.ExecContext(ctx, "UPDATE kanban_columns SET name = ? WHERE id = ?", *req.Name, colID); err != nil {
				return nil, fmt.Errorf("updating column name: %w", err)
			}
		}
		if req.Color != nil {
			if _, err := tx.ExecContext(ctx, "UPDATE kanban_columns SET color = ? WHERE id = ?", *req.Color, colID); err != nil {
				return nil, fmt.Errorf("updating column color: %w", err)
			}
		}
		if req.Position != nil {
			if _, err := tx.ExecContext(ctx, "UPDATE kanban_columns SET position = ? WHERE id = ?", *req.Position, colID); err != nil {
				return nil, fmt.Errorf("updating column position: %w", err)
			}
		}

		err := tx.QueryRowContext(ctx,
			"SELECT id, project_id, name, color, position FROM kanban_columns WHERE id = ?", colID,
		).Scan(&c.ID, &c.ProjectID, &c.Name, &c.Color, &c.Position)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("column %s: %w", colID, store.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("reading column back: %w", err)
		}
		return []store.Change{{TableName: "kanban_columns", EntityID: c.ID, Operation: store.OpUpdate, Payload: c}}, nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteColumn(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())
	colID := r.PathValue("id")

	_, err := s.engine.Write(r.Context(), tenantID, func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		result, err := tx.ExecContext(ctx, "DELETE FROM kanban_columns WHERE id = ?", colID)
		if err != nil {
			return nil, fmt.Errorf("deleting column: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("column %s: %w", colID, store.ErrNotFound)
		}
		return []store.Change{store.Deleted("kanban_columns", colID)}, nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"deleted": colID})
}

func (s *Server) handleListColumns(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())

	ts, err := s.engine.Stores().Open(tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	query := "SELECT id, project_id, name, color, position FROM kanban_columns"
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

	cols := []column{}
	for rows.Next() {
		var c column
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Color, &c.Position); err != nil {
			writeError(w, http.StatusInternalServerError, "scan failed")
			return
		}
		cols = append(cols, c)
	}
	writeJSON(w, http.StatusOK, cols)
}
