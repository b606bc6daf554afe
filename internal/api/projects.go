// ABOUTME: Project CRUD handlers
// ABOUTME: Writes run through the engine's pipeline, reads hit the store

package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/tidemark/driftsync/internal/auth"
	"github.com/tidemark/driftsync/internal/store"
)

type project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())

	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}

	p := project{ID: uuid.New().String(), Name: req.Name}
	_, err := s.engine.Write(r.Context(), tenantID, func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO projects (id, name) VALUES (?, ?)", p.ID, p.Name); err != nil {
			return nil, fmt.Errorf("inserting project: %w", err)
		}
		return []store.Change{{TableName: "projects", EntityID: p.ID, Operation: store.OpInsert, Payload: p}}, nil
	})
	if err != nil {
		s.logger.Error("creating project", "tenant_id", tenantID, "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())
	projectID := r.PathValue("id")

	_, err := s.engine.Write(r.Context(), tenantID, func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		result, err := tx.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", projectID)
		if err != nil {
			return nil, fmt.Errorf("deleting project: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("project %s: %w", projectID, store.ErrNotFound)
		}
		return []store.Change{store.Deleted("projects", projectID)}, nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"deleted": projectID})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())

	ts, err := s.engine.Stores().Open(tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	rows, err := ts.DB().QueryContext(r.Context(),
		"SELECT id, name FROM projects ORDER BY created_at")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	defer rows.Close()

	projects := []project{}
	for rows.Next() {
		var p project
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			writeError(w, http.StatusInternalServerError, "scan failed")
			return
		}
		projects = append(projects, p)
	}
	writeJSON(w, http.StatusOK, projects)
}
