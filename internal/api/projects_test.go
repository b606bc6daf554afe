// ABOUTME: Tests for project handlers and write-pipeline error surfaces
// ABOUTME: Covers create/delete/list, validation and oracle failure paths

package api

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark/driftsync/internal/store"
)

func TestCreateProject_ReturnsCanonicalState(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(ts.authedRequest(t, http.MethodPost, "/api/projects", "acme", "u1",
		strings.NewReader(`{"name":"Roadmap"}`)))

	require.Equal(t, http.StatusCreated, rec.Code)
	p := decodeBody[project](t, rec)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Roadmap", p.Name)
}

func TestCreateProject_Validation(t *testing.T) {
	ts := setupTestServer(t)

	for _, body := range []string{``, `{}`, `{"name":""}`, `not json`} {
		rec := ts.do(ts.authedRequest(t, http.MethodPost, "/api/projects", "acme", "u1",
			strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}

	// A rejected request leaves no journal row.
	rec := ts.do(ts.authedRequest(t, http.MethodGet, "/api/sync?since=0", "acme", "u1", nil))
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestDeleteProject_JournalsDelete(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(ts.authedRequest(t, http.MethodPost, "/api/projects", "acme", "u1",
		strings.NewReader(`{"name":"Roadmap"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	p := decodeBody[project](t, rec)

	rec = ts.do(ts.authedRequest(t, http.MethodDelete, "/api/projects/"+p.ID, "acme", "u1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(ts.authedRequest(t, http.MethodGet, "/api/sync?since=1", "acme", "u1", nil))
	entries := decodeBody[[]store.JournalEntry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, store.OpDelete, entries[0].Operation)
	assert.Equal(t, p.ID, entries[0].EntityID)
	assert.Equal(t, "{}", entries[0].Payload)
	assert.Equal(t, int64(2), entries[0].Version)
}

func TestDeleteProject_NotFound(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(ts.authedRequest(t, http.MethodDelete, "/api/projects/missing", "acme", "u1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListProjects_EmptyThenOrdered(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(ts.authedRequest(t, http.MethodGet, "/api/projects", "acme", "u1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	for _, name := range []string{"First", "Second"} {
		rec := ts.do(ts.authedRequest(t, http.MethodPost, "/api/projects", "acme", "u1",
			strings.NewReader(`{"name":"`+name+`"}`)))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec = ts.do(ts.authedRequest(t, http.MethodGet, "/api/projects", "acme", "u1", nil))
	projects := decodeBody[[]project](t, rec)
	require.Len(t, projects, 2)
	assert.Equal(t, "First", projects[0].Name)
	assert.Equal(t, "Second", projects[1].Name)
}

func TestCreateProject_OracleFailureLeavesNoTrace(t *testing.T) {
	ts := setupTestServer(t)

	// One good write so the journal is non-empty.
	rec := ts.do(ts.authedRequest(t, http.MethodPost, "/api/projects", "acme", "u1",
		strings.NewReader(`{"name":"Roadmap"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	ts.oracle.FailNext = errors.New("coordination service down")
	rec = ts.do(ts.authedRequest(t, http.MethodPost, "/api/projects", "acme", "u1",
		strings.NewReader(`{"name":"Doomed"}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	// No journal row, no domain row for the failed request.
	rec = ts.do(ts.authedRequest(t, http.MethodGet, "/api/sync?since=0", "acme", "u1", nil))
	entries := decodeBody[[]store.JournalEntry](t, rec)
	require.Len(t, entries, 1)

	rec = ts.do(ts.authedRequest(t, http.MethodGet, "/api/projects", "acme", "u1", nil))
	projects := decodeBody[[]project](t, rec)
	require.Len(t, projects, 1)
	assert.Equal(t, "Roadmap", projects[0].Name)
}

func TestWriteEndpoints_RequireAuth(t *testing.T) {
	ts := setupTestServer(t)

	req := ts.authedRequest(t, http.MethodPost, "/api/projects", "acme", "u1",
		strings.NewReader(`{"name":"Roadmap"}`))
	req.Header.Del("Authorization")
	rec := ts.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
