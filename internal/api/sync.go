// ABOUTME: Delta endpoint returning journal rows after a given version
// ABOUTME: GET /api/sync?since=N, ordered ascending, never blocks

package api

import (
	"net/http"
	"strconv"

	"github.com/tidemark/driftsync/internal/auth"
)

// handleGetDeltas returns every journal row in the caller's tenant with
// version > since. since defaults to 0 when absent or unparseable, so a
// fresh client always gets the full journal.
func (s *Server) handleGetDeltas(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())

	ts, err := s.engine.Stores().Open(tenantID)
	if err != nil {
		s.logger.Error("opening tenant store", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)

	entries, err := ts.ReadJournalSince(r.Context(), since)
	if err != nil {
		s.logger.Error("reading journal", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "journal read failed")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
