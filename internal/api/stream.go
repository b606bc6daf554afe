// ABOUTME: Server-sent event stream pushing committed versions to one client
// ABOUTME: Emits a proxy-defeating preamble then "data: <version>" frames

package api

import (
	"net/http"
	"strconv"

	"github.com/tidemark/driftsync/internal/auth"
)

// handleStream serves GET /sse/events. One subscription per connection;
// the stream lives until the client disconnects or the server shuts
// down. Clients always re-pull by ?since= after (re)connecting, so a
// dropped frame or connection is self-healing.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Subscribe before the preamble: a version committed while the
	// preamble is in flight must still reach this client.
	versions, unsub := s.streams.Subscribe(tenantID)
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	// Comment frame forces buffering proxies to start forwarding.
	w.Write([]byte(":ok\n\n"))
	flusher.Flush()

	s.logger.Debug("stream opened", "tenant_id", tenantID)
	defer s.logger.Debug("stream closed", "tenant_id", tenantID)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case version, ok := <-versions:
			if !ok {
				return
			}
			w.Write([]byte("data: " + strconv.FormatInt(version, 10) + "\n\n"))
			flusher.Flush()
		}
	}
}
