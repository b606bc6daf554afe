// ABOUTME: Server wiring and route table for the HTTP surface
// ABOUTME: Composes auth middleware, CORS, metrics and the static SPA

package api

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/VictoriaMetrics/metrics"

	"github.com/tidemark/driftsync/internal/auth"
	"github.com/tidemark/driftsync/internal/engine"
)

// VersionStreamer is the slice of the notification bus the stream
// endpoint needs.
type VersionStreamer interface {
	Subscribe(tenantID string) (<-chan int64, func())
}

// Server holds the handler dependencies.
type Server struct {
	engine    *engine.Engine
	sdb       *auth.SystemDB
	tokens    *auth.Tokens
	streams   VersionStreamer
	staticDir string
	logger    *slog.Logger
}

// NewServer wires the HTTP surface. Pass nil logger for the default;
// staticDir may be empty to disable SPA serving.
func NewServer(eng *engine.Engine, sdb *auth.SystemDB, tokens *auth.Tokens, streams VersionStreamer, staticDir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:    eng,
		sdb:       sdb,
		tokens:    tokens,
		streams:   streams,
		staticDir: staticDir,
		logger:    logger.With("component", "api"),
	}
}

// Handler returns the fully composed handler: routes wrapped in auth and
// CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Auth (public — middleware skips the /api/auth/ prefix)
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	// Sync surface
	mux.HandleFunc("GET /api/sync", s.handleGetDeltas)
	mux.HandleFunc("GET /sse/events", s.handleStream)

	// Projects
	mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("DELETE /api/projects/{id}", s.handleDeleteProject)

	// Kanban columns
	mux.HandleFunc("POST /api/kanban/columns", s.handleCreateColumn)
	mux.HandleFunc("PUT /api/kanban/columns/{id}", s.handleUpdateColumn)
	mux.HandleFunc("DELETE /api/kanban/columns/{id}", s.handleDeleteColumn)
	mux.HandleFunc("GET /api/kanban/columns", s.handleListColumns)

	// Kanban cards
	mux.HandleFunc("POST /api/kanban/cards", s.handleCreateCard)
	mux.HandleFunc("PUT /api/kanban/cards/{id}", s.handleUpdateCard)
	mux.HandleFunc("GET /api/kanban/cards", s.handleListCards)

	// Card details: tags, assignees, approvers, sessions
	mux.HandleFunc("POST /api/kanban/cards/{cardId}/tags", s.handleAddTag)
	mux.HandleFunc("DELETE /api/kanban/cards/{cardId}/tags/{tagId}", s.handleRemoveTag)
	mux.HandleFunc("POST /api/kanban/cards/{cardId}/assignees", s.handleAssignUser)
	mux.HandleFunc("DELETE /api/kanban/cards/{cardId}/assignees/{assigneeId}", s.handleUnassignUser)
	mux.HandleFunc("POST /api/kanban/cards/{cardId}/approvers", s.handleAddApprover)
	mux.HandleFunc("DELETE /api/kanban/cards/{cardId}/approvers/{approverId}", s.handleRemoveApprover)
	mux.HandleFunc("POST /api/kanban/cards/{cardId}/approvers/{approverId}/decide", s.handleDecideApproval)
	mux.HandleFunc("POST /api/kanban/cards/{cardId}/sessions", s.handleCreateSession)
	mux.HandleFunc("DELETE /api/kanban/cards/{cardId}/sessions/{sessionId}", s.handleDeleteSession)

	// Point of sale
	mux.HandleFunc("POST /api/products", s.handleCreateProduct)
	mux.HandleFunc("GET /api/products", s.handleListProducts)
	mux.HandleFunc("POST /api/orders", s.handleCreateOrder)
	mux.HandleFunc("GET /api/orders", s.handleListOrders)

	// Tenant users
	mux.HandleFunc("POST /api/users", s.handleInviteUser)
	mux.HandleFunc("GET /api/users", s.handleListTenantUsers)

	// Operational metrics, Prometheus text format.
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	if s.staticDir != "" {
		s.mountStatic(mux)
	}

	return corsMiddleware(s.tokens.Middleware(mux))
}

// mountStatic serves the built SPA with an index.html fallback, plus the
// isolation headers the browser-side database needs.
func (s *Server) mountStatic(mux *http.ServeMux) {
	info, err := os.Stat(s.staticDir)
	if err != nil || !info.IsDir() {
		s.logger.Warn("static dir unavailable", "dir", s.staticDir)
		return
	}
	s.logger.Info("serving static files", "dir", s.staticDir)
	fs := http.FileServer(http.Dir(s.staticDir))
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// COOP/COEP headers required for SharedArrayBuffer (OPFS)
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")

		path := filepath.Join(s.staticDir, filepath.Clean(r.URL.Path))
		if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
			fs.ServeHTTP(w, r)
			return
		}
		// SPA fallback
		http.ServeFile(w, r, filepath.Join(s.staticDir, "index.html"))
	}))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
