// ABOUTME: Shared test harness for the HTTP surface
// ABOUTME: Builds a full server on temp stores, a memory oracle and a local bus

package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tidemark/driftsync/internal/auth"
	"github.com/tidemark/driftsync/internal/engine"
	"github.com/tidemark/driftsync/internal/oracle"
	"github.com/tidemark/driftsync/internal/store"
)

// localBus is an in-process stand-in for the Redis-backed hub: Notify
// delivers straight to local subscribers. It implements both the
// engine's Notifier and the server's VersionStreamer.
type localBus struct {
	mu   sync.Mutex
	subs map[string][]chan int64
}

func newLocalBus() *localBus {
	return &localBus{subs: make(map[string][]chan int64)}
}

func (b *localBus) Subscribe(tenantID string) (<-chan int64, func()) {
	ch := make(chan int64, 16)
	b.mu.Lock()
	b.subs[tenantID] = append(b.subs[tenantID], ch)
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		kept := b.subs[tenantID][:0]
		for _, c := range b.subs[tenantID] {
			if c != ch {
				kept = append(kept, c)
			}
		}
		b.subs[tenantID] = kept
	}
}

func (b *localBus) Notify(_ context.Context, tenantID string, version int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[tenantID] {
		select {
		case ch <- version:
		default:
		}
	}
}

type testServer struct {
	server  *Server
	handler http.Handler
	stores  *store.Manager
	oracle  *oracle.MemoryOracle
	bus     *localBus
	tokens  *auth.Tokens
	sdb     *auth.SystemDB
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	dir := t.TempDir()
	stores := store.NewManager(dir, 8, nil)
	t.Cleanup(stores.CloseAll)

	sdb, err := auth.OpenSystemDB(filepath.Join(dir, "system.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { sdb.Close() })

	o := oracle.NewMemoryOracle()
	b := newLocalBus()
	eng := engine.New(stores, o, b, nil)
	tokens := auth.NewTokens([]byte("test-secret"))
	srv := NewServer(eng, sdb, tokens, b, "", nil)

	return &testServer{
		server:  srv,
		handler: srv.Handler(),
		stores:  stores,
		oracle:  o,
		bus:     b,
		tokens:  tokens,
		sdb:     sdb,
	}
}

// authedRequest builds a request carrying a valid token for the tenant.
func (ts *testServer) authedRequest(t *testing.T, method, target, tenantID, userID string, body io.Reader) *http.Request {
	t.Helper()
	token, err := ts.tokens.Issue(tenantID, userID, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// do runs a request through the full middleware stack.
func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}
