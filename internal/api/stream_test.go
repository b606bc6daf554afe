// ABOUTME: Tests for the SSE stream endpoint
// ABOUTME: Covers headers, preamble, frame format, delivery and disconnect

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamRecorder is a concurrency-safe ResponseWriter+Flusher: the
// handler writes from its own goroutine while the test polls the body.
type streamRecorder struct {
	mu     sync.Mutex
	header http.Header
	body   bytes.Buffer
	status int
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{header: make(http.Header), status: http.StatusOK}
}

func (r *streamRecorder) Header() http.Header { return r.header }

func (r *streamRecorder) WriteHeader(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
}

func (r *streamRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.Write(p)
}

func (r *streamRecorder) Flush() {}

func (r *streamRecorder) BodyString() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.String()
}

func (r *streamRecorder) Status() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// runStream drives the stream handler in a goroutine with a cancelable
// request context and returns the recorder plus a stop function that
// waits for the handler to exit and returns the final body.
func runStream(t *testing.T, ts *testServer, tenantID string) (*streamRecorder, func() string) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req := ts.authedRequest(t, http.MethodGet, "/sse/events", tenantID, "u1", nil).WithContext(ctx)
	rec := newStreamRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		ts.handler.ServeHTTP(rec, req)
	}()

	// Wait for the preamble so the subscription is live before the test
	// publishes anything.
	require.Eventually(t, func() bool {
		return strings.Contains(rec.BodyString(), ":ok\n\n")
	}, time.Second, 5*time.Millisecond)

	stopped := false
	stop := func() string {
		if !stopped {
			stopped = true
			cancel()
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("stream handler did not exit on disconnect")
			}
		}
		return rec.BodyString()
	}
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return rec, stop
}

func TestStream_HeadersAndPreamble(t *testing.T) {
	ts := setupTestServer(t)

	rec, stop := runStream(t, ts, "acme")
	body := stop()

	assert.Equal(t, http.StatusOK, rec.Status())
	assert.Equal(t, "text/event-stream; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
	assert.True(t, strings.HasPrefix(body, ":ok\n\n"))
}

func TestStream_RequiresAuth(t *testing.T) {
	ts := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/sse/events", nil)
	rec := ts.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStream_DeliversVersionFrames(t *testing.T) {
	ts := setupTestServer(t)

	rec, stop := runStream(t, ts, "acme")

	ts.bus.Notify(context.Background(), "acme", 1)
	require.Eventually(t, func() bool {
		return strings.Contains(rec.BodyString(), "data: 1\n\n")
	}, time.Second, 5*time.Millisecond)

	ts.bus.Notify(context.Background(), "acme", 2)
	require.Eventually(t, func() bool {
		return strings.Contains(rec.BodyString(), "data: 2\n\n")
	}, time.Second, 5*time.Millisecond)

	body := stop()
	// Frames arrive in version order after the preamble.
	assert.Less(t, strings.Index(body, "data: 1\n\n"), strings.Index(body, "data: 2\n\n"))
}

func TestStream_WriteIsDeliveredEndToEnd(t *testing.T) {
	ts := setupTestServer(t)

	rec, stop := runStream(t, ts, "acme")

	// A domain write on another connection publishes exactly one frame.
	post := ts.do(ts.authedRequest(t, http.MethodPost, "/api/projects", "acme", "u2",
		strings.NewReader(`{"name":"Roadmap"}`)))
	require.Equal(t, http.StatusCreated, post.Code)

	require.Eventually(t, func() bool {
		return strings.Contains(rec.BodyString(), "data: 1\n\n")
	}, time.Second, 5*time.Millisecond)

	body := stop()
	assert.Equal(t, 1, strings.Count(body, "data: "),
		"one write, one notification frame")
}

func TestStream_TenantIsolation(t *testing.T) {
	ts := setupTestServer(t)

	_, stop := runStream(t, ts, "globex")

	post := ts.do(ts.authedRequest(t, http.MethodPost, "/api/projects", "acme", "u1",
		strings.NewReader(`{"name":"Roadmap"}`)))
	require.Equal(t, http.StatusCreated, post.Code)

	time.Sleep(50 * time.Millisecond)
	body := stop()
	assert.NotContains(t, body, "data: ", "acme's write must not reach globex's stream")
}

func TestStream_UnsubscribesOnDisconnect(t *testing.T) {
	ts := setupTestServer(t)

	_, stop := runStream(t, ts, "acme")
	ts.bus.mu.Lock()
	live := len(ts.bus.subs["acme"])
	ts.bus.mu.Unlock()
	require.Equal(t, 1, live)

	stop()

	ts.bus.mu.Lock()
	live = len(ts.bus.subs["acme"])
	ts.bus.mu.Unlock()
	assert.Zero(t, live, "disconnect must tear the subscription down")
}
