// ABOUTME: Notification hub fanning out tenant version numbers to stream subscribers
// ABOUTME: Fed by Redis pub/sub so events cross process boundaries uniformly

package bus

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/redis/go-redis/v9"
)

const (
	// subscriberBufferSize is the per-subscriber queue depth. Overflow
	// drops the event; the client recovers by re-pulling with ?since=.
	subscriberBufferSize = 16

	// channelPrefix namespaces the coordination-service pub/sub topics.
	channelPrefix = "sync:"
)

var (
	publishedTotal = metrics.GetOrCreateCounter("driftsync_notifications_published_total")
	droppedTotal   = metrics.GetOrCreateCounter("driftsync_notifications_dropped_total")
)

// Hub fans version numbers out to local stream subscribers. Producers
// never write to local queues directly: Notify publishes through Redis
// and Run's subscription delivers it back, so every process — including
// the producer's own — takes the same path.
type Hub struct {
	rdb    *redis.Client
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]map[chan int64]struct{} // tenant_id -> set of queues
}

// NewHub creates a hub on the given Redis client. Pass nil logger for
// the default.
func NewHub(rdb *redis.Client, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rdb:    rdb,
		logger: logger.With("component", "bus"),
		subs:   make(map[string]map[chan int64]struct{}),
	}
}

// Channel returns the pub/sub topic for a tenant.
func Channel(tenantID string) string {
	return channelPrefix + tenantID
}

// Subscribe registers a stream subscriber for a tenant. The returned
// channel receives version numbers until the unsubscribe function runs;
// unsubscribing is safe from request-termination handlers and closes the
// channel.
func (h *Hub) Subscribe(tenantID string) (<-chan int64, func()) {
	ch := make(chan int64, subscriberBufferSize)

	h.mu.Lock()
	if h.subs[tenantID] == nil {
		h.subs[tenantID] = make(map[chan int64]struct{})
	}
	h.subs[tenantID][ch] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("subscriber added", "tenant_id", tenantID)

	unsub := func() {
		h.mu.Lock()
		if _, live := h.subs[tenantID][ch]; !live {
			// Already removed, e.g. by Close during shutdown.
			h.mu.Unlock()
			return
		}
		delete(h.subs[tenantID], ch)
		if len(h.subs[tenantID]) == 0 {
			delete(h.subs, tenantID)
		}
		h.mu.Unlock()
		close(ch)
		h.logger.Debug("subscriber removed", "tenant_id", tenantID)
	}
	return ch, unsub
}

// Notify publishes a committed version to the tenant's topic. Strictly
// fire-and-forget: a publish failure is logged and swallowed — the write
// already committed, and clients recover through ?since= on their next
// event.
func (h *Hub) Notify(ctx context.Context, tenantID string, version int64) {
	if err := h.rdb.Publish(ctx, Channel(tenantID), version).Err(); err != nil {
		h.logger.Warn("publishing notification",
			"tenant_id", tenantID, "version", version, "error", err)
		return
	}
	publishedTotal.Inc()
}

// Run subscribes to every tenant topic and fans received versions out to
// local subscribers. It blocks until ctx is cancelled or the pub/sub
// channel closes.
func (h *Hub) Run(ctx context.Context) {
	pubsub := h.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	h.logger.Info("listening for sync notifications")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.dispatch(msg.Channel, msg.Payload)
		}
	}
}

// dispatch delivers one pub/sub message to the tenant's local
// subscribers. Queues that are full drop the event rather than block the
// fan-out.
func (h *Hub) dispatch(channel, payload string) {
	tenantID, ok := strings.CutPrefix(channel, channelPrefix)
	if !ok || tenantID == "" {
		return
	}
	version, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		h.logger.Warn("ignoring malformed notification", "channel", channel, "payload", payload)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[tenantID] {
		select {
		case ch <- version:
		default:
			droppedTotal.Inc()
			h.logger.Debug("dropped version for slow subscriber",
				"tenant_id", tenantID, "version", version)
		}
	}
}

// SubscriberCount reports the number of live subscribers for a tenant.
func (h *Hub) SubscriberCount(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[tenantID])
}

// Close drops every subscriber and closes their channels. Called during
// shutdown after the HTTP server has stopped accepting streams.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for tenantID, subs := range h.subs {
		for ch := range subs {
			close(ch)
		}
		delete(h.subs, tenantID)
	}
	h.logger.Debug("hub closed")
}
