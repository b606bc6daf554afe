// ABOUTME: LRU cache of open tenant stores keyed by tenant id
// ABOUTME: Lazily opens, migrates and evicts per-tenant SQLite databases

package store

import (
	"container/list"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
)

// Manager hands out ready-to-use tenant stores. On first access for a
// tenant it opens the database file, runs migrations and caches the
// handle; when the cache is full the least-recently-used store is closed
// and dropped. Open/migrate failures are surfaced and never cached.
type Manager struct {
	dataDir  string
	capacity int
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]*list.Element
	order *list.List // front = most recently used
}

type cacheEntry struct {
	tenantID string
	store    *TenantStore
}

// NewManager creates a Manager serving store files out of dataDir with at
// most capacity stores open at once. Pass nil logger for the default.
func NewManager(dataDir string, capacity int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		dataDir:  dataDir,
		capacity: capacity,
		logger:   logger.With("component", "store"),
		cache:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// StorePath returns the deterministic database file path for a tenant.
func (m *Manager) StorePath(tenantID string) string {
	return filepath.Join(m.dataDir, fmt.Sprintf("tenant_%s.db", tenantID))
}

// Open returns the store for tenantID, opening and migrating it if it is
// not cached. Safe for concurrent use.
func (m *Manager) Open(tenantID string) (*TenantStore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.cache[tenantID]; ok {
		m.order.MoveToFront(el)
		return el.Value.(*cacheEntry).store, nil
	}

	ts, err := openTenantStore(tenantID, m.StorePath(tenantID))
	if err != nil {
		return nil, err
	}
	if err := Migrate(ts.db, m.logger); err != nil {
		ts.Close()
		return nil, fmt.Errorf("migrating tenant %s: %w", tenantID, err)
	}

	if m.order.Len() >= m.capacity {
		m.evictLRU()
	}

	el := m.order.PushFront(&cacheEntry{tenantID: tenantID, store: ts})
	m.cache[tenantID] = el

	m.logger.Info("opened tenant store", "tenant_id", tenantID)
	return ts, nil
}

// evictLRU closes and drops the least-recently-used store. Close errors
// are logged but never surfaced; the evicted tenant simply reopens on its
// next access. Caller must hold m.mu.
func (m *Manager) evictLRU() {
	back := m.order.Back()
	if back == nil {
		return
	}
	e := back.Value.(*cacheEntry)
	if err := e.store.Close(); err != nil {
		m.logger.Warn("closing evicted tenant store", "tenant_id", e.tenantID, "error", err)
	}
	delete(m.cache, e.tenantID)
	m.order.Remove(back)
	m.logger.Info("evicted tenant store", "tenant_id", e.tenantID)
}

// Len reports how many stores are currently open.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// CloseAll closes every cached store. Idempotent; close errors are logged
// and swallowed.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for tenantID, el := range m.cache {
		if err := el.Value.(*cacheEntry).store.Close(); err != nil {
			m.logger.Warn("closing tenant store", "tenant_id", tenantID, "error", err)
		}
	}
	m.cache = make(map[string]*list.Element)
	m.order.Init()
	m.logger.Info("closed all tenant stores")
}
