// ABOUTME: Tests for the tenant store LRU manager
// ABOUTME: Covers lazy open, cache hits, eviction, reopen and CloseAll

package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestManager(t *testing.T, capacity int) *Manager {
	t.Helper()
	m := NewManager(t.TempDir(), capacity, nil)
	t.Cleanup(m.CloseAll)
	return m
}

func TestManager_OpenCreatesStoreFile(t *testing.T) {
	m := setupTestManager(t, 4)

	ts, err := m.Open("acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", ts.TenantID())

	_, err = os.Stat(m.StorePath("acme"))
	require.NoError(t, err, "store file should exist after first open")
}

func TestManager_OpenIsCached(t *testing.T) {
	m := setupTestManager(t, 4)

	first, err := m.Open("acme")
	require.NoError(t, err)
	second, err := m.Open("acme")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, m.Len())
}

func TestManager_EvictsLeastRecentlyUsed(t *testing.T) {
	m := setupTestManager(t, 2)

	a, err := m.Open("alpha")
	require.NoError(t, err)
	_, err = m.Open("beta")
	require.NoError(t, err)

	// Touch alpha so beta becomes the LRU entry.
	_, err = m.Open("alpha")
	require.NoError(t, err)

	_, err = m.Open("gamma")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	// alpha survived the eviction; beta was closed.
	again, err := m.Open("alpha")
	require.NoError(t, err)
	assert.Same(t, a, again)
}

func TestManager_EvictedStoreReopensWithoutDataLoss(t *testing.T) {
	m := setupTestManager(t, 1)
	ctx := context.Background()

	ts, err := m.Open("alpha")
	require.NoError(t, err)

	tx, err := ts.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, "INSERT INTO projects (id, name) VALUES (?, ?)", "p1", "Roadmap")
	require.NoError(t, err)
	require.NoError(t, AppendChange(ctx, tx, Change{
		TableName: "projects", EntityID: "p1", Operation: OpInsert,
		Payload: map[string]string{"id": "p1", "name": "Roadmap"},
	}, 1))
	require.NoError(t, tx.Commit())

	// Evict alpha by opening another tenant, then come back.
	_, err = m.Open("beta")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	reopened, err := m.Open("alpha")
	require.NoError(t, err)

	entries, err := reopened.ReadJournalSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "projects", entries[0].TableName)
	assert.Equal(t, int64(1), entries[0].Version)
}

func TestManager_CapacityHolds(t *testing.T) {
	m := setupTestManager(t, 2)

	for _, id := range []string{"t1", "t2", "t3", "t4", "t5"} {
		_, err := m.Open(id)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, m.Len())
}

func TestManager_CloseAllIsIdempotent(t *testing.T) {
	m := setupTestManager(t, 4)

	_, err := m.Open("acme")
	require.NoError(t, err)

	m.CloseAll()
	assert.Equal(t, 0, m.Len())
	m.CloseAll() // second call must not panic

	// Manager stays usable after CloseAll.
	_, err = m.Open("acme")
	require.NoError(t, err)
}
