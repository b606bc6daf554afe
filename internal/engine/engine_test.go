// ABOUTME: Tests for the write pipeline's ordering and failure semantics
// ABOUTME: Covers version allocation, rollback on error and notify-after-commit

package engine

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark/driftsync/internal/oracle"
	"github.com/tidemark/driftsync/internal/store"
)

// recordingNotifier captures Notify calls for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notified
}

type notified struct {
	tenantID string
	version  int64
}

func (n *recordingNotifier) Notify(_ context.Context, tenantID string, version int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notified{tenantID: tenantID, version: version})
}

func (n *recordingNotifier) all() []notified {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notified(nil), n.events...)
}

type testEngine struct {
	engine   *Engine
	oracle   *oracle.MemoryOracle
	notifier *recordingNotifier
}

func setupTestEngine(t *testing.T) *testEngine {
	t.Helper()
	stores := store.NewManager(t.TempDir(), 8, nil)
	t.Cleanup(stores.CloseAll)
	o := oracle.NewMemoryOracle()
	n := &recordingNotifier{}
	return &testEngine{
		engine:   New(stores, o, n, nil),
		oracle:   o,
		notifier: n,
	}
}

func insertProject(id, name string) TxFunc {
	return func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO projects (id, name) VALUES (?, ?)", id, name); err != nil {
			return nil, err
		}
		return []store.Change{{
			TableName: "projects",
			EntityID:  id,
			Operation: store.OpInsert,
			Payload:   map[string]string{"id": id, "name": name},
		}}, nil
	}
}

func TestEngine_WriteJournalsAndNotifies(t *testing.T) {
	te := setupTestEngine(t)
	ctx := context.Background()

	v, err := te.engine.Write(ctx, "acme", insertProject("p1", "Roadmap"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	ts, err := te.engine.Stores().Open("acme")
	require.NoError(t, err)
	entries, err := ts.ReadJournalSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "projects", entries[0].TableName)
	assert.Equal(t, "p1", entries[0].EntityID)
	assert.Equal(t, store.OpInsert, entries[0].Operation)
	assert.Equal(t, int64(1), entries[0].Version)
	assert.JSONEq(t, `{"id":"p1","name":"Roadmap"}`, entries[0].Payload)

	assert.Equal(t, []notified{{tenantID: "acme", version: 1}}, te.notifier.all())
}

func TestEngine_SequentialWritesGetAscendingVersions(t *testing.T) {
	te := setupTestEngine(t)
	ctx := context.Background()

	for want := int64(1); want <= 4; want++ {
		v, err := te.engine.Write(ctx, "acme", insertProject(
			"p"+string(rune('0'+want)), "Project"))
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}

	ts, err := te.engine.Stores().Open("acme")
	require.NoError(t, err)
	entries, err := ts.ReadJournalSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Version)
	}
}

func TestEngine_MutationErrorRollsBack(t *testing.T) {
	te := setupTestEngine(t)
	ctx := context.Background()
	boom := errors.New("domain failure")

	_, err := te.engine.Write(ctx, "acme", func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO projects (id, name) VALUES (?, ?)", "p1", "doomed"); err != nil {
			return nil, err
		}
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	ts, err := te.engine.Stores().Open("acme")
	require.NoError(t, err)

	var count int
	require.NoError(t, ts.DB().QueryRow("SELECT COUNT(*) FROM projects").Scan(&count))
	assert.Zero(t, count, "failed write must leave no domain row")

	entries, err := ts.ReadJournalSince(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed write must leave no journal row")
	assert.Empty(t, te.notifier.all(), "failed write must not notify")

	// The oracle was never consulted for a mutation that failed.
	current, err := te.oracle.Current(ctx, "acme")
	require.NoError(t, err)
	assert.Zero(t, current)
}

func TestEngine_OracleFailureRollsBack(t *testing.T) {
	te := setupTestEngine(t)
	ctx := context.Background()

	te.oracle.FailNext = errors.New("coordination service down")
	_, err := te.engine.Write(ctx, "acme", insertProject("p1", "Roadmap"))
	require.ErrorIs(t, err, ErrOracleUnavailable)

	ts, err := te.engine.Stores().Open("acme")
	require.NoError(t, err)

	var count int
	require.NoError(t, ts.DB().QueryRow("SELECT COUNT(*) FROM projects").Scan(&count))
	assert.Zero(t, count)

	entries, err := ts.ReadJournalSince(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, te.notifier.all())

	// The next write succeeds and takes version 1.
	v, err := te.engine.Write(ctx, "acme", insertProject("p1", "Roadmap"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestEngine_NoChangesIsAnError(t *testing.T) {
	te := setupTestEngine(t)

	_, err := te.engine.Write(context.Background(), "acme",
		func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
			return nil, nil
		})
	require.ErrorIs(t, err, ErrNoChanges)
	assert.Empty(t, te.notifier.all())
}

func TestEngine_MultiEntityWriteSharesOneVersion(t *testing.T) {
	te := setupTestEngine(t)
	ctx := context.Background()

	v, err := te.engine.Write(ctx, "acme", func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO os_orders (uuid, short_id, total) VALUES (?, ?, ?)",
			"o1", "S0000001", 12.50); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO os_items (id, order_id, product_id, qty) VALUES (?, ?, ?, ?)",
			"i1", "o1", "prod1", 2); err != nil {
			return nil, err
		}
		return []store.Change{
			{TableName: "os_orders", EntityID: "o1", Operation: store.OpInsert,
				Payload: map[string]any{"uuid": "o1", "total": 12.50}},
			{TableName: "os_items", EntityID: "i1", Operation: store.OpInsert,
				Payload: map[string]any{"id": "i1", "order_id": "o1"}},
		}, nil
	})
	require.NoError(t, err)

	ts, err := te.engine.Stores().Open("acme")
	require.NoError(t, err)
	entries, err := ts.ReadJournalSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, v, entries[0].Version)
	assert.Equal(t, v, entries[1].Version)

	// One version, one notification.
	require.Len(t, te.notifier.all(), 1)
	assert.Equal(t, v, te.notifier.all()[0].version)
}

func TestEngine_TenantsAreIsolated(t *testing.T) {
	te := setupTestEngine(t)
	ctx := context.Background()

	_, err := te.engine.Write(ctx, "acme", insertProject("p1", "Roadmap"))
	require.NoError(t, err)

	// globex's counter and journal are untouched.
	current, err := te.oracle.Current(ctx, "globex")
	require.NoError(t, err)
	assert.Zero(t, current)

	ts, err := te.engine.Stores().Open("globex")
	require.NoError(t, err)
	entries, err := ts.ReadJournalSince(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	for _, n := range te.notifier.all() {
		assert.NotEqual(t, "globex", n.tenantID)
	}
}

func TestEngine_ConcurrentWritersLinearise(t *testing.T) {
	te := setupTestEngine(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	versions := make(chan int64, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := "p" + string(rune('a'+i))
			v, err := te.engine.Write(ctx, "acme", insertProject(id, "Project"))
			assert.NoError(t, err)
			versions <- v
		}()
	}
	wg.Wait()
	close(versions)

	seen := make(map[int64]bool, writers)
	for v := range versions {
		assert.False(t, seen[v], "version %d returned twice", v)
		seen[v] = true
	}
	for v := int64(1); v <= writers; v++ {
		assert.True(t, seen[v], "version %d missing: versions must be consecutive", v)
	}

	ts, err := te.engine.Stores().Open("acme")
	require.NoError(t, err)
	entries, err := ts.ReadJournalSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, writers)
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Version, "journal reads back in version order")
	}
}

func TestEngine_DeleteJournalsEmptyPayload(t *testing.T) {
	te := setupTestEngine(t)
	ctx := context.Background()

	_, err := te.engine.Write(ctx, "acme", insertProject("p1", "Roadmap"))
	require.NoError(t, err)

	v, err := te.engine.Write(ctx, "acme", func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		if _, err := tx.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", "p1"); err != nil {
			return nil, err
		}
		return []store.Change{store.Deleted("projects", "p1")}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	ts, err := te.engine.Stores().Open("acme")
	require.NoError(t, err)
	entries, err := ts.ReadJournalSince(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, store.OpDelete, entries[0].Operation)
	assert.Equal(t, "{}", entries[0].Payload)
}
