// ABOUTME: The write pipeline every domain mutation executes through
// ABOUTME: begin -> mutate -> allocate version -> journal -> commit -> notify

package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"

	"github.com/tidemark/driftsync/internal/oracle"
	"github.com/tidemark/driftsync/internal/store"
)

// ErrOracleUnavailable wraps any failure to allocate a version. The
// transaction is rolled back: no journal row, no notification.
var ErrOracleUnavailable = errors.New("version oracle unavailable")

// ErrNoChanges is returned when a mutation function reports nothing to
// journal; every domain write must describe at least one change.
var ErrNoChanges = errors.New("write produced no changes")

var (
	writesTotal        = metrics.GetOrCreateCounter("driftsync_writes_total")
	writeFailuresTotal = metrics.GetOrCreateCounter("driftsync_write_failures_total")
)

// Notifier publishes a committed version to the tenant's topic.
// Publishing is fire-and-forget; the bus logs failures.
type Notifier interface {
	Notify(ctx context.Context, tenantID string, version int64)
}

// TxFunc performs the domain mutation inside the pipeline's transaction
// and returns the changes to journal. Returning an error aborts the
// write; the error passes through to the caller untouched so handlers
// can map their own sentinels.
type TxFunc func(ctx context.Context, tx *sql.Tx) ([]store.Change, error)

// Engine runs the write pipeline. Per tenant the order of journal
// versions equals the order the oracle served Next calls; commits may
// finish in a different real-time order, but readers by ?since= always
// observe rows in version order.
type Engine struct {
	stores   *store.Manager
	oracle   oracle.Oracle
	notifier Notifier
	logger   *slog.Logger
}

// New wires the pipeline. Pass nil logger for the default.
func New(stores *store.Manager, o oracle.Oracle, n Notifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		stores:   stores,
		oracle:   o,
		notifier: n,
		logger:   logger.With("component", "engine"),
	}
}

// Stores exposes the tenant store manager for read-only handlers.
func (e *Engine) Stores() *store.Manager { return e.stores }

// Write executes one domain mutation against the tenant's store:
//
//  1. open (and lazily migrate) the tenant store
//  2. begin a transaction
//  3. run fn — the domain mutation, returning post-state changes
//  4. allocate the next version from the oracle
//  5. append one journal row per change, all at that version
//  6. commit
//  7. publish the version to the notification bus
//
// Any failure before commit rolls the transaction back; a failed write
// leaves no journal row and publishes nothing. The notification goes out
// only after commit so that a client seeing version v on its stream is
// guaranteed to find v in a subsequent delta pull.
func (e *Engine) Write(ctx context.Context, tenantID string, fn TxFunc) (int64, error) {
	ts, err := e.stores.Open(tenantID)
	if err != nil {
		writeFailuresTotal.Inc()
		return 0, fmt.Errorf("opening store: %w", err)
	}

	tx, err := ts.BeginTx(ctx)
	if err != nil {
		writeFailuresTotal.Inc()
		return 0, fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback()

	changes, err := fn(ctx, tx)
	if err != nil {
		writeFailuresTotal.Inc()
		return 0, err
	}
	if len(changes) == 0 {
		writeFailuresTotal.Inc()
		return 0, ErrNoChanges
	}

	// The counter advances before commit. A crash between here and
	// commit leaves a gap in the journal — never a reorder or duplicate
	// — and clients tolerate gaps because they replay by since.
	version, err := e.oracle.Next(ctx, tenantID)
	if err != nil {
		writeFailuresTotal.Inc()
		return 0, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}

	for _, c := range changes {
		if err := store.AppendChange(ctx, tx, c, version); err != nil {
			writeFailuresTotal.Inc()
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		writeFailuresTotal.Inc()
		return 0, fmt.Errorf("committing write: %w", err)
	}

	// Commit happened-before notify: no one is ever told about a
	// version that is not in the journal.
	e.notifier.Notify(ctx, tenantID, version)
	writesTotal.Inc()

	e.logger.Debug("write committed",
		"tenant_id", tenantID, "version", version, "changes", len(changes))
	return version, nil
}
