// ABOUTME: In-memory Oracle for tests and single-process tooling
// ABOUTME: Mirrors the Redis contract including injectable failures

package oracle

import (
	"context"
	"sync"
)

// MemoryOracle is a process-local Oracle. It is unsuitable for
// production (two processes would allocate the same version) and exists
// for tests and the seed utility.
type MemoryOracle struct {
	mu       sync.Mutex
	counters map[string]int64

	// FailNext, when non-nil, is returned by the next call to Next and
	// then cleared. Lets tests exercise the rollback path.
	FailNext error
}

// NewMemoryOracle creates an empty in-memory oracle.
func NewMemoryOracle() *MemoryOracle {
	return &MemoryOracle{counters: make(map[string]int64)}
}

// Next increments and returns the tenant's counter.
func (o *MemoryOracle) Next(ctx context.Context, tenantID string) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.FailNext; err != nil {
		o.FailNext = nil
		return 0, err
	}
	o.counters[tenantID]++
	return o.counters[tenantID], nil
}

// Current returns the tenant's counter without advancing it.
func (o *MemoryOracle) Current(ctx context.Context, tenantID string) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counters[tenantID], nil
}

// Set forces the tenant's counter to v.
func (o *MemoryOracle) Set(tenantID string, v int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counters[tenantID] = v
}

var _ Oracle = (*MemoryOracle)(nil)
