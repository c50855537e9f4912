// Package memory provides in-memory implementations of the data store
// ports. They honor the same atomicity contracts as the SQLite adapters
// and back the service tests and single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/plutusfin/ledger/domain/period"
	"github.com/plutusfin/ledger/ports"
)

// UsageStore is an in-memory implementation of ports.UsageStore.
// All counter updates happen under one mutex, so increments are atomic
// and lazy period creation is idempotent.
type UsageStore struct {
	mu      sync.RWMutex
	periods map[string]*period.UsagePeriod
}

// NewUsageStore creates a new in-memory usage store.
func NewUsageStore() *UsageStore {
	return &UsageStore{
		periods: make(map[string]*period.UsagePeriod),
	}
}

// key identifies one owner's billing period.
func (s *UsageStore) key(owner string, periodStart time.Time) string {
	return fmt.Sprintf("%s:%s", owner, periodStart.Format("2006-01"))
}

// getOrCreate returns the period row bracketing now, creating it with
// zeroed counters on first access. Caller must hold the write lock.
func (s *UsageStore) getOrCreate(owner string, now time.Time) *period.UsagePeriod {
	start, _ := period.Bounds(now)
	k := s.key(owner, start)
	p, ok := s.periods[k]
	if !ok {
		fresh := period.New(owner, now)
		p = &fresh
		s.periods[k] = p
	}
	return p
}

// CurrentPeriod returns the period bracketing now, creating it lazily.
func (s *UsageStore) CurrentPeriod(ctx context.Context, owner string, now time.Time) (period.UsagePeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.getOrCreate(owner, now)

	// Copy out so callers never alias the stored counters.
	out := *p
	out.Counters = make(map[string]int64, len(p.Counters))
	for r, n := range p.Counters {
		out.Counters[r] = n
	}
	return out, nil
}

// Increment atomically adds amount to one resource counter in the
// period bracketing now.
func (s *UsageStore) Increment(ctx context.Context, owner, resource string, amount int64, now time.Time) error {
	if !period.Known(resource) {
		return fmt.Errorf("unknown resource %q", resource)
	}
	if amount < 0 {
		return fmt.Errorf("negative increment %d", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.getOrCreate(owner, now)
	p.Counters[resource] += amount
	return nil
}

// Used reads the current counter; zero if no period row exists yet.
func (s *UsageStore) Used(ctx context.Context, owner, resource string, now time.Time) (int64, error) {
	if !period.Known(resource) {
		return 0, fmt.Errorf("unknown resource %q", resource)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	start, _ := period.Bounds(now)
	p, ok := s.periods[s.key(owner, start)]
	if !ok {
		return 0, nil
	}
	return p.Counters[resource], nil
}

// Clear removes all state (for testing).
func (s *UsageStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periods = make(map[string]*period.UsagePeriod)
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
