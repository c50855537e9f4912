package memory

import (
	"context"
	"sync"
	"time"

	"github.com/plutusfin/ledger/domain/plan"
	"github.com/plutusfin/ledger/ports"
)

// GrantStore is an in-memory implementation of ports.GrantStore.
type GrantStore struct {
	mu     sync.RWMutex
	grants []plan.AddOnGrant
}

// NewGrantStore creates a new in-memory grant store.
func NewGrantStore() *GrantStore {
	return &GrantStore{}
}

// Create stores a new grant.
func (s *GrantStore) Create(ctx context.Context, g plan.AddOnGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.grants = append(s.grants, g)
	return nil
}

// ListActive returns grants for an owner that are active and unexpired
// at the given instant.
func (s *GrantStore) ListActive(ctx context.Context, owner string, now time.Time) ([]plan.AddOnGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []plan.AddOnGrant
	for _, g := range s.grants {
		if g.Owner == owner && g.Active && g.ExpiresAt.After(now) {
			out = append(out, g)
		}
	}
	return out, nil
}

// Deactivate marks a grant inactive.
func (s *GrantStore) Deactivate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.grants {
		if s.grants[i].ID == id {
			s.grants[i].Active = false
			return nil
		}
	}
	return ports.ErrNotFound
}

// Clear removes all state (for testing).
func (s *GrantStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants = nil
}

// Ensure interface compliance.
var _ ports.GrantStore = (*GrantStore)(nil)
