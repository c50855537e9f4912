package memory

import (
	"context"
	"sync"
	"time"

	"github.com/plutusfin/ledger/domain/token"
	"github.com/plutusfin/ledger/ports"
)

// TokenStore is an in-memory implementation of ports.TokenStore.
// Claim performs its check-and-set under the write lock, so two
// concurrent claimants can never both win.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*token.Token // keyed by string(hash)
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]*token.Token),
	}
}

// Create stores a new token record.
func (s *TokenStore) Create(ctx context.Context, t token.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[string(t.Hash)] = &t
	return nil
}

// Claim atomically claims an unexpired, unclaimed invite token.
func (s *TokenStore) Claim(ctx context.Context, hash []byte, claimant string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[string(hash)]
	if !ok || !t.Claimable(now) {
		return "", token.ErrTokenInvalid
	}

	claimedAt := now
	t.ClaimedBy = claimant
	t.ClaimedAt = &claimedAt
	return t.Payload, nil
}

// CheckShare returns the payload of an unexpired share token without
// transitioning any state.
func (s *TokenStore) CheckShare(ctx context.Context, hash []byte, now time.Time) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[string(hash)]
	if !ok || !t.Checkable(now) {
		return "", token.ErrTokenInvalid
	}
	return t.Payload, nil
}

// GetByHash retrieves a token record for inspection.
func (s *TokenStore) GetByHash(ctx context.Context, hash []byte) (token.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[string(hash)]
	if !ok {
		return token.Token{}, ports.ErrNotFound
	}
	return *t, nil
}

// DeleteExpired removes expired, unclaimed tokens.
func (s *TokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for k, t := range s.tokens {
		if t.Expired(now) && t.ClaimedBy == "" {
			delete(s.tokens, k)
			deleted++
		}
	}
	return deleted, nil
}

// Clear removes all state (for testing).
func (s *TokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]*token.Token)
}

// Ensure interface compliance.
var _ ports.TokenStore = (*TokenStore)(nil)
